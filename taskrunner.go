package quizbank

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work for RunTasks.
type Task[T any] func(ctx context.Context) (T, error)

// RunMode selects how RunTasks treats a failed task.
type RunMode int

const (
	// FailFast returns the first failure of a window once that window has
	// settled and starts no further windows.
	FailFast RunMode = iota
	// BestEffort drops failed tasks from the result and never returns a task error.
	BestEffort
)

// RunOptions configures RunTasks.
type RunOptions struct {
	Limit int
	Mode  RunMode
	// OnProgress is called once per settled task, successful or not.
	// Calls are serialized and done increases by one each time.
	OnProgress func(done, total int)
	// OnFailure is called for every failed task with its input index.
	OnFailure func(index int, err error)
}

// TaskError ties a task failure to its input index.
type TaskError struct {
	Index int
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d failed: %v", e.Index, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// RunTasks runs tasks in consecutive windows of opts.Limit. A window is
// awaited in full before the next starts, so no more than Limit tasks are in
// flight. Results keep input order regardless of completion order.
func RunTasks[T any](ctx context.Context, tasks []Task[T], opts RunOptions) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1
	}

	total := len(tasks)
	results := make([]T, total)
	errs := make([]error, total)

	var progressMu sync.Mutex
	done := 0
	settle := func(index int, err error) {
		progressMu.Lock()
		defer progressMu.Unlock()
		done++
		if err != nil && opts.OnFailure != nil {
			opts.OnFailure(index, err)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(done, total)
		}
	}

	for start := 0; start < total; start += limit {
		end := start + limit
		if end > total {
			end = total
		}

		// Goroutines never return an error so the group waits for every task
		// in the window; failures are recorded per slot.
		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				value, err := tasks[i](ctx)
				if err != nil {
					errs[i] = err
				} else {
					results[i] = value
				}
				settle(i, err)
				return nil
			})
		}
		_ = g.Wait()

		if opts.Mode == FailFast {
			for i := start; i < end; i++ {
				if errs[i] != nil {
					return nil, &TaskError{Index: i, Err: errs[i]}
				}
			}
		}
	}

	if opts.Mode == FailFast {
		return results, nil
	}

	out := make([]T, 0, total)
	for i := range results {
		if errs[i] == nil {
			out = append(out, results[i])
		}
	}
	return out, nil
}
