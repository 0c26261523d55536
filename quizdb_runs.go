package quizbank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ---- generation runs ----

// ResetRun starts a fresh generation run for a user, discarding any previous
// progress and error.
func (db *DB) ResetRun(ctx context.Context, userID string, interests []string, status RunStatus) (*GenerationRun, error) {
	interestsJSON, err := OptionsToJSON(interests)
	if err != nil {
		return nil, err
	}
	now := db.now()
	run := &GenerationRun{
		UserID:    userID,
		Interests: append([]string(nil), interests...),
		Status:    status,
		Total:     len(QuizPlan),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = db.db.ExecContext(ctx,
		`INSERT INTO generation_runs (user_id, interests, status, progress, total, current_batch, error,
			created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, 0, ?, 0, '', ?, ?, NULL)
		 ON CONFLICT(user_id) DO UPDATE SET interests = excluded.interests, status = excluded.status,
			progress = 0, total = excluded.total, current_batch = 0, error = '',
			created_at = excluded.created_at, updated_at = excluded.updated_at, completed_at = NULL`,
		userID, interestsJSON, status, run.Total, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reset generation run: %w", err)
	}
	return run, nil
}

// GetRun retrieves the generation run of a user
func (db *DB) GetRun(ctx context.Context, userID string) (*GenerationRun, error) {
	var run GenerationRun
	var interests string
	var completedAt sql.NullTime
	err := db.db.QueryRowContext(ctx,
		`SELECT user_id, interests, status, progress, total, current_batch, error, created_at, updated_at, completed_at
		 FROM generation_runs WHERE user_id = ?`, userID,
	).Scan(&run.UserID, &interests, &run.Status, &run.Progress, &run.Total, &run.CurrentBatch, &run.Error,
		&run.CreatedAt, &run.UpdatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generation run for %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get generation run: %w", err)
	}
	if run.Interests, err = JSONToOptions(interests); err != nil {
		return nil, err
	}
	run.CompletedAt = nullTimePtr(completedAt)
	return &run, nil
}

// AdvanceRunProgress raises a live run's progress; it never moves backwards
// and never touches a completed or failed run.
func (db *DB) AdvanceRunProgress(ctx context.Context, userID string, progress int) error {
	_, err := db.db.ExecContext(ctx,
		`UPDATE generation_runs SET progress = MAX(progress, ?), status = ?, updated_at = ?
		 WHERE user_id = ? AND status NOT IN (?, ?)`,
		progress, RunInProgress, db.now(), userID, RunCompleted, RunFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", err)
	}
	return nil
}

// FailRun records a failure. A completed run is left as it is.
func (db *DB) FailRun(ctx context.Context, userID string, message string) error {
	_, err := db.db.ExecContext(ctx,
		"UPDATE generation_runs SET status = ?, error = ?, updated_at = ? WHERE user_id = ? AND status != ?",
		RunFailed, message, db.now(), userID, RunCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return nil
}

// FailStaleRuns marks every run still in progress as failed and returns how
// many were closed. Called at startup, when no run can be live.
func (db *DB) FailStaleRuns(ctx context.Context, message string) (int, error) {
	res, err := db.db.ExecContext(ctx,
		"UPDATE generation_runs SET status = ?, error = ?, updated_at = ? WHERE status = ?",
		RunFailed, message, db.now(), RunInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close stale runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CommitRunQuizSets saves quiz sets and moves the run forward in one commit.
// progress never decreases; when completed is set the run is closed. A run
// that is already completed stays completed.
func (db *DB) CommitRunQuizSets(ctx context.Context, userID string, sets []QuizSet, progress, currentBatch int, completed bool) error {
	return db.withTx(ctx, func(w *txWriter) error {
		for i := range sets {
			if err := saveQuizSetTx(w, &sets[i]); err != nil {
				return err
			}
		}

		now := db.now()
		status := RunInProgress
		var completedAt interface{}
		if completed {
			status = RunCompleted
			completedAt = now
		}
		res, err := w.exec(
			`UPDATE generation_runs SET
				current_batch = CASE WHEN status = ? THEN current_batch ELSE ? END,
				status = CASE WHEN status = ? THEN status ELSE ? END,
				progress = MAX(progress, ?), error = '', updated_at = ?,
				completed_at = COALESCE(completed_at, ?)
			 WHERE user_id = ?`,
			RunCompleted, currentBatch, RunCompleted, status, progress, now, completedAt, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update generation run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("generation run for %s: %w", userID, ErrNotFound)
		}
		return nil
	})
}

// ---- quiz sets ----

const quizSetColumns = `id, user_id, level, game_mode, difficulty, interests, questions, status,
	created_at, updated_at, approved_at, regenerated_at, regeneration_error`

func saveQuizSetTx(w *txWriter, set *QuizSet) error {
	interests, err := OptionsToJSON(set.Interests)
	if err != nil {
		return err
	}
	questions, err := json.Marshal(set.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}
	_, err = w.exec(
		`INSERT INTO quiz_sets (id, user_id, level, game_mode, difficulty, interests, questions, status,
			created_at, updated_at, approved_at, regenerated_at, regeneration_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, '')
		 ON CONFLICT(id) DO UPDATE SET interests = excluded.interests, questions = excluded.questions,
			status = excluded.status, created_at = excluded.created_at, updated_at = excluded.updated_at,
			approved_at = NULL, regenerated_at = NULL, regeneration_error = ''`,
		set.ID, set.UserID, set.Level, set.GameMode, set.Difficulty, interests, string(questions), set.Status,
		set.CreatedAt, set.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save quiz set %s: %w", set.ID, err)
	}
	return nil
}

func scanQuizSet(row rowScanner) (*QuizSet, error) {
	var s QuizSet
	var interests, questions string
	var approvedAt, regeneratedAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.Level, &s.GameMode, &s.Difficulty, &interests, &questions, &s.Status,
		&s.CreatedAt, &s.UpdatedAt, &approvedAt, &regeneratedAt, &s.RegenerationError)
	if err != nil {
		return nil, err
	}
	if s.Interests, err = JSONToOptions(interests); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(questions), &s.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quiz set questions: %w", err)
	}
	s.ApprovedAt = nullTimePtr(approvedAt)
	s.RegeneratedAt = nullTimePtr(regeneratedAt)
	return &s, nil
}

// GetQuizSet retrieves a quiz set by ID
func (db *DB) GetQuizSet(ctx context.Context, id string) (*QuizSet, error) {
	s, err := scanQuizSet(db.db.QueryRowContext(ctx, "SELECT "+quizSetColumns+" FROM quiz_sets WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quiz set %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get quiz set: %w", err)
	}
	return s, nil
}

// ListUserQuizSets retrieves every quiz set of a user in storage order.
func (db *DB) ListUserQuizSets(ctx context.Context, userID string) ([]QuizSet, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT "+quizSetColumns+" FROM quiz_sets WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quiz sets: %w", err)
	}
	defer rows.Close()

	var sets []QuizSet
	for rows.Next() {
		s, err := scanQuizSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz set: %w", err)
		}
		sets = append(sets, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quiz sets: %w", err)
	}
	return sets, nil
}

// MarkQuizSetRegenerating flips a quiz set to regenerating and returns it as
// it was before the flip. A set already regenerating is rejected.
func (db *DB) MarkQuizSetRegenerating(ctx context.Context, id string) (*QuizSet, error) {
	var set *QuizSet
	err := db.withTx(ctx, func(w *txWriter) error {
		s, err := scanQuizSet(w.queryRow("SELECT "+quizSetColumns+" FROM quiz_sets WHERE id = ?", id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("quiz set %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to get quiz set: %w", err)
		}
		if s.Status == QuizSetRegenerating {
			return newValidationError("status", "quiz set %s is already regenerating", id)
		}
		if _, err := w.exec("UPDATE quiz_sets SET status = ?, updated_at = ? WHERE id = ?",
			QuizSetRegenerating, db.now(), id); err != nil {
			return fmt.Errorf("failed to mark quiz set regenerating: %w", err)
		}
		set = s
		return nil
	})
	return set, err
}

// ReplaceQuizSetQuestions stores regenerated questions and returns the set to
// pending review. createdAt is preserved.
func (db *DB) ReplaceQuizSetQuestions(ctx context.Context, id string, questions []Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}
	now := db.now()
	_, err = db.db.ExecContext(ctx,
		`UPDATE quiz_sets SET questions = ?, status = ?, updated_at = ?, regenerated_at = ?,
			approved_at = NULL, regeneration_error = '' WHERE id = ?`,
		string(data), QuizSetPending, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to replace quiz set questions: %w", err)
	}
	return nil
}

// FailQuizSetRegeneration returns a regenerating set to pending with the failure message.
func (db *DB) FailQuizSetRegeneration(ctx context.Context, id string, message string) error {
	_, err := db.db.ExecContext(ctx,
		"UPDATE quiz_sets SET status = ?, regeneration_error = ?, updated_at = ? WHERE id = ? AND status = ?",
		QuizSetPending, message, db.now(), id, QuizSetRegenerating,
	)
	if err != nil {
		return fmt.Errorf("failed to record regeneration failure: %w", err)
	}
	return nil
}

// ApproveQuizSets approves the given pending quiz sets in one commit and
// returns how many changed.
func (db *DB) ApproveQuizSets(ctx context.Context, ids []string) (int, error) {
	approved := 0
	err := db.withTx(ctx, func(w *txWriter) error {
		now := db.now()
		for _, id := range ids {
			res, err := w.exec(
				"UPDATE quiz_sets SET status = ?, approved_at = ?, updated_at = ? WHERE id = ? AND status = ?",
				QuizSetApproved, now, now, id, QuizSetPending,
			)
			if err != nil {
				return fmt.Errorf("failed to approve quiz set %s: %w", id, err)
			}
			n, _ := res.RowsAffected()
			approved += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return approved, nil
}
