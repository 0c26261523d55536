package quizbank

import (
	"context"
	"fmt"
	"sort"
)

// ListQuizSets returns a user's quiz sets in plan order.
func (db *DB) ListQuizSets(ctx context.Context, userID string) ([]QuizSet, error) {
	sets, err := db.ListUserQuizSets(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sets, func(i, j int) bool {
		return QuizSetNumber(sets[i].GameMode, sets[i].Level) < QuizSetNumber(sets[j].GameMode, sets[j].Level)
	})
	return sets, nil
}

// ApproveQuizSet approves one pending quiz set.
func (db *DB) ApproveQuizSet(ctx context.Context, id string) (*QuizSet, error) {
	set, err := db.GetQuizSet(ctx, id)
	if err != nil {
		return nil, err
	}
	switch set.Status {
	case QuizSetApproved:
		return set, nil
	case QuizSetRegenerating:
		return nil, newValidationError("status", "quiz set %s is being regenerated", id)
	}
	if _, err := db.ApproveQuizSets(ctx, []string{id}); err != nil {
		return nil, err
	}
	return db.GetQuizSet(ctx, id)
}

// ApproveAllPendingQuizSets approves every pending quiz set of a user in one
// commit and returns how many were approved.
func (db *DB) ApproveAllPendingQuizSets(ctx context.Context, userID string) (int, error) {
	sets, err := db.ListUserQuizSets(ctx, userID)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, s := range sets {
		if s.Status == QuizSetPending {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := db.ApproveQuizSets(ctx, ids)
	if err != nil {
		return 0, err
	}
	db.logger.Info("Approved pending quiz sets", "user_id", userID, "count", n)
	return n, nil
}

// QuizSummaryStatus condenses a user's review state.
type QuizSummaryStatus string

const (
	SummaryNoGeneration QuizSummaryStatus = "no_generation"
	SummaryPending      QuizSummaryStatus = "pending"
	SummaryPartial      QuizSummaryStatus = "partial"
	SummaryApproved     QuizSummaryStatus = "approved"
)

// QuizSummary counts a user's quiz sets by status.
type QuizSummary struct {
	UserID       string            `json:"userId"`
	Total        int               `json:"total"`
	Approved     int               `json:"approved"`
	Pending      int               `json:"pending"`
	Regenerating int               `json:"regenerating"`
	Status       QuizSummaryStatus `json:"status"`
	Run          *GenerationRun    `json:"run,omitempty"`
}

// UserQuizSummary reports how far a user's plan is through review.
func (db *DB) UserQuizSummary(ctx context.Context, userID string) (*QuizSummary, error) {
	sets, err := db.ListUserQuizSets(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &QuizSummary{UserID: userID, Total: len(sets)}
	for _, s := range sets {
		switch s.Status {
		case QuizSetApproved:
			summary.Approved++
		case QuizSetRegenerating:
			summary.Regenerating++
		default:
			summary.Pending++
		}
	}

	switch {
	case summary.Total == 0:
		summary.Status = SummaryNoGeneration
	case summary.Approved == summary.Total:
		summary.Status = SummaryApproved
	case summary.Approved == 0:
		summary.Status = SummaryPending
	default:
		summary.Status = SummaryPartial
	}

	run, err := db.GetRun(ctx, userID)
	switch {
	case err == nil:
		summary.Run = run
	case !isNotFound(err):
		return nil, fmt.Errorf("failed to load generation run: %w", err)
	}
	return summary, nil
}
