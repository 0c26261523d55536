package quizbank

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ModerationResult reports what a moderation action changed.
type ModerationResult struct {
	Requested int `json:"requested"`
	// Applied is the number of questions whose status actually transitioned.
	Applied int `json:"applied"`
	// Skipped ids were missing or not in a state the action applies to.
	Skipped []string `json:"skipped,omitempty"`
	// Batches are the batches whose counters changed.
	Batches []string `json:"batches,omitempty"`
}

// Moderator applies admin review decisions to template questions and keeps
// batch counters and approved pools consistent with them.
type Moderator struct {
	db       *DB
	logger   *Logger
	validate *validator.Validate
}

// NewModerator creates a new moderator
func NewModerator(db *DB, logger *Logger) *Moderator {
	return &Moderator{
		db:       db,
		logger:   orNop(logger).With("component", "moderation"),
		validate: validator.New(),
	}
}

// DeriveBatchStatus computes the status label from a batch's counters.
func DeriveBatchStatus(b *TemplateBatch) BatchStatus {
	switch {
	case b.TotalQuestions > 0 && b.ApprovedCount == b.TotalQuestions:
		return BatchAllApproved
	case b.ApprovedCount == 0 && b.PendingCount == 0 && b.TotalQuestions > 0:
		return BatchAllRejected
	case b.ApprovedCount == 0:
		return BatchAllPending
	default:
		return BatchPartiallyApproved
	}
}

type moderationAction int

const (
	actionApprove moderationAction = iota
	actionReject
	actionUnapprove
)

func (a moderationAction) String() string {
	switch a {
	case actionApprove:
		return "approve"
	case actionReject:
		return "reject"
	default:
		return "unapprove"
	}
}

// appliesTo reports whether a question in status s is eligible for the action.
func (a moderationAction) appliesTo(s QuestionStatus) bool {
	if a == actionUnapprove {
		return s == StatusApproved
	}
	return s.inPendingBucket()
}

type poolDelta struct {
	interest   string
	level      Level
	gameMode   string
	difficulty string
	n          int
	batches    map[string]struct{}
}

// Approve marks pending questions approved, credits their pools and moves the
// batch counters from pending to approved.
func (m *Moderator) Approve(ctx context.Context, ids []string, adminID string) (*ModerationResult, error) {
	return m.moderate(ctx, actionApprove, ids, adminID, "")
}

// Reject marks pending questions rejected with an optional reason. Pools are untouched.
func (m *Moderator) Reject(ctx context.Context, ids []string, reason string) (*ModerationResult, error) {
	return m.moderate(ctx, actionReject, ids, "", reason)
}

// Unapprove returns approved questions to pending and debits their pools.
// Ids that are not currently approved are ignored.
func (m *Moderator) Unapprove(ctx context.Context, ids []string) (*ModerationResult, error) {
	return m.moderate(ctx, actionUnapprove, ids, "", "")
}

func (m *Moderator) moderate(ctx context.Context, action moderationAction, ids []string, adminID, reason string) (*ModerationResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, newValidationError("questionIds", "must be a non-empty array")
	}

	result := &ModerationResult{Requested: len(ids)}
	batchDeltas := make(map[string]int)
	pools := make(map[string]*poolDelta)
	now := m.db.now()

	err := m.db.withTx(ctx, func(w *txWriter) error {
		questions, err := loadQuestionsTx(w, ids)
		if err != nil {
			return err
		}

		for _, id := range ids {
			q, ok := questions[id]
			if !ok || !action.appliesTo(q.Status) {
				result.Skipped = append(result.Skipped, id)
				continue
			}

			var res sql.Result
			switch action {
			case actionApprove:
				res, err = w.exec(
					`UPDATE template_questions SET status = ?, approved_at = ?, approved_by = ?, updated_at = ?
					 WHERE id = ? AND status IN (?, ?)`,
					StatusApproved, now, adminID, now, id, StatusPending, StatusNeedsRevision)
			case actionReject:
				res, err = w.exec(
					`UPDATE template_questions SET status = ?, rejected_at = ?, rejection_reason = ?, updated_at = ?
					 WHERE id = ? AND status IN (?, ?)`,
					StatusRejected, now, reason, now, id, StatusPending, StatusNeedsRevision)
			case actionUnapprove:
				res, err = w.exec(
					`UPDATE template_questions SET status = ?, approved_at = NULL, approved_by = '', updated_at = ?
					 WHERE id = ? AND status = ?`,
					StatusPending, now, id, StatusApproved)
			}
			if err != nil {
				return fmt.Errorf("failed to %s question %s: %w", action, id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				result.Skipped = append(result.Skipped, id)
				continue
			}

			result.Applied++
			batchDeltas[q.BatchID]++
			if action == actionReject {
				continue
			}
			pd, ok := pools[q.PoolID()]
			if !ok {
				pd = &poolDelta{
					interest:   q.Interest,
					level:      q.Level,
					gameMode:   q.GameMode,
					difficulty: q.Difficulty,
					batches:    make(map[string]struct{}),
				}
				pools[q.PoolID()] = pd
			}
			pd.n++
			pd.batches[q.BatchID] = struct{}{}
		}

		if err := applyPoolDeltas(w, action, pools, now); err != nil {
			return err
		}
		return applyBatchDeltas(w, action, batchDeltas, now)
	})
	if err != nil {
		return nil, err
	}

	for batchID := range batchDeltas {
		result.Batches = append(result.Batches, batchID)
	}
	sort.Strings(result.Batches)

	// Labels are recomputed after the counters commit. A failure here leaves a
	// stale label that GetBatch and ReconcileBatchStatuses repair.
	for _, batchID := range result.Batches {
		if _, err := m.RecomputeBatchStatus(ctx, batchID); err != nil {
			m.logger.Error("Failed to recompute batch status", "batch_id", batchID, "error", err)
		}
	}

	m.logger.Info("Moderation applied",
		"action", action.String(),
		"requested", result.Requested,
		"applied", result.Applied,
		"skipped", len(result.Skipped),
		"batches", len(result.Batches),
	)
	return result, nil
}

func applyPoolDeltas(w *txWriter, action moderationAction, pools map[string]*poolDelta, now time.Time) error {
	for poolID, pd := range pools {
		switch action {
		case actionApprove:
			if _, err := w.exec(
				`INSERT INTO approved_pools (id, interest, level, game_mode, difficulty, total_questions, last_updated)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(id) DO UPDATE SET total_questions = total_questions + excluded.total_questions,
					last_updated = excluded.last_updated`,
				poolID, pd.interest, pd.level, pd.gameMode, pd.difficulty, pd.n, now,
			); err != nil {
				return fmt.Errorf("failed to update pool %s: %w", poolID, err)
			}
			for batchID := range pd.batches {
				if _, err := w.exec(
					"INSERT OR IGNORE INTO pool_source_batches (pool_id, batch_id) VALUES (?, ?)",
					poolID, batchID,
				); err != nil {
					return fmt.Errorf("failed to record pool source: %w", err)
				}
			}
		case actionUnapprove:
			if _, err := w.exec(
				`UPDATE approved_pools SET total_questions = MAX(total_questions - ?, 0), last_updated = ?
				 WHERE id = ?`,
				pd.n, now, poolID,
			); err != nil {
				return fmt.Errorf("failed to update pool %s: %w", poolID, err)
			}
		}
	}
	return nil
}

func applyBatchDeltas(w *txWriter, action moderationAction, deltas map[string]int, now time.Time) error {
	var query string
	switch action {
	case actionApprove:
		query = `UPDATE template_batches SET approved_count = approved_count + ?, pending_count = pending_count - ?,
			last_reviewed_at = ? WHERE id = ?`
	case actionReject:
		query = `UPDATE template_batches SET rejected_count = rejected_count + ?, pending_count = pending_count - ?,
			last_reviewed_at = ? WHERE id = ?`
	case actionUnapprove:
		query = `UPDATE template_batches SET pending_count = pending_count + ?, approved_count = approved_count - ?,
			last_reviewed_at = ? WHERE id = ?`
	}
	for batchID, n := range deltas {
		if _, err := w.exec(query, n, n, now, batchID); err != nil {
			return fmt.Errorf("failed to update batch %s: %w", batchID, err)
		}
	}
	return nil
}

func loadQuestionsTx(w *txWriter, ids []string) (map[string]*TemplateQuestion, error) {
	out := make(map[string]*TemplateQuestion, len(ids))
	// Stay well under SQLite's bound-parameter limit.
	const chunk = 200
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		args := make([]interface{}, 0, end-start)
		for _, id := range ids[start:end] {
			args = append(args, id)
		}
		rows, err := w.query(
			"SELECT "+questionColumns+" FROM template_questions WHERE id IN ("+placeholders(len(args))+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to load questions: %w", err)
		}
		questions, err := collectTemplateQuestions(rows)
		if err != nil {
			return nil, err
		}
		for i := range questions {
			out[questions[i].ID] = &questions[i]
		}
	}
	return out, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// RecomputeBatchStatus re-derives and stores a batch's status label.
func (m *Moderator) RecomputeBatchStatus(ctx context.Context, batchID string) (BatchStatus, error) {
	batch, err := m.db.GetBatch(ctx, batchID)
	if err != nil {
		return "", err
	}
	return batch.Status, nil
}

// ReconcileBatchStatuses repairs every batch whose stored label disagrees with
// its counters and returns how many were changed.
func (m *Moderator) ReconcileBatchStatuses(ctx context.Context) (int, error) {
	batches, err := m.db.ListBatches(ctx, BatchFilter{})
	if err != nil {
		return 0, err
	}

	repaired := 0
	for i := range batches {
		b := &batches[i]
		derived := DeriveBatchStatus(b)
		if derived == b.Status {
			continue
		}
		if _, err := m.db.db.ExecContext(ctx,
			"UPDATE template_batches SET status = ? WHERE id = ?", derived, b.ID); err != nil {
			return repaired, fmt.Errorf("failed to repair batch %s: %w", b.ID, err)
		}
		m.logger.Info("Repaired batch status", "batch_id", b.ID, "from", b.Status, "to", derived)
		repaired++
	}
	return repaired, nil
}

// QuestionUpdate is a partial content edit. Nil fields are left unchanged.
type QuestionUpdate struct {
	Passage      *string   `json:"passage"`
	Question     *string   `json:"question" validate:"omitempty,min=1"`
	Options      *[]string `json:"options" validate:"omitempty,len=4,dive,required"`
	CorrectIndex *int      `json:"correctIndex" validate:"omitempty,min=0,max=3"`
	Explanation  *string   `json:"explanation"`
	Clue         *string   `json:"clue"`
}

func (u QuestionUpdate) empty() bool {
	return u.Passage == nil && u.Question == nil && u.Options == nil &&
		u.CorrectIndex == nil && u.Explanation == nil && u.Clue == nil
}

// UpdateQuestion edits a question's content. Status and counters are untouched.
func (m *Moderator) UpdateQuestion(ctx context.Context, id string, update QuestionUpdate) (*TemplateQuestion, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newValidationError("questionId", "is required")
	}
	if update.empty() {
		return nil, newValidationError("updates", "no fields to update")
	}
	if err := m.validate.Struct(update); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, newValidationError(verrs[0].Field(), "failed %q validation", verrs[0].Tag())
		}
		return nil, newValidationError("updates", "%v", err)
	}
	if update.Question != nil && strings.TrimSpace(*update.Question) == "" {
		return nil, newValidationError("question", "must not be empty")
	}

	var updated *TemplateQuestion
	err := m.db.withTx(ctx, func(w *txWriter) error {
		current, err := loadQuestionsTx(w, []string{id})
		if err != nil {
			return err
		}
		q, ok := current[id]
		if !ok {
			return fmt.Errorf("question %s: %w", id, ErrNotFound)
		}

		if update.Passage != nil {
			q.Passage = *update.Passage
		}
		if update.Question != nil {
			q.Question.Question = capitalizeFirst(*update.Question)
		}
		if update.Options != nil {
			q.Options = append([]string(nil), (*update.Options)...)
		}
		if update.CorrectIndex != nil {
			q.CorrectIndex = *update.CorrectIndex
		}
		if update.Explanation != nil {
			q.Explanation = *update.Explanation
		}
		if update.Clue != nil {
			q.Clue = *update.Clue
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return newValidationError("correctIndex", "%d is out of range for %d options", q.CorrectIndex, len(q.Options))
		}

		options, err := OptionsToJSON(q.Options)
		if err != nil {
			return err
		}
		now := m.db.now()
		if _, err := w.exec(
			`UPDATE template_questions SET passage = ?, question = ?, options = ?, correct_index = ?,
				explanation = ?, clue = ?, updated_at = ? WHERE id = ?`,
			q.Passage, q.Question.Question, options, q.CorrectIndex, q.Explanation, q.Clue, now, id,
		); err != nil {
			return fmt.Errorf("failed to update question %s: %w", id, err)
		}
		q.UpdatedAt = &now
		updated = q
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Question updated", "question_id", id)
	return updated, nil
}
