package quizbank

import (
	"context"
	"errors"
	"testing"
)

func TestDeriveBatchStatus(t *testing.T) {
	cases := []struct {
		approved, pending, rejected int
		want                        BatchStatus
	}{
		{0, 10, 0, BatchAllPending},
		{10, 0, 0, BatchAllApproved},
		{0, 0, 10, BatchAllRejected},
		{4, 6, 0, BatchPartiallyApproved},
		{6, 0, 4, BatchPartiallyApproved},
		{0, 4, 6, BatchAllPending},
	}
	for _, tc := range cases {
		b := &TemplateBatch{
			TotalQuestions: tc.approved + tc.pending + tc.rejected,
			ApprovedCount:  tc.approved,
			PendingCount:   tc.pending,
			RejectedCount:  tc.rejected,
		}
		if got := DeriveBatchStatus(b); got != tc.want {
			t.Fatalf("DeriveBatchStatus(%d/%d/%d)=%s, want %s", tc.approved, tc.pending, tc.rejected, got, tc.want)
		}
	}
}

func TestApproveSixOfTen(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, qs := seedBatch(t, db, "Friendship", LevelA1, ModeVocabulary, 10)

	res, err := m.Approve(ctx, questionIDs(qs[:6]), "admin-1")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if res.Applied != 6 || len(res.Skipped) != 0 {
		t.Fatalf("applied=%d skipped=%v", res.Applied, res.Skipped)
	}

	b := checkBatchInvariant(t, db, batch.ID)
	if b.ApprovedCount != 6 || b.PendingCount != 4 || b.Status != BatchPartiallyApproved {
		t.Fatalf("batch after approve: %+v", b)
	}

	pool, err := db.GetPool(ctx, PoolID("Friendship", LevelA1, ModeVocabulary))
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if pool.TotalQuestions != 6 || len(pool.SourceBatches) != 1 || pool.SourceBatches[0] != batch.ID {
		t.Fatalf("pool after approve: %+v", pool)
	}

	q, err := db.GetTemplateQuestion(ctx, qs[0].ID)
	if err != nil {
		t.Fatalf("GetTemplateQuestion: %v", err)
	}
	if q.Status != StatusApproved || q.ApprovedBy != "admin-1" || q.ApprovedAt == nil {
		t.Fatalf("question after approve: %+v", q)
	}
}

func TestApproveIsIdempotentPerItem(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, qs := seedBatch(t, db, "Friendship", LevelA2, ModeGrammar, 5)
	ids := questionIDs(qs[:3])

	if _, err := m.Approve(ctx, ids, "a"); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	res, err := m.Approve(ctx, append(ids, "missing-id"), "a")
	if err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if res.Applied != 0 || len(res.Skipped) != 4 {
		t.Fatalf("second approve applied=%d skipped=%d", res.Applied, len(res.Skipped))
	}

	b := checkBatchInvariant(t, db, batch.ID)
	if b.ApprovedCount != 3 {
		t.Fatalf("approved=%d, want 3", b.ApprovedCount)
	}
	pool, err := db.GetPool(ctx, PoolID("Friendship", LevelA2, ModeGrammar))
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if pool.TotalQuestions != 3 {
		t.Fatalf("pool total=%d, want 3", pool.TotalQuestions)
	}
}

func TestApproveUnapproveRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, qs := seedBatch(t, db, "Nature & Animals", LevelB1, ModeTranslation, 4)
	ids := questionIDs(qs)

	if _, err := m.Approve(ctx, ids, "a"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if b := checkBatchInvariant(t, db, batch.ID); b.Status != BatchAllApproved {
		t.Fatalf("status=%s, want all_approved", b.Status)
	}

	res, err := m.Unapprove(ctx, ids)
	if err != nil {
		t.Fatalf("Unapprove: %v", err)
	}
	if res.Applied != 4 {
		t.Fatalf("unapproved=%d, want 4", res.Applied)
	}

	b := checkBatchInvariant(t, db, batch.ID)
	if b.ApprovedCount != 0 || b.PendingCount != 4 || b.Status != BatchAllPending {
		t.Fatalf("batch after round trip: %+v", b)
	}
	pool, err := db.GetPool(ctx, PoolID("Nature & Animals", LevelB1, ModeTranslation))
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if pool.TotalQuestions != 0 {
		t.Fatalf("pool total=%d, want 0", pool.TotalQuestions)
	}
	q, err := db.GetTemplateQuestion(ctx, ids[0])
	if err != nil {
		t.Fatalf("GetTemplateQuestion: %v", err)
	}
	if q.Status != StatusPending || q.ApprovedAt != nil || q.ApprovedBy != "" {
		t.Fatalf("question after unapprove: %+v", q)
	}
}

func TestUnapproveIgnoresNonApproved(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, qs := seedBatch(t, db, "Family Values", LevelC1, ModeGrammar, 4)

	if _, err := m.Reject(ctx, questionIDs(qs[:1]), "off topic"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	res, err := m.Unapprove(ctx, questionIDs(qs[:2]))
	if err != nil {
		t.Fatalf("Unapprove: %v", err)
	}
	if res.Applied != 0 || len(res.Skipped) != 2 {
		t.Fatalf("applied=%d skipped=%v", res.Applied, res.Skipped)
	}
	checkBatchInvariant(t, db, batch.ID)
}

func TestUnapproveAcrossPools(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	_, vocab := seedBatch(t, db, "Friendship", LevelA1, ModeVocabulary, 3)
	_, grammar := seedBatch(t, db, "Friendship", LevelA1, ModeGrammar, 3)

	all := append(questionIDs(vocab), questionIDs(grammar)...)
	if _, err := m.Approve(ctx, all, "a"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	// One from the vocabulary pool, two from the grammar pool.
	if _, err := m.Unapprove(ctx, []string{vocab[0].ID, grammar[0].ID, grammar[1].ID}); err != nil {
		t.Fatalf("Unapprove: %v", err)
	}

	for id, want := range map[string]int{
		PoolID("Friendship", LevelA1, ModeVocabulary): 2,
		PoolID("Friendship", LevelA1, ModeGrammar):    1,
	} {
		pool, err := db.GetPool(ctx, id)
		if err != nil {
			t.Fatalf("GetPool(%s): %v", id, err)
		}
		if pool.TotalQuestions != want {
			t.Fatalf("pool %s total=%d, want %d", id, pool.TotalQuestions, want)
		}
	}
}

func TestRejectAllMarksBatchExhausted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, qs := seedBatch(t, db, "Sports & Games", LevelB2, ModeReadingComprehension, 3)

	res, err := m.Reject(ctx, questionIDs(qs), "too easy")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if res.Applied != 3 {
		t.Fatalf("rejected=%d, want 3", res.Applied)
	}
	b := checkBatchInvariant(t, db, batch.ID)
	if b.Status != BatchAllRejected || b.RejectedCount != 3 {
		t.Fatalf("batch after reject: %+v", b)
	}
	q, err := db.GetTemplateQuestion(ctx, qs[0].ID)
	if err != nil {
		t.Fatalf("GetTemplateQuestion: %v", err)
	}
	if q.RejectionReason != "too easy" || q.RejectedAt == nil {
		t.Fatalf("question after reject: %+v", q)
	}
	if _, err := db.GetPool(ctx, PoolID("Sports & Games", LevelB2, ModeReadingComprehension)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("reject created a pool: err=%v", err)
	}
}

func TestModerationSequenceKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, qs := seedBatch(t, db, "Fantasy & Magic", LevelA2, ModeSentenceConstruction, 8)
	ids := questionIDs(qs)

	steps := []func() error{
		func() error { _, err := m.Approve(ctx, ids[:3], "a"); return err },
		func() error { _, err := m.Reject(ctx, ids[2:5], ""); return err },
		func() error { _, err := m.Unapprove(ctx, ids[1:4]); return err },
		func() error { _, err := m.Approve(ctx, ids, "b"); return err },
		func() error { _, err := m.Unapprove(ctx, ids[5:]); return err },
		func() error { _, err := m.Reject(ctx, ids[5:], "x"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		checkBatchInvariant(t, db, batch.ID)
	}

	counts, err := db.CountQuestionsByStatus(ctx, batch.ID)
	if err != nil {
		t.Fatalf("CountQuestionsByStatus: %v", err)
	}
	b := checkBatchInvariant(t, db, batch.ID)
	if counts[StatusApproved] != b.ApprovedCount || counts[StatusRejected] != b.RejectedCount {
		t.Fatalf("counters %+v disagree with item statuses %v", b, counts)
	}
	pool, err := db.GetPool(ctx, PoolID("Fantasy & Magic", LevelA2, ModeSentenceConstruction))
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if pool.TotalQuestions != counts[StatusApproved] {
		t.Fatalf("pool total=%d, approved items=%d", pool.TotalQuestions, counts[StatusApproved])
	}
}

func TestModerationRejectsEmptyIDs(t *testing.T) {
	m := NewModerator(openTestDB(t), nil)
	if _, err := m.Approve(context.Background(), []string{" ", ""}, "a"); !IsValidationError(err) {
		t.Fatalf("err=%v, want validation error", err)
	}
}

func TestReconcileRepairsStaleStatus(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, _ := seedBatch(t, db, "Music & Arts", LevelC2, ModeVocabulary, 2)

	if _, err := db.db.Exec("UPDATE template_batches SET status = ? WHERE id = ?", BatchAllApproved, batch.ID); err != nil {
		t.Fatalf("corrupt status: %v", err)
	}
	n, err := m.ReconcileBatchStatuses(ctx)
	if err != nil {
		t.Fatalf("ReconcileBatchStatuses: %v", err)
	}
	if n != 1 {
		t.Fatalf("repaired=%d, want 1", n)
	}
	checkBatchInvariant(t, db, batch.ID)

	if n, _ := m.ReconcileBatchStatuses(ctx); n != 0 {
		t.Fatalf("second pass repaired=%d, want 0", n)
	}
}

func TestGetBatchRepairsStaleStatus(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	batch, _ := seedBatch(t, db, "Music & Arts", LevelB1, ModeGrammar, 2)
	if _, err := db.db.Exec("UPDATE template_batches SET status = ? WHERE id = ?", BatchAllRejected, batch.ID); err != nil {
		t.Fatalf("corrupt status: %v", err)
	}
	got, err := db.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != BatchAllPending {
		t.Fatalf("status=%s, want all_pending", got.Status)
	}
	checkBatchInvariant(t, db, batch.ID)
}

func TestUpdateQuestion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	batch, qs := seedBatch(t, db, "Friendship", LevelB2, ModeVocabulary, 2)

	text := "a brand new question?"
	idx := 3
	updated, err := m.UpdateQuestion(ctx, qs[0].ID, QuestionUpdate{Question: &text, CorrectIndex: &idx})
	if err != nil {
		t.Fatalf("UpdateQuestion: %v", err)
	}
	if updated.Question.Question != "A brand new question?" || updated.CorrectIndex != 3 || updated.UpdatedAt == nil {
		t.Fatalf("updated question: %+v", updated)
	}
	if updated.Status != StatusPending {
		t.Fatalf("status changed to %s", updated.Status)
	}
	checkBatchInvariant(t, db, batch.ID)

	stored, err := db.GetTemplateQuestion(ctx, qs[0].ID)
	if err != nil {
		t.Fatalf("GetTemplateQuestion: %v", err)
	}
	if stored.Question.Question != "A brand new question?" || stored.Options[0] != "A" {
		t.Fatalf("stored question: %+v", stored)
	}
}

func TestUpdateQuestionValidation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	_, qs := seedBatch(t, db, "Friendship", LevelB2, ModeGrammar, 1)

	three := []string{"a", "b", "c"}
	bad := 7
	empty := "   "
	cases := map[string]QuestionUpdate{
		"empty update":   {},
		"three options":  {Options: &three},
		"index too high": {CorrectIndex: &bad},
		"blank question": {Question: &empty},
	}
	for name, upd := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := m.UpdateQuestion(ctx, qs[0].ID, upd); !IsValidationError(err) {
				t.Fatalf("err=%v, want validation error", err)
			}
		})
	}

	idx := 1
	if _, err := m.UpdateQuestion(ctx, "nope", QuestionUpdate{CorrectIndex: &idx}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing question err=%v, want ErrNotFound", err)
	}
}

func TestCreateTemplateBatchWriteCeiling(t *testing.T) {
	db := openTestDB(t)
	batch := &TemplateBatch{ID: BatchID("Friendship", LevelA1, ModeGrammar, 1), Status: BatchAllPending}
	questions := make([]TemplateQuestion, MaxWriteOps)
	err := db.CreateTemplateBatch(context.Background(), batch, questions)
	if !errors.Is(err, ErrTooManyWrites) {
		t.Fatalf("err=%v, want ErrTooManyWrites", err)
	}
	if err := db.CreateTemplateBatch(context.Background(), batch, nil); !errors.Is(err, ErrNoValidQuestions) {
		t.Fatalf("empty batch err=%v, want ErrNoValidQuestions", err)
	}
	if _, err := db.GetBatch(context.Background(), batch.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected batch was stored: err=%v", err)
	}
}
