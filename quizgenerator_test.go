package quizbank

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func newTestGenerator(t *testing.T, db *DB, completer TextCompleter) *Generator {
	t.Helper()
	return NewGenerator(db, completer, GeneratorOptions{Retry: fastRetry(), ChunkSize: 10}, nil)
}

func seedUser(t *testing.T, db *DB, id string, interests ...string) {
	t.Helper()
	if err := db.UpsertUser(context.Background(), &User{ID: id, Email: id + "@example.com", Interests: interests}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
}

func TestGenerateTemplateBatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	completer := &countingCompleter{}
	g := newTestGenerator(t, db, completer)

	req := BatchRequest{Interest: "Friendship", Level: LevelB1, GameMode: ModeGrammar, Count: 25, GeneratedBy: "test"}
	batch, questions, err := g.GenerateTemplateBatch(ctx, req)
	if err != nil {
		t.Fatalf("GenerateTemplateBatch: %v", err)
	}
	if n := completer.calls.Load(); n != 3 {
		t.Fatalf("completer called %d times, want 3 chunks", n)
	}
	if batch.BatchNumber != 1 || batch.TotalQuestions != 25 || len(questions) != 25 {
		t.Fatalf("batch=%+v questions=%d", batch, len(questions))
	}
	if batch.Difficulty != DifficultyMedium || batch.GeneratedBy != "test" {
		t.Fatalf("batch metadata: %+v", batch)
	}
	if questions[0].ID != "Friendship_B1_Grammar_batch1_q0" || questions[24].QuestionIndex != 24 {
		t.Fatalf("unexpected question ids: %s / %d", questions[0].ID, questions[24].QuestionIndex)
	}
	stored := checkBatchInvariant(t, db, batch.ID)
	if stored.PendingCount != 25 || stored.Status != BatchAllPending {
		t.Fatalf("stored batch: %+v", stored)
	}

	second, _, err := g.GenerateTemplateBatch(ctx, req)
	if err != nil {
		t.Fatalf("second GenerateTemplateBatch: %v", err)
	}
	if second.BatchNumber != 2 || second.ID != "Friendship_B1_Grammar_batch2" {
		t.Fatalf("second batch: %+v", second)
	}
}

func TestGenerateTemplateBatchConcurrentSameCell(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Neither generation finishes until both are in flight.
	var inFlight sync.WaitGroup
	inFlight.Add(2)
	inner := &countingCompleter{}
	g := newTestGenerator(t, db, completerFunc(func(ctx context.Context, prompt string) (string, error) {
		inFlight.Done()
		inFlight.Wait()
		return inner.Complete(ctx, prompt)
	}))

	req := BatchRequest{Interest: "Friendship", Level: LevelA1, GameMode: ModeVocabulary, Count: 5}
	var wg sync.WaitGroup
	batches := make([]*TemplateBatch, 2)
	errs := make([]error, 2)
	for i := range batches {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batches[i], _, errs[i] = g.GenerateTemplateBatch(ctx, req)
		}(i)
	}
	wg.Wait()

	numbers := map[int]bool{}
	for i, err := range errs {
		if err != nil {
			t.Fatalf("generation %d: %v", i, err)
		}
		numbers[batches[i].BatchNumber] = true
		questions, err := db.ListBatchQuestions(ctx, batches[i].ID)
		if err != nil {
			t.Fatalf("ListBatchQuestions: %v", err)
		}
		if len(questions) != 5 || questions[0].ID != TemplateQuestionID(batches[i].ID, 0) {
			t.Fatalf("batch %s questions: %d", batches[i].ID, len(questions))
		}
	}
	if !numbers[1] || !numbers[2] {
		t.Fatalf("batch numbers %v, want 1 and 2", numbers)
	}
	stored, err := db.ListBatches(ctx, BatchFilter{})
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("got %d batches, want 2", len(stored))
	}
}

func TestGenerateTemplateBatchSkipsQuestionsAlreadyInCell(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	fixed := mustJSON(t, validItems(4))
	g := newTestGenerator(t, db, completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return fixed, nil
	}))

	req := BatchRequest{Interest: "Friendship", Level: LevelB2, GameMode: ModeGrammar, Count: 4}
	if _, _, err := g.GenerateTemplateBatch(ctx, req); err != nil {
		t.Fatalf("first GenerateTemplateBatch: %v", err)
	}
	if _, _, err := g.GenerateTemplateBatch(ctx, req); !errors.Is(err, ErrNoValidQuestions) {
		t.Fatalf("repeat batch err=%v, want ErrNoValidQuestions", err)
	}

	// Another cell is unaffected.
	req.Level = LevelC1
	if _, _, err := g.GenerateTemplateBatch(ctx, req); err != nil {
		t.Fatalf("other cell: %v", err)
	}
}

func TestGenerateTemplateBatchKeepsPartialChunks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	completer := &countingCompleter{fail: func(p string) bool {
		return strings.Contains(p, "Generate EXACTLY 5 ")
	}}
	g := newTestGenerator(t, db, completer)

	batch, questions, err := g.GenerateTemplateBatch(ctx, BatchRequest{
		Interest: "Nature & Animals", Level: LevelA1, GameMode: ModeVocabulary, Count: 25,
	})
	if err != nil {
		t.Fatalf("GenerateTemplateBatch: %v", err)
	}
	if len(questions) != 20 || batch.TotalQuestions != 20 || batch.RequestedQuestions != 25 {
		t.Fatalf("batch=%+v questions=%d", batch, len(questions))
	}
	checkBatchInvariant(t, db, batch.ID)
}

func TestGenerateTemplateBatchNoValidQuestionsWritesNothing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	g := newTestGenerator(t, db, completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return `{"questions": [{"question": "no options here"}]}`, nil
	}))

	_, _, err := g.GenerateTemplateBatch(ctx, BatchRequest{
		Interest: "Friendship", Level: LevelA2, GameMode: ModeTranslation, Count: 5,
	})
	if !errors.Is(err, ErrNoValidQuestions) {
		t.Fatalf("err=%v, want ErrNoValidQuestions", err)
	}
	batches, err := db.ListBatches(ctx, BatchFilter{})
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("a batch was written: %+v", batches)
	}
	if HTTPStatus(err) != 400 {
		t.Fatalf("HTTPStatus=%d, want 400", HTTPStatus(err))
	}
}

func TestGenerateTemplateBatchValidation(t *testing.T) {
	g := newTestGenerator(t, openTestDB(t), &countingCompleter{})
	cases := map[string]BatchRequest{
		"missing interest": {Level: LevelA1, GameMode: ModeGrammar},
		"bad level":        {Interest: "Friendship", Level: "Z9", GameMode: ModeGrammar},
		"bad mode":         {Interest: "Friendship", Level: LevelA1, GameMode: "Spelling"},
		"too many":         {Interest: "Friendship", Level: LevelA1, GameMode: ModeGrammar, Count: MaxBatchQuestions + 1},
		"negative":         {Interest: "Friendship", Level: LevelA1, GameMode: ModeGrammar, Count: -3},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := g.GenerateTemplateBatch(context.Background(), req); !IsValidationError(err) {
				t.Fatalf("err=%v, want validation error", err)
			}
		})
	}
}

func TestGeneratePersonalizedQuizzes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u1", "Friendship", "Music & Arts")
	completer := &countingCompleter{}
	g := newTestGenerator(t, db, completer)

	run, err := g.GeneratePersonalizedQuizzes(ctx, "u1")
	if err != nil {
		t.Fatalf("GeneratePersonalizedQuizzes: %v", err)
	}
	if run.Status != RunCompleted || run.Progress != 30 || run.Total != 30 || run.CompletedAt == nil {
		t.Fatalf("run: %+v", run)
	}
	if n := completer.calls.Load(); n != 30 {
		t.Fatalf("completer called %d times, want 30", n)
	}

	sets, err := db.ListQuizSets(ctx, "u1")
	if err != nil {
		t.Fatalf("ListQuizSets: %v", err)
	}
	if len(sets) != 30 {
		t.Fatalf("got %d quiz sets, want 30", len(sets))
	}
	for i, s := range sets {
		cell := QuizPlan[i]
		if s.Level != cell.Level || s.GameMode != cell.GameMode || s.Difficulty != cell.Difficulty {
			t.Fatalf("set %d is %s/%s, want %s/%s", i, s.Level, s.GameMode, cell.Level, cell.GameMode)
		}
		if s.ID != QuizSetID("u1", cell) || s.Status != QuizSetPending || len(s.Questions) != QuestionsPerQuizSet {
			t.Fatalf("set %d: id=%s status=%s questions=%d", i, s.ID, s.Status, len(s.Questions))
		}
		if strings.Join(s.Interests, ",") != "Friendship,Music & Arts" {
			t.Fatalf("set %d interests=%v", i, s.Interests)
		}
	}
}

func TestGeneratePersonalizedQuizzesFailsAtomically(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u2", "Sports & Games")
	g := newTestGenerator(t, db, &countingCompleter{fail: func(p string) bool {
		return strings.Contains(p, "Grammar Focus:") && strings.Contains(p, "C2 - ")
	}})

	if _, err := g.GeneratePersonalizedQuizzes(ctx, "u2"); err == nil {
		t.Fatal("expected an error")
	}
	run, err := db.GetRun(ctx, "u2")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != RunFailed || run.Error == "" || run.CompletedAt != nil {
		t.Fatalf("run: %+v", run)
	}
	sets, err := db.ListUserQuizSets(ctx, "u2")
	if err != nil {
		t.Fatalf("ListUserQuizSets: %v", err)
	}
	if len(sets) != 0 {
		t.Fatalf("failed run left %d quiz sets", len(sets))
	}
}

func TestGeneratePersonalizedQuizzesConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u3", "Fantasy & Magic")
	g := newTestGenerator(t, db, &countingCompleter{})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = g.GeneratePersonalizedQuizzes(ctx, "u3")
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	sets, err := db.ListUserQuizSets(ctx, "u3")
	if err != nil {
		t.Fatalf("ListUserQuizSets: %v", err)
	}
	if len(sets) != 30 {
		t.Fatalf("got %d quiz sets, want 30", len(sets))
	}
}

func TestStartGeneration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	g := newTestGenerator(t, db, &countingCompleter{})

	seedUser(t, db, "empty")
	if _, err := g.StartGeneration(ctx, "empty"); !errors.Is(err, ErrNoInterests) {
		t.Fatalf("no interests err=%v", err)
	}
	if _, err := g.StartGeneration(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user err=%v", err)
	}
	if _, err := g.StartGeneration(ctx, " "); !IsValidationError(err) {
		t.Fatalf("blank user err=%v", err)
	}

	seedUser(t, db, "u4", "Friendship")
	run, err := g.StartGeneration(ctx, "u4")
	if err != nil {
		t.Fatalf("StartGeneration: %v", err)
	}
	if run.Status != RunPending || run.Total != 30 || run.Progress != 0 {
		t.Fatalf("run: %+v", run)
	}
}

func TestRunGenerationPages(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u5", "Family Values", "Filipino Culture")
	g := newTestGenerator(t, db, &countingCompleter{})

	pages := (len(QuizPlan) + PlanPageSize - 1) / PlanPageSize
	for page := 0; page < pages; page++ {
		res, err := g.RunGenerationPage(ctx, "u5", page)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		wantProgress := (page + 1) * PlanPageSize
		if res.Progress != wantProgress || res.Generated != PlanPageSize || res.NextPage != page+1 {
			t.Fatalf("page %d result: %+v", page, res)
		}
		if res.Completed != (page == pages-1) {
			t.Fatalf("page %d completed=%v", page, res.Completed)
		}

		run, err := db.GetRun(ctx, "u5")
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.Progress != wantProgress || run.CurrentBatch != page+1 {
			t.Fatalf("page %d run: %+v", page, run)
		}
	}

	run, err := db.GetRun(ctx, "u5")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != RunCompleted || run.CompletedAt == nil {
		t.Fatalf("final run: %+v", run)
	}
	sets, err := db.ListUserQuizSets(ctx, "u5")
	if err != nil {
		t.Fatalf("ListUserQuizSets: %v", err)
	}
	if len(sets) != len(QuizPlan) {
		t.Fatalf("got %d quiz sets, want %d", len(sets), len(QuizPlan))
	}

	if _, err := g.RunGenerationPage(ctx, "u5", pages); !IsValidationError(err) {
		t.Fatalf("out of range page err=%v", err)
	}
	if _, err := g.RunGenerationPage(ctx, "u5", -1); !IsValidationError(err) {
		t.Fatalf("negative page err=%v", err)
	}
}

func TestRunGenerationPageKeepsCompletedRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u7", "Friendship")
	g := newTestGenerator(t, db, &countingCompleter{})

	pages := (len(QuizPlan) + PlanPageSize - 1) / PlanPageSize
	for page := 0; page < pages; page++ {
		if _, err := g.RunGenerationPage(ctx, "u7", page); err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
	}
	done, err := db.GetRun(ctx, "u7")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if _, err := g.RunGenerationPage(ctx, "u7", 1); err != nil {
		t.Fatalf("replay page 1: %v", err)
	}
	run, err := db.GetRun(ctx, "u7")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != RunCompleted || run.Progress != len(QuizPlan) || run.CurrentBatch != pages {
		t.Fatalf("replayed run: %+v", run)
	}
	if run.CompletedAt == nil || !run.CompletedAt.Equal(*done.CompletedAt) {
		t.Fatalf("completedAt moved: %v -> %v", done.CompletedAt, run.CompletedAt)
	}
}

func TestRunGenerationPageBestEffort(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u6", "Friendship")
	g := newTestGenerator(t, db, &countingCompleter{fail: func(p string) bool {
		return strings.Contains(p, "A2 - ")
	}})

	res, err := g.RunGenerationPage(ctx, "u6", 0)
	if err != nil {
		t.Fatalf("RunGenerationPage: %v", err)
	}
	if res.Generated != PlanPageSize-1 || res.Progress != PlanPageSize || res.Completed {
		t.Fatalf("result: %+v", res)
	}
	run, err := db.GetRun(ctx, "u6")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != RunInProgress {
		t.Fatalf("run status=%s, want in_progress", run.Status)
	}
}

func TestRegenerateQuizSet(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u7", "Adventure Stories")
	g := newTestGenerator(t, db, &countingCompleter{})
	g.newSeed = func() string { return "fixed-seed" }

	if _, err := g.RunGenerationPage(ctx, "u7", 0); err != nil {
		t.Fatalf("RunGenerationPage: %v", err)
	}
	id := QuizSetID("u7", QuizPlan[0])
	before, err := db.GetQuizSet(ctx, id)
	if err != nil {
		t.Fatalf("GetQuizSet: %v", err)
	}
	if _, err := db.ApproveQuizSet(ctx, id); err != nil {
		t.Fatalf("ApproveQuizSet: %v", err)
	}

	after, err := g.RegenerateQuizSet(ctx, id)
	if err != nil {
		t.Fatalf("RegenerateQuizSet: %v", err)
	}
	if after.Status != QuizSetPending || after.RegeneratedAt == nil || after.ApprovedAt != nil {
		t.Fatalf("regenerated set: %+v", after)
	}
	if after.Questions[0].Question == before.Questions[0].Question {
		t.Fatal("questions were not replaced")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("createdAt changed from %v to %v", before.CreatedAt, after.CreatedAt)
	}
}

func TestRegenerateQuizSetFailureReturnsToPending(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u8", "Music & Arts")
	if _, err := newTestGenerator(t, db, &countingCompleter{}).RunGenerationPage(ctx, "u8", 0); err != nil {
		t.Fatalf("RunGenerationPage: %v", err)
	}

	broken := newTestGenerator(t, db, completerFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("quota exceeded")
	}))
	id := QuizSetID("u8", QuizPlan[1])
	if _, err := broken.RegenerateQuizSet(ctx, id); err == nil {
		t.Fatal("expected an error")
	}

	set, err := db.GetQuizSet(ctx, id)
	if err != nil {
		t.Fatalf("GetQuizSet: %v", err)
	}
	if set.Status != QuizSetPending || !strings.Contains(set.RegenerationError, "quota exceeded") {
		t.Fatalf("set after failed regeneration: status=%s error=%q", set.Status, set.RegenerationError)
	}
}

func TestRegenerateQuizSetRejectsConcurrentRegeneration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedUser(t, db, "u9", "Friendship")
	g := newTestGenerator(t, db, &countingCompleter{})
	if _, err := g.RunGenerationPage(ctx, "u9", 0); err != nil {
		t.Fatalf("RunGenerationPage: %v", err)
	}
	id := QuizSetID("u9", QuizPlan[2])
	if _, err := db.MarkQuizSetRegenerating(ctx, id); err != nil {
		t.Fatalf("MarkQuizSetRegenerating: %v", err)
	}

	if _, err := g.RegenerateQuizSet(ctx, id); !IsValidationError(err) {
		t.Fatalf("err=%v, want validation error", err)
	}
	set, err := db.GetQuizSet(ctx, id)
	if err != nil {
		t.Fatalf("GetQuizSet: %v", err)
	}
	if set.Status != QuizSetRegenerating {
		t.Fatalf("status=%s, want regenerating", set.Status)
	}
	if _, err := g.RegenerateQuizSet(ctx, "u9_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing set err=%v", err)
	}
}
