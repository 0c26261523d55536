package quizbank

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// completerFunc adapts a function to TextCompleter.
type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var questionSeq atomic.Int64

// validItems returns n schema-valid question objects with unique question text.
func validItems(n int) []map[string]interface{} {
	items := make([]map[string]interface{}, n)
	for i := range items {
		id := questionSeq.Add(1)
		items[i] = map[string]interface{}{
			"question":     fmt.Sprintf("which word completes sentence number %d?", id),
			"options":      []string{"apple", "banana", "cherry", "date"},
			"correctIndex": i % 4,
			"explanation":  "the sentence needs a fruit",
			"clue":         "think about fruit",
		}
	}
	return items
}

func mustJSON(t testing.TB, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

// countingCompleter answers every prompt with as many valid questions as it asks for.
type countingCompleter struct {
	calls atomic.Int64
	// fail, when set, decides per prompt whether the call errors.
	fail func(prompt string) bool
}

func (c *countingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	if c.fail != nil && c.fail(prompt) {
		return "", fmt.Errorf("upstream unavailable")
	}
	var n int
	if i := strings.Index(prompt, "Generate EXACTLY "); i >= 0 {
		fmt.Sscanf(prompt[i+len("Generate EXACTLY "):], "%d", &n)
	}
	if n <= 0 {
		n = 1
	}
	data, err := json.Marshal(map[string]interface{}{"questions": validItems(n)})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "quizbank.db"), NopLogger())
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })
	if err := db.CreateTables(); err != nil {
		t.Fatalf("CreateTables: %v", err)
	}
	return db
}

// seedBatch stores a pending batch of n questions for a cell and returns it.
func seedBatch(t *testing.T, db *DB, interest string, level Level, mode string, n int) (*TemplateBatch, []TemplateQuestion) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	batch := &TemplateBatch{
		Interest:           interest,
		Level:              level,
		GameMode:           mode,
		Difficulty:         DifficultyForLevel(level),
		TotalQuestions:     n,
		RequestedQuestions: n,
		PendingCount:       n,
		Status:             BatchAllPending,
		CreatedAt:          now,
	}
	questions := make([]TemplateQuestion, n)
	for i := range questions {
		questions[i] = TemplateQuestion{
			Question: Question{
				Question:     fmt.Sprintf("%s seeded question %d", interest, questionSeq.Add(1)),
				Options:      []string{"A", "B", "C", "D"},
				CorrectIndex: i % 4,
				Explanation:  "because",
				Clue:         "look closely",
			},
			Interest:      interest,
			Level:         level,
			GameMode:      mode,
			Difficulty:    batch.Difficulty,
			QuestionIndex: i,
			Status:        StatusPending,
			CreatedAt:     now,
		}
	}
	if err := db.CreateTemplateBatch(ctx, batch, questions); err != nil {
		t.Fatalf("CreateTemplateBatch: %v", err)
	}
	return batch, questions
}

func questionIDs(qs []TemplateQuestion) []string {
	ids := make([]string, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}

// checkBatchInvariant fails the test if a batch's counters don't add up or
// its stored status disagrees with them.
func checkBatchInvariant(t *testing.T, db *DB, batchID string) *TemplateBatch {
	t.Helper()
	var b TemplateBatch
	err := db.db.QueryRow(
		"SELECT total_questions, approved_count, pending_count, rejected_count, status FROM template_batches WHERE id = ?",
		batchID,
	).Scan(&b.TotalQuestions, &b.ApprovedCount, &b.PendingCount, &b.RejectedCount, &b.Status)
	if err != nil {
		t.Fatalf("load batch %s: %v", batchID, err)
	}
	if b.ApprovedCount+b.PendingCount+b.RejectedCount != b.TotalQuestions {
		t.Fatalf("batch %s counters %d+%d+%d != total %d",
			batchID, b.ApprovedCount, b.PendingCount, b.RejectedCount, b.TotalQuestions)
	}
	if b.ApprovedCount < 0 || b.PendingCount < 0 || b.RejectedCount < 0 {
		t.Fatalf("batch %s has a negative counter: %+v", batchID, b)
	}
	if want := DeriveBatchStatus(&b); b.Status != want {
		t.Fatalf("batch %s status = %s, want %s", batchID, b.Status, want)
	}
	return &b
}

// lockedStrings collects strings from concurrent goroutines.
type lockedStrings struct {
	mu   sync.Mutex
	vals []string
}

func (l *lockedStrings) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.vals = append(l.vals, s)
}

func (l *lockedStrings) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.vals...)
}
