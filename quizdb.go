package quizbank

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MaxWriteOps is the most write statements one atomic commit may carry.
const MaxWriteOps = 500

// DB represents a quizbank database connection
type DB struct {
	db     *sql.DB
	logger *Logger
	now    func() time.Time
}

// OpenDB opens a new database connection. SQLite allows a single writer, so
// the pool is capped at one connection and transactions serialize.
func OpenDB(dbPath string, logger *Logger) (*DB, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		db:     db,
		logger: orNop(logger).With("component", "quizdb"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			interests TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS template_batches (
			id TEXT PRIMARY KEY,
			interest TEXT NOT NULL,
			level TEXT NOT NULL,
			game_mode TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			batch_number INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			requested_questions INTEGER NOT NULL,
			approved_count INTEGER NOT NULL DEFAULT 0,
			pending_count INTEGER NOT NULL,
			rejected_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_reviewed_at DATETIME,
			generated_by TEXT NOT NULL DEFAULT '',
			UNIQUE (interest, level, game_mode, batch_number)
		)`,
		`CREATE TABLE IF NOT EXISTS template_questions (
			id TEXT PRIMARY KEY,
			interest TEXT NOT NULL,
			level TEXT NOT NULL,
			game_mode TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			batch_id TEXT NOT NULL,
			batch_number INTEGER NOT NULL,
			question_index INTEGER NOT NULL,
			passage TEXT NOT NULL DEFAULT '',
			question TEXT NOT NULL,
			options TEXT NOT NULL,
			correct_index INTEGER NOT NULL,
			explanation TEXT NOT NULL,
			clue TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME,
			approved_at DATETIME,
			approved_by TEXT NOT NULL DEFAULT '',
			rejected_at DATETIME,
			rejection_reason TEXT NOT NULL DEFAULT '',
			FOREIGN KEY (batch_id) REFERENCES template_batches(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_template_questions_cell
			ON template_questions (interest, level, game_mode, status)`,
		`CREATE INDEX IF NOT EXISTS idx_template_questions_batch
			ON template_questions (batch_id, question_index)`,
		`CREATE TABLE IF NOT EXISTS approved_pools (
			id TEXT PRIMARY KEY,
			interest TEXT NOT NULL,
			level TEXT NOT NULL,
			game_mode TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			total_questions INTEGER NOT NULL DEFAULT 0,
			last_updated DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pool_source_batches (
			pool_id TEXT NOT NULL,
			batch_id TEXT NOT NULL,
			PRIMARY KEY (pool_id, batch_id)
		)`,
		`CREATE TABLE IF NOT EXISTS generation_runs (
			user_id TEXT PRIMARY KEY,
			interests TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			progress INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL,
			current_batch INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_sets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			level TEXT NOT NULL,
			game_mode TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			interests TEXT NOT NULL DEFAULT '[]',
			questions TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			approved_at DATETIME,
			regenerated_at DATETIME,
			regeneration_error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_sets_user ON quiz_sets (user_id, status)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// txWriter executes writes inside one transaction and enforces MaxWriteOps.
type txWriter struct {
	tx  *sql.Tx
	ctx context.Context
	ops int
}

func (w *txWriter) exec(query string, args ...interface{}) (sql.Result, error) {
	w.ops++
	if w.ops > MaxWriteOps {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyWrites, MaxWriteOps)
	}
	return w.tx.ExecContext(w.ctx, query, args...)
}

func (w *txWriter) query(query string, args ...interface{}) (*sql.Rows, error) {
	return w.tx.QueryContext(w.ctx, query, args...)
}

func (w *txWriter) queryRow(query string, args ...interface{}) *sql.Row {
	return w.tx.QueryRowContext(w.ctx, query, args...)
}

// withTx runs fn in a transaction that commits only if fn succeeds; nothing
// fn wrote survives a failure.
func (db *DB) withTx(ctx context.Context, fn func(w *txWriter) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	w := &txWriter{tx: tx, ctx: ctx}
	if err := fn(w); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %d writes: %w", w.ops, err)
	}
	return nil
}

// ---- users ----

// UpsertUser creates the user or replaces its email and interests.
func (db *DB) UpsertUser(ctx context.Context, user *User) error {
	interests, err := OptionsToJSON(user.Interests)
	if err != nil {
		return err
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = db.now()
	}
	_, err = db.db.ExecContext(ctx,
		`INSERT INTO users (id, email, interests, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email, interests = excluded.interests`,
		user.ID, user.Email, interests, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	var interests string
	err := db.db.QueryRowContext(ctx,
		"SELECT id, email, interests, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Email, &interests, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Interests, err = JSONToOptions(interests); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes a user together with its quiz sets and generation run.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	return db.withTx(ctx, func(w *txWriter) error {
		res, err := w.exec("DELETE FROM users WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		if _, err := w.exec("DELETE FROM quiz_sets WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete quiz sets: %w", err)
		}
		if _, err := w.exec("DELETE FROM generation_runs WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete generation run: %w", err)
		}
		return nil
	})
}

// ---- template batches ----

// CreateTemplateBatch allocates the cell's next batch number, stamps it on the
// batch and its questions, and writes them in one commit. If any question fails
// to save, the batch record is rolled back too.
func (db *DB) CreateTemplateBatch(ctx context.Context, batch *TemplateBatch, questions []TemplateQuestion) error {
	if len(questions) == 0 {
		return ErrNoValidQuestions
	}
	if len(questions)+1 > MaxWriteOps {
		return fmt.Errorf("%w: cannot save %d questions in a single commit", ErrTooManyWrites, len(questions))
	}

	return db.withTx(ctx, func(w *txWriter) error {
		var maxNumber sql.NullInt64
		err := w.queryRow(
			"SELECT MAX(batch_number) FROM template_batches WHERE interest = ? AND level = ? AND game_mode = ?",
			batch.Interest, batch.Level, batch.GameMode,
		).Scan(&maxNumber)
		if err != nil {
			return fmt.Errorf("failed to allocate batch number: %w", err)
		}
		stampBatchNumber(batch, questions, int(maxNumber.Int64)+1)

		_, err = w.exec(
			`INSERT INTO template_batches (id, interest, level, game_mode, difficulty, batch_number,
				total_questions, requested_questions, approved_count, pending_count, rejected_count,
				status, created_at, generated_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batch.ID, batch.Interest, batch.Level, batch.GameMode, batch.Difficulty, batch.BatchNumber,
			batch.TotalQuestions, batch.RequestedQuestions, batch.ApprovedCount, batch.PendingCount, batch.RejectedCount,
			batch.Status, batch.CreatedAt, batch.GeneratedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to create batch %s: %w", batch.ID, err)
		}

		for i := range questions {
			q := &questions[i]
			options, err := OptionsToJSON(q.Options)
			if err != nil {
				return err
			}
			_, err = w.exec(
				`INSERT INTO template_questions (id, interest, level, game_mode, difficulty, batch_id,
					batch_number, question_index, passage, question, options, correct_index,
					explanation, clue, status, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				q.ID, q.Interest, q.Level, q.GameMode, q.Difficulty, q.BatchID,
				q.BatchNumber, q.QuestionIndex, q.Passage, q.Question.Question, options, q.CorrectIndex,
				q.Explanation, q.Clue, q.Status, q.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to save question %s: %w", q.ID, err)
			}
		}
		return nil
	})
}

func stampBatchNumber(batch *TemplateBatch, questions []TemplateQuestion, number int) {
	batch.BatchNumber = number
	batch.ID = BatchID(batch.Interest, batch.Level, batch.GameMode, number)
	for i := range questions {
		q := &questions[i]
		q.BatchNumber = number
		q.BatchID = batch.ID
		q.ID = TemplateQuestionID(batch.ID, q.QuestionIndex)
	}
}

const batchColumns = `id, interest, level, game_mode, difficulty, batch_number, total_questions,
	requested_questions, approved_count, pending_count, rejected_count, status, created_at,
	last_reviewed_at, generated_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (*TemplateBatch, error) {
	var b TemplateBatch
	var lastReviewed sql.NullTime
	err := row.Scan(&b.ID, &b.Interest, &b.Level, &b.GameMode, &b.Difficulty, &b.BatchNumber,
		&b.TotalQuestions, &b.RequestedQuestions, &b.ApprovedCount, &b.PendingCount, &b.RejectedCount,
		&b.Status, &b.CreatedAt, &lastReviewed, &b.GeneratedBy)
	if err != nil {
		return nil, err
	}
	b.LastReviewedAt = nullTimePtr(lastReviewed)
	return &b, nil
}

// GetBatch retrieves a batch by ID. A status label left stale by an
// interrupted moderation action is repaired from the counters on read.
func (db *DB) GetBatch(ctx context.Context, id string) (*TemplateBatch, error) {
	batch, err := scanBatch(db.db.QueryRowContext(ctx,
		"SELECT "+batchColumns+" FROM template_batches WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	if derived := DeriveBatchStatus(batch); derived != batch.Status {
		db.logger.Warn("Repairing stale batch status", "batch_id", id, "stored", batch.Status, "derived", derived)
		if _, err := db.db.ExecContext(ctx,
			"UPDATE template_batches SET status = ? WHERE id = ?", derived, id); err != nil {
			return nil, fmt.Errorf("failed to repair batch status: %w", err)
		}
		batch.Status = derived
	}
	return batch, nil
}

// BatchFilter narrows ListBatches; empty fields match everything.
type BatchFilter struct {
	Interest string
	Level    Level
	GameMode string
	Status   BatchStatus
}

// ListBatches retrieves batches, newest first.
func (db *DB) ListBatches(ctx context.Context, filter BatchFilter) ([]TemplateBatch, error) {
	query := "SELECT " + batchColumns + " FROM template_batches"
	var where []string
	var args []interface{}
	if filter.Interest != "" {
		where = append(where, "interest = ?")
		args = append(args, filter.Interest)
	}
	if filter.Level != "" {
		where = append(where, "level = ?")
		args = append(args, filter.Level)
	}
	if filter.GameMode != "" {
		where = append(where, "game_mode = ?")
		args = append(args, filter.GameMode)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, batch_number DESC"

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []TemplateBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, *b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return batches, nil
}

// ---- template questions ----

const questionColumns = `id, interest, level, game_mode, difficulty, batch_id, batch_number,
	question_index, passage, question, options, correct_index, explanation, clue, status,
	created_at, updated_at, approved_at, approved_by, rejected_at, rejection_reason`

func scanTemplateQuestion(row rowScanner) (*TemplateQuestion, error) {
	var q TemplateQuestion
	var options string
	var updatedAt, approvedAt, rejectedAt sql.NullTime
	err := row.Scan(&q.ID, &q.Interest, &q.Level, &q.GameMode, &q.Difficulty, &q.BatchID, &q.BatchNumber,
		&q.QuestionIndex, &q.Passage, &q.Question.Question, &options, &q.CorrectIndex, &q.Explanation, &q.Clue,
		&q.Status, &q.CreatedAt, &updatedAt, &approvedAt, &q.ApprovedBy, &rejectedAt, &q.RejectionReason)
	if err != nil {
		return nil, err
	}
	if q.Options, err = JSONToOptions(options); err != nil {
		return nil, err
	}
	q.UpdatedAt = nullTimePtr(updatedAt)
	q.ApprovedAt = nullTimePtr(approvedAt)
	q.RejectedAt = nullTimePtr(rejectedAt)
	return &q, nil
}

func collectTemplateQuestions(rows *sql.Rows) ([]TemplateQuestion, error) {
	defer rows.Close()
	var questions []TemplateQuestion
	for rows.Next() {
		q, err := scanTemplateQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// GetTemplateQuestion retrieves a template question by ID
func (db *DB) GetTemplateQuestion(ctx context.Context, id string) (*TemplateQuestion, error) {
	q, err := scanTemplateQuestion(db.db.QueryRowContext(ctx,
		"SELECT "+questionColumns+" FROM template_questions WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("question %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// ListBatchQuestions retrieves all questions of a batch in generation order.
func (db *DB) ListBatchQuestions(ctx context.Context, batchID string) ([]TemplateQuestion, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT "+questionColumns+" FROM template_questions WHERE batch_id = ? ORDER BY question_index", batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batch questions: %w", err)
	}
	return collectTemplateQuestions(rows)
}

// CellQuestions retrieves every question of one (interest, level, mode) cell
// in batch order, whatever its status.
func (db *DB) CellQuestions(ctx context.Context, interest string, level Level, gameMode string) ([]TemplateQuestion, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT "+questionColumns+" FROM template_questions WHERE interest = ? AND level = ? AND game_mode = ? ORDER BY batch_number, question_index",
		interest, level, gameMode,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cell questions: %w", err)
	}
	return collectTemplateQuestions(rows)
}

// CountQuestionsByStatus counts template questions per status, optionally for one batch.
func (db *DB) CountQuestionsByStatus(ctx context.Context, batchID string) (map[QuestionStatus]int, error) {
	query := "SELECT status, COUNT(*) FROM template_questions"
	var args []interface{}
	if batchID != "" {
		query += " WHERE batch_id = ?"
		args = append(args, batchID)
	}
	query += " GROUP BY status"

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}
	defer rows.Close()

	counts := make(map[QuestionStatus]int)
	for rows.Next() {
		var status QuestionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ---- approved pools ----

const poolColumns = "id, interest, level, game_mode, difficulty, total_questions, last_updated"

func (db *DB) loadPoolSources(ctx context.Context, pool *ApprovedQuestionPool) error {
	rows, err := db.db.QueryContext(ctx,
		"SELECT batch_id FROM pool_source_batches WHERE pool_id = ? ORDER BY batch_id", pool.ID)
	if err != nil {
		return fmt.Errorf("failed to load pool sources: %w", err)
	}
	defer rows.Close()
	pool.SourceBatches = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		pool.SourceBatches = append(pool.SourceBatches, id)
	}
	return rows.Err()
}

// GetPool retrieves an approved question pool by ID
func (db *DB) GetPool(ctx context.Context, id string) (*ApprovedQuestionPool, error) {
	var p ApprovedQuestionPool
	err := db.db.QueryRowContext(ctx, "SELECT "+poolColumns+" FROM approved_pools WHERE id = ?", id).
		Scan(&p.ID, &p.Interest, &p.Level, &p.GameMode, &p.Difficulty, &p.TotalQuestions, &p.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	if err := db.loadPoolSources(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPools retrieves every approved question pool.
func (db *DB) ListPools(ctx context.Context) ([]ApprovedQuestionPool, error) {
	rows, err := db.db.QueryContext(ctx, "SELECT "+poolColumns+" FROM approved_pools ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	var pools []ApprovedQuestionPool
	for rows.Next() {
		var p ApprovedQuestionPool
		if err := rows.Scan(&p.ID, &p.Interest, &p.Level, &p.GameMode, &p.Difficulty, &p.TotalQuestions, &p.LastUpdated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pool: %w", err)
		}
		pools = append(pools, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pools: %w", err)
	}

	for i := range pools {
		if err := db.loadPoolSources(ctx, &pools[i]); err != nil {
			return nil, err
		}
	}
	return pools, nil
}

// ApprovedQuestions returns the content of every approved question in a cell.
func (db *DB) ApprovedQuestions(ctx context.Context, interest string, level Level, gameMode string) ([]Question, error) {
	rows, err := db.db.QueryContext(ctx,
		`SELECT passage, question, options, correct_index, explanation, clue FROM template_questions
		 WHERE interest = ? AND level = ? AND game_mode = ? AND status = ?`,
		interest, level, gameMode, StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var options string
		if err := rows.Scan(&q.Passage, &q.Question, &options, &q.CorrectIndex, &q.Explanation, &q.Clue); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if q.Options, err = JSONToOptions(options); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// ---- helpers ----

// OptionsToJSON converts a string slice to its JSON column representation.
func OptionsToJSON(options []string) (string, error) {
	if options == nil {
		options = []string{}
	}
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to marshal options: %w", err)
	}
	return string(data), nil
}

// JSONToOptions converts a JSON column back to a string slice.
func JSONToOptions(optionsJSON string) ([]string, error) {
	var options []string
	err := json.Unmarshal([]byte(optionsJSON), &options)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return options, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
