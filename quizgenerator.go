package quizbank

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBatchQuestions is the template batch size when none is requested.
	DefaultBatchQuestions = 50
	// MaxBatchQuestions keeps a batch and its items inside one commit.
	MaxBatchQuestions = MaxWriteOps - 1
)

// GeneratorOptions tunes a Generator. Zero values take defaults.
type GeneratorOptions struct {
	Retry            RetryPolicy
	ChunkSize        int
	ChunkConcurrency int
	PlanConcurrency  int
	// TranscriptDir, when set, receives one LLM transcript file per run.
	TranscriptDir string
}

func (o GeneratorOptions) withDefaults() GeneratorOptions {
	if o.Retry.MaxRetries == 0 && o.Retry.BaseDelay == 0 {
		o.Retry = DefaultRetryPolicy()
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = 10
	}
	if o.ChunkConcurrency <= 0 {
		o.ChunkConcurrency = 3
	}
	if o.PlanConcurrency <= 0 {
		o.PlanConcurrency = 5
	}
	return o
}

// Generator orchestrates template batch generation and personalized quiz plans.
type Generator struct {
	db     *DB
	maker  *QuestionMaker
	opts   GeneratorOptions
	logger *Logger

	runs singleflight.Group
	// newSeed produces regeneration variation seeds.
	newSeed func() string
	// progressMu serializes progress writes so they land in order.
	progressMu sync.Mutex
}

// NewGenerator creates a new generator
func NewGenerator(db *DB, completer TextCompleter, opts GeneratorOptions, logger *Logger) *Generator {
	logger = orNop(logger).With("component", "generator")
	opts = opts.withDefaults()
	return &Generator{
		db:      db,
		maker:   NewQuestionMaker(completer, opts.Retry, logger),
		opts:    opts,
		logger:  logger,
		newSeed: func() string { return uuid.NewString() },
	}
}

func (g *Generator) openTranscript(runID string, params map[string]string) *LLMLogger {
	if g.opts.TranscriptDir == "" {
		return nil
	}
	lg, err := NewLLMLogger(g.opts.TranscriptDir, runID, params)
	if err != nil {
		g.logger.Warn("Failed to open LLM transcript", "dir", g.opts.TranscriptDir, "error", err)
		return nil
	}
	g.logger.Debug("Writing LLM transcript", "path", filepath.Join(g.opts.TranscriptDir, sanitizeFilename(runID)+".log"))
	return lg
}

// BatchRequest asks for one template batch for a (interest, level, mode) cell.
type BatchRequest struct {
	Interest    string `json:"interest"`
	Level       Level  `json:"level"`
	GameMode    string `json:"gameMode"`
	Count       int    `json:"count"`
	GeneratedBy string `json:"generatedBy"`
}

func (r *BatchRequest) validate() error {
	if strings.TrimSpace(r.Interest) == "" {
		return newValidationError("interest", "is required")
	}
	if !r.Level.Valid() {
		return newValidationError("level", "unknown CEFR level %q", r.Level)
	}
	if !ValidGameMode(r.GameMode) {
		return newValidationError("gameMode", "unknown game mode %q", r.GameMode)
	}
	if r.Count == 0 {
		r.Count = DefaultBatchQuestions
	}
	if r.Count < 0 || r.Count > MaxBatchQuestions {
		return newValidationError("count", "must be between 1 and %d", MaxBatchQuestions)
	}
	return nil
}

// GenerateTemplateBatch generates a batch of pending template questions for
// one cell and persists the batch record with its items atomically. If no
// valid question survives, nothing is written.
func (g *Generator) GenerateTemplateBatch(ctx context.Context, req BatchRequest) (*TemplateBatch, []TemplateQuestion, error) {
	if err := req.validate(); err != nil {
		return nil, nil, err
	}
	difficulty := DifficultyForLevel(req.Level)
	log := g.logger.With("interest", req.Interest, "level", req.Level, "game_mode", req.GameMode)

	// New batches never repeat a question already in the cell, rejected ones included.
	existing, err := g.db.CellQuestions(ctx, req.Interest, req.Level, req.GameMode)
	if err != nil {
		return nil, nil, err
	}
	dedup := NewQuestionDedup()
	for _, q := range existing {
		dedup.IsDuplicate(q.Question)
	}

	// The batch number is only known at commit, so transcripts are keyed by cell.
	cellID := PoolID(req.Interest, req.Level, req.GameMode)
	transcript := g.openTranscript(cellID+"_"+uuid.NewString(), map[string]string{
		"interest": req.Interest,
		"level":    string(req.Level),
		"gameMode": req.GameMode,
		"count":    fmt.Sprint(req.Count),
	})
	defer transcript.Close()

	var tasks []Task[[]Question]
	for remaining := req.Count; remaining > 0; remaining -= g.opts.ChunkSize {
		size := g.opts.ChunkSize
		if remaining < size {
			size = remaining
		}
		tasks = append(tasks, func(ctx context.Context) ([]Question, error) {
			return g.maker.GenerateQuestions(ctx, GenerationRequest{
				Interests:  []string{req.Interest},
				Level:      req.Level,
				GameMode:   req.GameMode,
				Difficulty: difficulty,
				Count:      size,
				Transcript: transcript,
			})
		})
	}

	chunks, err := RunTasks(ctx, tasks, RunOptions{
		Limit: g.opts.ChunkConcurrency,
		Mode:  BestEffort,
		OnFailure: func(index int, err error) {
			log.Warn("Chunk generation failed", "chunk", index, "error", err)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	var generated []Question
	for _, chunk := range chunks {
		generated = append(generated, chunk...)
	}
	generated, dupes := dedup.Filter(generated)
	if dupes > 0 {
		log.Info("Dropped duplicate questions", "count", dupes)
	}
	if len(generated) > req.Count {
		generated = generated[:req.Count]
	}
	if len(generated) == 0 {
		log.Error("No valid questions generated")
		return nil, nil, fmt.Errorf("cell %s: %w", cellID, ErrNoValidQuestions)
	}

	now := g.db.now()
	batch := &TemplateBatch{
		Interest:           req.Interest,
		Level:              req.Level,
		GameMode:           req.GameMode,
		Difficulty:         difficulty,
		TotalQuestions:     len(generated),
		RequestedQuestions: req.Count,
		PendingCount:       len(generated),
		Status:             BatchAllPending,
		CreatedAt:          now,
		GeneratedBy:        req.GeneratedBy,
	}
	questions := make([]TemplateQuestion, len(generated))
	for i, q := range generated {
		questions[i] = TemplateQuestion{
			Question:      q,
			Interest:      req.Interest,
			Level:         req.Level,
			GameMode:      req.GameMode,
			Difficulty:    difficulty,
			QuestionIndex: i,
			Status:        StatusPending,
			CreatedAt:     now,
		}
	}

	if err := g.db.CreateTemplateBatch(ctx, batch, questions); err != nil {
		return nil, nil, err
	}
	if len(generated) < req.Count {
		log.Warn("Batch is smaller than requested", "batch_id", batch.ID, "requested", req.Count, "saved", len(generated))
	}
	log.Info("Template batch saved", "batch_id", batch.ID, "questions", len(generated))
	return batch, questions, nil
}

// StartGeneration resets a user's generation run so a plan can be generated
// from scratch. The user must have at least one interest.
func (g *Generator) StartGeneration(ctx context.Context, userID string) (*GenerationRun, error) {
	user, err := g.loadUserInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	return g.db.ResetRun(ctx, userID, user.Interests, RunPending)
}

func (g *Generator) loadUserInterests(ctx context.Context, userID string) (*User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, newValidationError("userId", "is required")
	}
	user, err := g.db.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Interests) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNoInterests)
	}
	return user, nil
}

func (g *Generator) planTask(cell PlanCell, interests []string, transcript *LLMLogger) Task[QuizSet] {
	return func(ctx context.Context) (QuizSet, error) {
		questions, err := g.maker.GenerateQuestions(ctx, GenerationRequest{
			Interests:  interests,
			Level:      cell.Level,
			GameMode:   cell.GameMode,
			Difficulty: cell.Difficulty,
			Count:      QuestionsPerQuizSet,
			Transcript: transcript,
		})
		if err != nil {
			return QuizSet{}, err
		}
		return QuizSet{
			Level:      cell.Level,
			GameMode:   cell.GameMode,
			Difficulty: cell.Difficulty,
			Interests:  interests,
			Questions:  questions,
			Status:     QuizSetPending,
		}, nil
	}
}

func (g *Generator) stampQuizSets(userID string, sets []QuizSet) {
	now := g.db.now()
	for i := range sets {
		sets[i].UserID = userID
		sets[i].ID = QuizSetID(userID, PlanCell{Level: sets[i].Level, GameMode: sets[i].GameMode, Difficulty: sets[i].Difficulty})
		sets[i].CreatedAt = now
		sets[i].UpdatedAt = now
	}
}

func (g *Generator) reportProgress(ctx context.Context, userID string, progress int) {
	g.progressMu.Lock()
	defer g.progressMu.Unlock()
	if err := g.db.AdvanceRunProgress(ctx, userID, progress); err != nil {
		g.logger.Warn("Failed to record progress", "user_id", userID, "progress", progress, "error", err)
	}
}

// GeneratePersonalizedQuizzes generates the full 30-set plan for a user. All
// quiz sets are committed together with the run's completion; any cell failure
// fails the run and writes no quiz sets. Concurrent calls for the same user
// share one execution.
func (g *Generator) GeneratePersonalizedQuizzes(ctx context.Context, userID string) (*GenerationRun, error) {
	v, err, shared := g.runs.Do(userID, func() (interface{}, error) {
		return g.generatePlan(ctx, userID)
	})
	if shared {
		g.logger.Info("Joined in-flight generation", "user_id", userID)
	}
	if err != nil {
		return nil, err
	}
	return v.(*GenerationRun), nil
}

func (g *Generator) generatePlan(ctx context.Context, userID string) (*GenerationRun, error) {
	user, err := g.loadUserInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := g.db.ResetRun(ctx, userID, user.Interests, RunInProgress); err != nil {
		return nil, err
	}

	log := g.logger.With("user_id", userID)
	log.Info("Starting personalized generation", "interests", user.Interests, "sets", len(QuizPlan))

	transcript := g.openTranscript("plan_"+userID, map[string]string{
		"userId":    userID,
		"interests": strings.Join(user.Interests, ", "),
	})
	defer transcript.Close()

	tasks := make([]Task[QuizSet], len(QuizPlan))
	for i, cell := range QuizPlan {
		tasks[i] = g.planTask(cell, user.Interests, transcript)
	}

	sets, err := RunTasks(ctx, tasks, RunOptions{
		Limit: g.opts.PlanConcurrency,
		Mode:  FailFast,
		OnProgress: func(done, total int) {
			g.reportProgress(ctx, userID, done)
		},
	})
	if err == nil {
		g.stampQuizSets(userID, sets)
		err = g.db.CommitRunQuizSets(ctx, userID, sets, len(QuizPlan), len(QuizPlan), true)
	}
	if err != nil {
		log.Error("Personalized generation failed", "error", err)
		if ferr := g.db.FailRun(context.WithoutCancel(ctx), userID, err.Error()); ferr != nil {
			log.Error("Failed to mark run failed", "error", ferr)
		}
		return nil, err
	}

	log.Info("Personalized generation completed", "sets", len(sets))
	return g.db.GetRun(ctx, userID)
}

// PageResult reports one page of the batch-splitting generation flow.
type PageResult struct {
	Completed bool `json:"completed"`
	Progress  int  `json:"progress"`
	Total     int  `json:"total"`
	NextPage  int  `json:"nextPage"`
	Generated int  `json:"generated"`
}

// RunGenerationPage generates plan cells [page*PlanPageSize, page*PlanPageSize+PlanPageSize)
// best-effort and commits the successful quiz sets with the run's progress.
// Page 0 starts a fresh run.
func (g *Generator) RunGenerationPage(ctx context.Context, userID string, page int) (*PageResult, error) {
	total := len(QuizPlan)
	start := page * PlanPageSize
	if page < 0 || start >= total {
		return nil, newValidationError("batchIndex", "must be between 0 and %d", (total-1)/PlanPageSize)
	}
	end := start + PlanPageSize
	if end > total {
		end = total
	}

	user, err := g.loadUserInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if page == 0 {
		if _, err := g.db.ResetRun(ctx, userID, user.Interests, RunInProgress); err != nil {
			return nil, err
		}
	} else if _, err := g.db.GetRun(ctx, userID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if _, err := g.db.ResetRun(ctx, userID, user.Interests, RunInProgress); err != nil {
			return nil, err
		}
	}

	log := g.logger.With("user_id", userID, "page", page)
	tasks := make([]Task[QuizSet], 0, end-start)
	for _, cell := range QuizPlan[start:end] {
		tasks = append(tasks, g.planTask(cell, user.Interests, nil))
	}

	sets, err := RunTasks(ctx, tasks, RunOptions{
		Limit: PlanPageSize,
		Mode:  BestEffort,
		OnFailure: func(index int, err error) {
			cell := QuizPlan[start+index]
			log.Warn("Quiz set generation failed", "level", cell.Level, "game_mode", cell.GameMode, "error", err)
		},
	})
	if err == nil {
		g.stampQuizSets(userID, sets)
		err = g.db.CommitRunQuizSets(ctx, userID, sets, end, page+1, end >= total)
	}
	if err != nil {
		log.Error("Generation page failed", "error", err)
		if ferr := g.db.FailRun(context.WithoutCancel(ctx), userID, err.Error()); ferr != nil {
			log.Error("Failed to mark run failed", "error", ferr)
		}
		return nil, err
	}

	result := &PageResult{
		Completed: end >= total,
		Progress:  end,
		Total:     total,
		NextPage:  page + 1,
		Generated: len(sets),
	}
	log.Info("Generation page committed", "generated", len(sets), "progress", end, "completed", result.Completed)
	return result, nil
}

// RegenerateQuizSet replaces a quiz set's questions with fresh ones. On
// failure the set returns to pending with the error recorded; it is never
// left regenerating.
func (g *Generator) RegenerateQuizSet(ctx context.Context, quizSetID string) (set *QuizSet, err error) {
	if strings.TrimSpace(quizSetID) == "" {
		return nil, newValidationError("quizSetId", "is required")
	}
	current, err := g.db.MarkQuizSetRegenerating(ctx, quizSetID)
	if err != nil {
		return nil, err
	}

	log := g.logger.With("quiz_set_id", quizSetID)
	settled := false
	defer func() {
		if settled {
			return
		}
		msg := "regeneration aborted"
		if err != nil {
			msg = err.Error()
		}
		if ferr := g.db.FailQuizSetRegeneration(context.WithoutCancel(ctx), quizSetID, msg); ferr != nil {
			log.Error("Failed to reset quiz set after regeneration failure", "error", ferr)
		}
	}()

	seed := g.newSeed()
	log.Info("Regenerating quiz set", "seed", seed)
	questions, err := g.maker.GenerateQuestions(ctx, GenerationRequest{
		Interests:  current.Interests,
		Level:      current.Level,
		GameMode:   current.GameMode,
		Difficulty: current.Difficulty,
		Count:      QuestionsPerQuizSet,
		Regenerate: true,
		Seed:       seed,
	})
	if err != nil {
		log.Error("Quiz set regeneration failed", "error", err)
		return nil, err
	}

	// Prefer questions the learner has not seen in this set.
	fresh, repeats := NewQuestionDedup(current.Questions...).Filter(questions)
	if repeats > 0 {
		log.Warn("Regenerated questions repeat the previous set", "repeats", repeats)
	}
	if len(fresh) > 0 {
		questions = fresh
	}

	if err = g.db.ReplaceQuizSetQuestions(ctx, quizSetID, questions); err != nil {
		return nil, err
	}
	settled = true

	log.Info("Quiz set regenerated", "questions", len(questions))
	return g.db.GetQuizSet(ctx, quizSetID)
}
