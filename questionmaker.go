package quizbank

import (
	"context"
	"fmt"
	"strings"
)

// GenerationRequest describes one generation cell.
type GenerationRequest struct {
	Interests  []string
	Level      Level
	GameMode   string
	Difficulty string
	Count      int

	Regenerate bool
	Seed       string

	// Transcript, when set, receives every prompt and raw completion.
	Transcript *LLMLogger
}

func (r GenerationRequest) cellName() string {
	return fmt.Sprintf("%s/%s/%s", strings.Join(r.Interests, "+"), r.Level, r.GameMode)
}

// QuestionMaker turns a GenerationRequest into validated questions: it builds
// the prompt, calls the completer under the retry policy and checks the output.
type QuestionMaker struct {
	completer TextCompleter
	checker   *QuestionChecker
	retry     RetryPolicy
	logger    *Logger
}

// NewQuestionMaker creates a new question maker around an injected completer.
func NewQuestionMaker(completer TextCompleter, retry RetryPolicy, logger *Logger) *QuestionMaker {
	logger = orNop(logger)
	return &QuestionMaker{
		completer: completer,
		checker:   NewQuestionChecker(logger),
		retry:     retry,
		logger:    logger,
	}
}

// GenerateQuestions generates up to req.Count validated questions. Fewer than
// requested is a warning; zero after all retries is ErrNoValidQuestions.
func (qm *QuestionMaker) GenerateQuestions(ctx context.Context, req GenerationRequest) ([]Question, error) {
	if !req.Level.Valid() {
		return nil, newValidationError("level", "unknown CEFR level %q", req.Level)
	}
	if req.Difficulty == "" {
		req.Difficulty = DifficultyForLevel(req.Level)
	}

	prompt, err := BuildPrompt(PromptRequest{
		Level:      req.Level,
		Interests:  req.Interests,
		GameMode:   req.GameMode,
		Difficulty: req.Difficulty,
		Count:      req.Count,
		Regenerate: req.Regenerate,
		Seed:       req.Seed,
	})
	if err != nil {
		return nil, err
	}

	cell := req.cellName()
	log := qm.logger.With("cell", cell)
	log.Info("Generating questions", "count", req.Count, "regenerate", req.Regenerate)

	questions, err := Retry(ctx, qm.retry, log, func(ctx context.Context) ([]Question, error) {
		req.Transcript.LogLLMRequest(cell, prompt)
		raw, err := qm.completer.Complete(ctx, prompt)
		if err != nil {
			req.Transcript.LogError(cell, err)
			return nil, err
		}
		req.Transcript.LogLLMResponse(cell, raw)

		result, err := qm.checker.Check(raw, req.Count)
		if err != nil {
			req.Transcript.LogError(cell, err)
			return nil, err
		}
		req.Transcript.LogCheckResult(cell, result)

		if len(result.Questions) == 0 {
			return nil, fmt.Errorf("%w: %d candidates dropped", ErrNoValidQuestions, result.Dropped)
		}
		return result.Questions, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s questions: %w", cell, err)
	}

	if len(questions) != req.Count {
		log.Warn("Generated fewer questions than requested", "expected", req.Count, "got", len(questions))
	} else {
		log.Info("Generated questions", "count", len(questions))
	}
	return questions, nil
}
