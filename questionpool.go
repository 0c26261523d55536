package quizbank

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// InterestsPerQuiz is how many interests a sampled quiz mixes.
const InterestsPerQuiz = 3

// FetchRequest selects a quiz from the approved pools.
type FetchRequest struct {
	Interests   []string `json:"interests"`
	Level       Level    `json:"level"`
	GameMode    string   `json:"gameMode"`
	PerInterest int      `json:"perInterest"`
}

// approvedSource is the read side of the store the pool samples from.
type approvedSource interface {
	ApprovedQuestions(ctx context.Context, interest string, level Level, gameMode string) ([]Question, error)
}

// QuestionPool samples quizzes from approved template questions
type QuestionPool struct {
	source approvedSource
	logger *Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewQuestionPool creates a new question pool seeded from the clock.
func NewQuestionPool(source approvedSource, logger *Logger) *QuestionPool {
	seed := uint64(time.Now().UnixNano())
	return NewQuestionPoolWithRand(source, rand.New(rand.NewPCG(seed, seed>>1|1)), logger)
}

// NewQuestionPoolWithRand creates a pool that shuffles with rng.
func NewQuestionPoolWithRand(source approvedSource, rng *rand.Rand, logger *Logger) *QuestionPool {
	return &QuestionPool{
		source: source,
		logger: orNop(logger).With("component", "questionpool"),
		rng:    rng,
	}
}

// FetchQuiz takes up to PerInterest random approved questions from each of the
// three interests and returns them shuffled together. An interest with no
// approved questions contributes nothing.
func (qp *QuestionPool) FetchQuiz(ctx context.Context, req FetchRequest) ([]Question, error) {
	if len(req.Interests) != InterestsPerQuiz {
		return nil, newValidationError("interests", "exactly %d interests are required, got %d", InterestsPerQuiz, len(req.Interests))
	}
	if !req.Level.Valid() {
		return nil, newValidationError("level", "unknown CEFR level %q", req.Level)
	}
	if !ValidGameMode(req.GameMode) {
		return nil, newValidationError("gameMode", "unknown game mode %q", req.GameMode)
	}
	perInterest := req.PerInterest
	if perInterest <= 0 {
		perInterest = 5
	}

	quiz := make([]Question, 0, perInterest*len(req.Interests))
	for _, interest := range req.Interests {
		questions, err := qp.source.ApprovedQuestions(ctx, interest, req.Level, req.GameMode)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			qp.logger.Warn("No approved questions for interest",
				"interest", interest, "level", req.Level, "game_mode", req.GameMode)
			continue
		}
		qp.shuffle(questions)
		if len(questions) > perInterest {
			questions = questions[:perInterest]
		}
		quiz = append(quiz, questions...)
	}

	qp.shuffle(quiz)
	qp.logger.Debug("Fetched quiz", "questions", len(quiz), "level", req.Level, "game_mode", req.GameMode)
	return quiz, nil
}

// shuffle is an in-place Fisher-Yates shuffle.
func (qp *QuestionPool) shuffle(questions []Question) {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	for i := len(questions) - 1; i > 0; i-- {
		j := qp.rng.IntN(i + 1)
		questions[i], questions[j] = questions[j], questions[i]
	}
}
