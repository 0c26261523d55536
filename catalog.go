package quizbank

import (
	"fmt"
	"strings"
)

// Level is a CEFR proficiency level.
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

// Levels in ascending order.
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

func (l Level) Valid() bool {
	for _, lv := range Levels {
		if lv == l {
			return true
		}
	}
	return false
}

const (
	ModeVocabulary           = "Vocabulary"
	ModeGrammar              = "Grammar"
	ModeTranslation          = "Translation"
	ModeSentenceConstruction = "Sentence Construction"
	ModeReadingComprehension = "Reading Comprehension"
)

// GameModes in plan order.
var GameModes = []string{
	ModeVocabulary,
	ModeGrammar,
	ModeTranslation,
	ModeSentenceConstruction,
	ModeReadingComprehension,
}

func ValidGameMode(mode string) bool {
	for _, m := range GameModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Interests learners can pick from.
var Interests = []string{
	"Adventure Stories",
	"Friendship",
	"Fantasy & Magic",
	"Music & Arts",
	"Sports & Games",
	"Nature & Animals",
	"Filipino Culture",
	"Family Values",
}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// DifficultyForLevel maps A1/A2 to easy, B1/B2 to medium and C1/C2 to hard.
func DifficultyForLevel(level Level) string {
	switch level {
	case LevelA1, LevelA2:
		return DifficultyEasy
	case LevelB1, LevelB2:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

// PlanCell is one (level, mode) combination of the personalized plan.
type PlanCell struct {
	Level      Level  `json:"level"`
	GameMode   string `json:"gameMode"`
	Difficulty string `json:"difficulty"`
}

const (
	// QuestionsPerQuizSet is the size of every personalized quiz set.
	QuestionsPerQuizSet = 15
	// PlanPageSize is how many plan cells one paged invocation generates.
	PlanPageSize = 5
)

// QuizPlan is the fixed 30-cell plan: every game mode crossed with every level,
// game mode major.
var QuizPlan = buildQuizPlan()

func buildQuizPlan() []PlanCell {
	plan := make([]PlanCell, 0, len(GameModes)*len(Levels))
	for _, mode := range GameModes {
		for _, level := range Levels {
			plan = append(plan, PlanCell{Level: level, GameMode: mode, Difficulty: DifficultyForLevel(level)})
		}
	}
	return plan
}

// QuizSetNumber returns the 1-based position of a cell in QuizPlan, or 0.
func QuizSetNumber(gameMode string, level Level) int {
	for i, cell := range QuizPlan {
		if cell.GameMode == gameMode && cell.Level == level {
			return i + 1
		}
	}
	return 0
}

// PoolID is the deterministic approved pool key.
func PoolID(interest string, level Level, gameMode string) string {
	return fmt.Sprintf("%s_%s_%s", interest, level, gameMode)
}

// BatchID is the deterministic template batch key.
func BatchID(interest string, level Level, gameMode string, batchNumber int) string {
	return fmt.Sprintf("%s_batch%d", PoolID(interest, level, gameMode), batchNumber)
}

// TemplateQuestionID is the deterministic key of the index-th question in a batch.
func TemplateQuestionID(batchID string, index int) string {
	return fmt.Sprintf("%s_q%d", batchID, index)
}

// QuizSetID is the deterministic key of a user's quiz set for one plan cell.
func QuizSetID(userID string, cell PlanCell) string {
	mode := strings.Join(strings.Fields(cell.GameMode), "")
	return fmt.Sprintf("%s_%s_%s_%s", userID, cell.Level, mode, cell.Difficulty)
}
