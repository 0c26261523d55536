package quizbank

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
)

type mapSource map[string][]Question

func (m mapSource) ApprovedQuestions(ctx context.Context, interest string, level Level, gameMode string) ([]Question, error) {
	// Hand out a copy; the pool shuffles in place.
	return append([]Question(nil), m[PoolID(interest, level, gameMode)]...), nil
}

func poolQuestions(prefix string, n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{Question: fmt.Sprintf("%s %d", prefix, i)}
	}
	return qs
}

func TestFetchQuizMissingInterest(t *testing.T) {
	src := mapSource{
		PoolID("Friendship", LevelA1, ModeGrammar):   poolQuestions("friend", 8),
		PoolID("Music & Arts", LevelA1, ModeGrammar): poolQuestions("music", 3),
	}
	pool := NewQuestionPoolWithRand(src, rand.New(rand.NewPCG(7, 9)), nil)

	quiz, err := pool.FetchQuiz(context.Background(), FetchRequest{
		Interests: []string{"Friendship", "Music & Arts", "Sports & Games"},
		Level:     LevelA1,
		GameMode:  ModeGrammar,
	})
	if err != nil {
		t.Fatalf("FetchQuiz: %v", err)
	}
	if len(quiz) != 8 {
		t.Fatalf("got %d questions, want 5+3", len(quiz))
	}
	seen := make(map[string]bool)
	for _, q := range quiz {
		if seen[q.Question] {
			t.Fatalf("question %q sampled twice", q.Question)
		}
		seen[q.Question] = true
	}
}

func TestFetchQuizIsDeterministicForSeed(t *testing.T) {
	src := mapSource{
		PoolID("A", LevelB2, ModeVocabulary): poolQuestions("a", 20),
		PoolID("B", LevelB2, ModeVocabulary): poolQuestions("b", 20),
		PoolID("C", LevelB2, ModeVocabulary): poolQuestions("c", 20),
	}
	req := FetchRequest{Interests: []string{"A", "B", "C"}, Level: LevelB2, GameMode: ModeVocabulary, PerInterest: 4}

	fetch := func() []Question {
		quiz, err := NewQuestionPoolWithRand(src, rand.New(rand.NewPCG(1, 1)), nil).FetchQuiz(context.Background(), req)
		if err != nil {
			t.Fatalf("FetchQuiz: %v", err)
		}
		return quiz
	}
	a, b := fetch(), fetch()
	if len(a) != 12 {
		t.Fatalf("got %d questions, want 12", len(a))
	}
	for i := range a {
		if a[i].Question != b[i].Question {
			t.Fatalf("same seed produced different quizzes at %d: %q vs %q", i, a[i].Question, b[i].Question)
		}
	}
}

func TestFetchQuizValidation(t *testing.T) {
	pool := NewQuestionPool(mapSource{}, nil)
	cases := map[string]FetchRequest{
		"two interests": {Interests: []string{"a", "b"}, Level: LevelA1, GameMode: ModeGrammar},
		"bad level":     {Interests: []string{"a", "b", "c"}, Level: "D1", GameMode: ModeGrammar},
		"bad mode":      {Interests: []string{"a", "b", "c"}, Level: LevelA1, GameMode: "Puzzles"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := pool.FetchQuiz(context.Background(), req); !IsValidationError(err) {
				t.Fatalf("err=%v, want validation error", err)
			}
		})
	}
}

func TestFetchQuizFromStore(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewModerator(db, nil)
	for _, interest := range []string{"Friendship", "Music & Arts", "Family Values"} {
		_, qs := seedBatch(t, db, interest, LevelC1, ModeTranslation, 7)
		if _, err := m.Approve(ctx, questionIDs(qs[:6]), "a"); err != nil {
			t.Fatalf("Approve: %v", err)
		}
	}

	quiz, err := NewQuestionPool(db, nil).FetchQuiz(ctx, FetchRequest{
		Interests: []string{"Friendship", "Music & Arts", "Family Values"},
		Level:     LevelC1,
		GameMode:  ModeTranslation,
	})
	if err != nil {
		t.Fatalf("FetchQuiz: %v", err)
	}
	if len(quiz) != 15 {
		t.Fatalf("got %d questions, want 15", len(quiz))
	}
	for _, q := range quiz {
		if len(q.Options) != 4 {
			t.Fatalf("question without options: %+v", q)
		}
	}
}
