package quizbank

import "testing"

func TestQuizPlan(t *testing.T) {
	if len(QuizPlan) != 30 {
		t.Fatalf("plan has %d cells, want 30", len(QuizPlan))
	}
	seen := make(map[string]bool)
	for i, cell := range QuizPlan {
		id := QuizSetID("u", cell)
		if seen[id] {
			t.Fatalf("duplicate plan cell %s", id)
		}
		seen[id] = true
		if QuizSetNumber(cell.GameMode, cell.Level) != i+1 {
			t.Fatalf("cell %d has number %d", i, QuizSetNumber(cell.GameMode, cell.Level))
		}
		if cell.Difficulty != DifficultyForLevel(cell.Level) {
			t.Fatalf("cell %d difficulty %s", i, cell.Difficulty)
		}
	}
	if QuizPlan[0].GameMode != ModeVocabulary || QuizPlan[0].Level != LevelA1 {
		t.Fatalf("plan starts with %+v", QuizPlan[0])
	}
	if QuizPlan[29].GameMode != ModeReadingComprehension || QuizPlan[29].Level != LevelC2 {
		t.Fatalf("plan ends with %+v", QuizPlan[29])
	}
	if QuizSetNumber("Spelling", LevelA1) != 0 {
		t.Fatal("unknown mode has a plan number")
	}
}

func TestDeterministicIDs(t *testing.T) {
	if got := PoolID("Music & Arts", LevelB2, ModeGrammar); got != "Music & Arts_B2_Grammar" {
		t.Fatalf("PoolID=%q", got)
	}
	batch := BatchID("Friendship", LevelA1, ModeVocabulary, 3)
	if batch != "Friendship_A1_Vocabulary_batch3" {
		t.Fatalf("BatchID=%q", batch)
	}
	if got := TemplateQuestionID(batch, 12); got != "Friendship_A1_Vocabulary_batch3_q12" {
		t.Fatalf("TemplateQuestionID=%q", got)
	}
	cell := PlanCell{Level: LevelC1, GameMode: ModeSentenceConstruction, Difficulty: DifficultyHard}
	if got := QuizSetID("user42", cell); got != "user42_C1_SentenceConstruction_hard" {
		t.Fatalf("QuizSetID=%q", got)
	}
}

func TestDifficultyForLevel(t *testing.T) {
	want := map[Level]string{
		LevelA1: DifficultyEasy, LevelA2: DifficultyEasy,
		LevelB1: DifficultyMedium, LevelB2: DifficultyMedium,
		LevelC1: DifficultyHard, LevelC2: DifficultyHard,
	}
	for level, d := range want {
		if got := DifficultyForLevel(level); got != d {
			t.Fatalf("DifficultyForLevel(%s)=%s, want %s", level, got, d)
		}
	}
}
