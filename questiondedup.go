package quizbank

import (
	"strings"
	"unicode"
)

// QuestionDedup drops questions whose normalized text (passage plus question)
// was already seen, either earlier in the same batch or in a seeded set of
// existing questions for the cell.
type QuestionDedup struct {
	seen map[string]struct{}
}

// NewQuestionDedup creates a new question deduplicator
func NewQuestionDedup(existing ...Question) *QuestionDedup {
	qd := &QuestionDedup{seen: make(map[string]struct{}, len(existing))}
	for _, q := range existing {
		qd.seen[dedupKey(q)] = struct{}{}
	}
	return qd
}

// IsDuplicate reports whether q was seen before and records it otherwise.
func (qd *QuestionDedup) IsDuplicate(q Question) bool {
	key := dedupKey(q)
	if _, ok := qd.seen[key]; ok {
		return true
	}
	qd.seen[key] = struct{}{}
	return false
}

// Filter returns the questions that are not duplicates, in order, and how many were dropped.
func (qd *QuestionDedup) Filter(questions []Question) ([]Question, int) {
	out := make([]Question, 0, len(questions))
	dropped := 0
	for _, q := range questions {
		if qd.IsDuplicate(q) {
			dropped++
			continue
		}
		out = append(out, q)
	}
	return out, dropped
}

func dedupKey(q Question) string {
	return normalizeText(q.Passage) + "|" + normalizeText(q.Question)
}

func normalizeText(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return sb.String()
}
