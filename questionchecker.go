package quizbank

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

var (
	codeFencePattern     = regexp.MustCompile("```[a-zA-Z]*\\s*([\\s\\S]*?)\\s*```")
	adjacentArrayPattern = regexp.MustCompile(`\]\s*\[`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	arraySpanPattern     = regexp.MustCompile(`\[[\s\S]*\]`)

	smartQuoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
)

// CheckResult is the outcome of checking one raw completion: the items that
// passed validation and how many candidates were dropped.
type CheckResult struct {
	Questions []Question
	Dropped   int
	Reasons   []string
}

// QuestionChecker cleans raw model output and validates it against the
// question schema. Invalid items are dropped, never fatal on their own.
type QuestionChecker struct {
	logger *Logger
}

// NewQuestionChecker creates a new question checker
func NewQuestionChecker(logger *Logger) *QuestionChecker {
	return &QuestionChecker{logger: orNop(logger)}
}

// Check parses raw and returns the valid items, at most expected of them when
// expected > 0. ErrMalformedResponse and ErrInvalidShape are the only errors;
// an empty result is reported through CheckResult, not as an error.
func (qc *QuestionChecker) Check(raw string, expected int) (*CheckResult, error) {
	parsed, err := qc.parse(raw)
	if err != nil {
		return nil, err
	}

	shape, candidates := classifyShape(parsed)
	if shape == shapeUnknown {
		return nil, fmt.Errorf("%w: expected an array or an object with a quiz/questions array, got %T", ErrInvalidShape, parsed)
	}
	qc.logger.Verbose("Decoded model response", "shape", shape.String(), "candidates", len(candidates))

	schema, err := compiledItemSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile question schema: %w", err)
	}

	result := &CheckResult{Questions: make([]Question, 0, len(candidates))}
	for idx, candidate := range candidates {
		question, reason := validateItem(schema, candidate)
		if reason != "" {
			result.Dropped++
			result.Reasons = append(result.Reasons, fmt.Sprintf("item %d: %s", idx+1, reason))
			qc.logger.Warn("Dropping invalid question", "index", idx+1, "reason", reason)
			continue
		}
		result.Questions = append(result.Questions, question)
	}

	if expected > 0 && len(result.Questions) > expected {
		qc.logger.Warn("Model returned more questions than requested, truncating",
			"expected", expected, "got", len(result.Questions))
		result.Questions = result.Questions[:expected]
	}
	return result, nil
}

// parse sanitizes raw and decodes it, falling back to the first [...] span.
func (qc *QuestionChecker) parse(raw string) (interface{}, error) {
	cleaned := SanitizeResponse(raw)

	parsed, err := decodeJSON(cleaned)
	if err == nil {
		return parsed, nil
	}
	qc.logger.Warn("JSON parse failed, attempting recovery", "error", err, "raw", truncateForLog(cleaned))

	span := arraySpanPattern.FindString(cleaned)
	if span == "" {
		return nil, fmt.Errorf("%w: no JSON array found: %v", ErrMalformedResponse, err)
	}
	recovered, err := decodeJSON(trailingCommaPattern.ReplaceAllString(span, "$1"))
	if err != nil {
		return nil, fmt.Errorf("%w: unrecoverable JSON: %v", ErrMalformedResponse, err)
	}
	return recovered, nil
}

// SanitizeResponse strips code fences and repairs the common JSON artifacts
// models produce: adjacent arrays, trailing commas and smart quotes.
func SanitizeResponse(raw string) string {
	fixed := strings.TrimSpace(codeFencePattern.ReplaceAllString(raw, "$1"))
	fixed = adjacentArrayPattern.ReplaceAllString(fixed, ",")
	fixed = trailingCommaPattern.ReplaceAllString(fixed, "$1")
	return smartQuoteReplacer.Replace(fixed)
}

func decodeJSON(text string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// responseShape tags the accepted top-level response layouts.
type responseShape int

const (
	shapeUnknown responseShape = iota
	shapeArray
	shapeQuizField
	shapeQuestionsField
)

func (s responseShape) String() string {
	switch s {
	case shapeArray:
		return "array"
	case shapeQuizField:
		return "quiz"
	case shapeQuestionsField:
		return "questions"
	default:
		return "unknown"
	}
}

func classifyShape(v interface{}) (responseShape, []interface{}) {
	switch t := v.(type) {
	case []interface{}:
		return shapeArray, t
	case map[string]interface{}:
		if items, ok := t["quiz"].([]interface{}); ok {
			return shapeQuizField, items
		}
		if items, ok := t["questions"].([]interface{}); ok {
			return shapeQuestionsField, items
		}
	}
	return shapeUnknown, nil
}

// validateItem returns the normalized question, or a non-empty drop reason.
func validateItem(schema *gojsonschema.Schema, candidate interface{}) (Question, string) {
	item, ok := candidate.(map[string]interface{})
	if !ok {
		return Question{}, fmt.Sprintf("expected an object, got %T", candidate)
	}

	if parts, ok := item["question"].([]interface{}); ok {
		if joined, ok := joinStrings(parts); ok {
			item["question"] = joined
		}
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(item))
	if err != nil {
		return Question{}, err.Error()
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Question{}, strings.Join(msgs, "; ")
	}

	idx, err := item["correctIndex"].(json.Number).Float64()
	if err != nil {
		return Question{}, fmt.Sprintf("correctIndex: %v", err)
	}

	rawOptions := item["options"].([]interface{})
	options := make([]string, len(rawOptions))
	for i, opt := range rawOptions {
		options[i] = capitalizeFirst(opt.(string))
	}

	q := Question{
		Question:     capitalizeFirst(item["question"].(string)),
		Options:      options,
		CorrectIndex: int(idx),
		Explanation:  capitalizeFirst(item["explanation"].(string)),
		Clue:         capitalizeFirst(item["clue"].(string)),
	}
	if passage, ok := item["passage"].(string); ok {
		q.Passage = passage
	}
	return q, ""
}

func joinStrings(parts []interface{}) (string, bool) {
	strs := make([]string, 0, len(parts))
	for _, p := range parts {
		s, ok := p.(string)
		if !ok {
			return "", false
		}
		strs = append(strs, s)
	}
	return strings.Join(strs, " "), true
}

func capitalizeFirst(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	upper := unicode.ToUpper(r)
	if upper == r {
		return text
	}
	var buf bytes.Buffer
	buf.WriteRune(upper)
	buf.WriteString(text[size:])
	return buf.String()
}

func truncateForLog(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
