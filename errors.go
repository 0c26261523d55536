package quizbank

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedResponse means the completion text could not be parsed as JSON,
	// even after the bracket-span recovery pass.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrInvalidShape means the JSON parsed but was not an array, {"quiz": [...]}
	// or {"questions": [...]}.
	ErrInvalidShape = errors.New("invalid response shape")
	// ErrNoValidQuestions means no candidate item survived validation.
	ErrNoValidQuestions = errors.New("no valid questions generated")

	ErrNotFound            = errors.New("not found")
	ErrUnsupportedGameMode = errors.New("unsupported game mode")
	ErrTooManyWrites       = errors.New("too many write operations for one commit")
	ErrNoInterests         = errors.New("user has no interests selected")
)

// ValidationError reports a caller mistake detected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// HTTPStatus maps an error from this package to the status code the admin
// API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidationError(err),
		errors.Is(err, ErrNoValidQuestions),
		errors.Is(err, ErrNoInterests),
		errors.Is(err, ErrUnsupportedGameMode),
		errors.Is(err, ErrTooManyWrites):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
