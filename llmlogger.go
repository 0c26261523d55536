package quizbank

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LLMLogger writes a transcript of every prompt and raw completion for one
// generation run (a template batch or a user's plan) to its own file.
// A nil *LLMLogger is valid and discards everything.
type LLMLogger struct {
	file  *os.File
	mu    sync.Mutex
	runID string
}

// NewLLMLogger creates dir/<runID>.log and writes a header with the run parameters.
func NewLLMLogger(dir, runID string, params map[string]string) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", sanitizeFilename(runID)))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}

	logger := &LLMLogger{file: file, runID: runID}

	logger.Logf("=== Generation Transcript ===\n")
	logger.Logf("Run ID: %s\n", runID)
	for k, v := range params {
		logger.Logf("%s: %s\n", k, v)
	}
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("=============================\n\n")

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf(format, args...)
}

func (ll *LLMLogger) logf(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs a prompt sent for the given cell.
func (ll *LLMLogger) LogLLMRequest(cell, prompt string) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf("=== LLM REQUEST (%s) ===\n", cell)
	ll.logf("Prompt:\n%s\n", prompt)
	ll.logf("=====================\n\n")
}

// LogLLMResponse logs the raw completion received for the given cell.
func (ll *LLMLogger) LogLLMResponse(cell, response string) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf("=== LLM RESPONSE (%s) ===\n", cell)
	ll.logf("Response:\n%s\n", response)
	ll.logf("======================\n\n")
}

// LogCheckResult logs how many items a completion yielded and why others were dropped.
func (ll *LLMLogger) LogCheckResult(cell string, result *CheckResult) {
	if ll == nil || result == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf("Cell %s: %d valid, %d dropped\n", cell, len(result.Questions), result.Dropped)
	for _, reason := range result.Reasons {
		ll.logf("  dropped %s\n", reason)
	}
}

// LogError logs a failed attempt for the given cell.
func (ll *LLMLogger) LogError(cell string, err error) {
	ll.Logf("Cell %s: ERROR %v\n", cell, err)
}

// Close closes the log file
func (ll *LLMLogger) Close() error {
	if ll == nil {
		return nil
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file != nil {
		ll.logf("=== Generation Complete ===\n")
		ll.logf("Completed: %s\n", time.Now().Format(time.RFC3339))
		err := ll.file.Close()
		ll.file = nil
		return err
	}
	return nil
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
