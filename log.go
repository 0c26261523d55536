package quizbank

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin key/value wrapper around a zap sugared logger. Loggers
// derived with With share their parent's level.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
	level         zap.AtomicLevel
}

// NewLogger builds a logger for the given mode ("prod" or "dev").
// Verbose mode enables debug output, which is where Verbose writes.
func NewLogger(mode string, verbose bool) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	l := newLogger(zapLogger, cfg.Level)
	l.SetVerbose(verbose)
	return l, nil
}

func newLogger(zapLogger *zap.Logger, level zap.AtomicLevel) *Logger {
	return &Logger{SugaredLogger: zapLogger.Sugar(), level: level}
}

// NopLogger discards everything. Used by tests.
func NopLogger() *Logger {
	return newLogger(zap.NewNop(), zap.NewAtomicLevelAt(zapcore.InfoLevel))
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, keysAndValues...)
}

func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(keysAndValues...), level: l.level}
}

// SetVerbose switches debug output on or off for this logger and every
// logger derived from it.
func (l *Logger) SetVerbose(verbose bool) {
	if verbose {
		l.level.SetLevel(zapcore.DebugLevel)
	} else {
		l.level.SetLevel(zapcore.InfoLevel)
	}
}

// IsVerbose reports whether debug output is on.
func (l *Logger) IsVerbose() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

// Verbose logs only when verbose mode is enabled
func (l *Logger) Verbose(msg string, keysAndValues ...interface{}) {
	if l.IsVerbose() {
		l.SugaredLogger.Debugw(msg, keysAndValues...)
	}
}

func orNop(l *Logger) *Logger {
	if l == nil {
		return NopLogger()
	}
	return l
}
