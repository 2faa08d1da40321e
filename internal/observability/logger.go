package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog for structured logging
type Logger struct {
	logger *slog.Logger
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// NewLogger creates a new structured logger
func NewLogger(config LogConfig) *Logger {
	level := slog.LevelInfo
	switch strings.ToLower(config.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// Results go to stdout; logs default to stderr.
	output := config.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &Logger{logger: slog.New(handler)}
}

// WithContext adds the run, task and trial fields carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var args []any
	if runID := RunIDFromContext(ctx); runID != "" {
		args = append(args, "run_id", runID)
	}
	if taskID, ok := ctx.Value(taskIDKey).(string); ok {
		args = append(args, "task_id", taskID)
	}
	if trial, ok := ctx.Value(trialKey).(int); ok {
		args = append(args, "trial", trial)
	}
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...)}
}

// With adds additional fields to the logger
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// Enabled reports whether level would be emitted.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

// Debug logs at debug level
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs at info level
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs at warn level
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs at error level
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	taskIDKey contextKey = "task_id"
	trialKey  contextKey = "trial"
)

// ContextWithRunID tags ctx with the batch run id.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the batch run id from ctx.
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		return runID
	}
	return ""
}

// ContextWithTrial tags ctx with the task and trial a worker is running.
func ContextWithTrial(ctx context.Context, taskID string, trial int) context.Context {
	ctx = context.WithValue(ctx, taskIDKey, taskID)
	return context.WithValue(ctx, trialKey, trial)
}

// TrialFromContext extracts the task id and trial index set by
// ContextWithTrial.
func TrialFromContext(ctx context.Context) (string, int, bool) {
	taskID, ok := ctx.Value(taskIDKey).(string)
	if !ok {
		return "", 0, false
	}
	trial, ok := ctx.Value(trialKey).(int)
	return taskID, trial, ok
}
