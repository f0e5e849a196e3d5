package logging

import (
	"context"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fadedpez/wagerline/internal/types"
	"golang.org/x/exp/slog"
)

// Level represents a logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var slogLevels = map[Level]slog.Level{
	DEBUG: slog.LevelDebug,
	INFO:  slog.LevelInfo,
	WARN:  slog.LevelWarn,
	ERROR: slog.LevelError,
}

// ParseLevel converts a level name to a Level, defaulting to INFO
func ParseLevel(name string) Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	}
	return INFO
}

// Logger is a levelled structured logger. Every record carries the caller's
// source location.
type Logger struct {
	handler slog.Handler
	level   Level
}

// NewLogger creates a human-readable logger writing to stdout
func NewLogger(level Level) *Logger {
	return NewTextLogger(os.Stdout, level)
}

// NewTextLogger creates a logger using slog's text format
func NewTextLogger(w io.Writer, level Level) *Logger {
	return &Logger{
		handler: slog.NewTextHandler(w, &slog.HandlerOptions{AddSource: true, Level: slogLevels[level]}),
		level:   level,
	}
}

// NewJSONLogger creates a logger using slog's JSON format
func NewJSONLogger(w io.Writer, level Level) *Logger {
	return &Logger{
		handler: slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: slogLevels[level]}),
		level:   level,
	}
}

// New picks the output format for an environment: text while developing,
// JSON everywhere else
func New(environment string, level Level) *Logger {
	if environment == "development" || environment == "local" {
		return NewTextLogger(os.Stdout, level)
	}
	return NewJSONLogger(os.Stdout, level)
}

// With returns a logger that adds args to every record
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		handler: slog.New(l.handler).With(args...).Handler(),
		level:   l.level,
	}
}

// Component tags every record with the emitting component
func (l *Logger) Component(name string) *Logger {
	return l.With(slog.String("component", name))
}

// Slog exposes the underlying structured logger
func (l *Logger) Slog() *slog.Logger {
	return slog.New(l.handler)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}

	// Skip runtime.Callers, log and the exported wrapper
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	record.Add(args...)
	_ = l.handler.Handle(ctx, record)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// LogError logs a GameError with its code and cause
func (l *Logger) LogError(err error) {
	var gameErr *types.GameError
	if types.As(err, &gameErr) {
		args := []any{
			slog.String("code", string(gameErr.Code)),
			slog.String("message", gameErr.Message),
		}
		if gameErr.Err != nil {
			args = append(args, Err(gameErr.Err))
		}
		l.log(slog.LevelError, "game error occurred", args...)
		return
	}
	l.log(slog.LevelError, "unexpected error", Err(err))
}

// Err renders an error as a structured attribute
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Op names the operation that emitted a record
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// Discard is a logger that drops everything; handy in tests
func Discard() *Logger {
	return NewTextLogger(io.Discard, ERROR+1)
}

// Default logger instance
var Default = NewLogger(INFO)
