// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service and run context and provides
// trace ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to w (stdout when nil) with the service name and
// a fresh run ID embedded.
func Init(service string, level slog.Level, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
		slog.String("run_id", NewRunID()),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// NewRunID returns a random identifier for one process run.
func NewRunID() string {
	return uuid.NewString()
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// FileOptions controls the size-rotated JSONL file behind Open.
type FileOptions struct {
	Path       string
	MaxSizeMB  int // rotate after this many megabytes; <= 0 uses 5
	MaxBackups int // rotated files kept; 0 keeps all, < 0 uses 3
}

type teeFile struct {
	io.Writer
	f *lumberjack.Logger
}

func (t *teeFile) Close() error { return t.f.Close() }

// Open returns a writer that tees stdout and a size-rotated JSONL file. An
// empty path returns stdout alone with a no-op Close.
func Open(opts FileOptions) (io.WriteCloser, error) {
	return openTee(os.Stdout, opts)
}

func openTee(stdout io.Writer, opts FileOptions) (io.WriteCloser, error) {
	if opts.Path == "" {
		return nopCloser{stdout}, nil
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("log dir %s: %w", dir, err)
		}
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 5
	}
	if opts.MaxBackups < 0 {
		opts.MaxBackups = 3
	}
	f := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	return &teeFile{Writer: io.MultiWriter(stdout, f), f: f}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a symbol and candle time.
// Format: "{symbol}-{unixMilli}", so every event about one candle shares it.
func GenerateTraceID(symbol string, candle time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, candle.UnixMilli())
}

// LogWithTrace returns slog attributes including the trace ID from context.
// Usage: slog.Info("msg", logger.LogWithTrace(ctx)...)
func LogWithTrace(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
