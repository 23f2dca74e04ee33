package imgrank

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/hupe1980/imgrank/knn"
	"github.com/hupe1980/imgrank/pooling"
)

// Logger wraps slog.Logger with imgrank-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithRole adds a role field ("collection" or "query").
func (l *Logger) WithRole(role string) *Logger {
	return &Logger{
		Logger: l.Logger.With("role", role),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// LogLoad logs a feature set load.
func (l *Logger) LogLoad(ctx context.Context, role, path string, rows, dim int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"role", role,
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load completed",
			"role", role,
			"path", path,
			"rows", rows,
			"dim", dim,
		)
	}
}

// LogPoolBatch logs one pooled batch.
func (l *Logger) LogPoolBatch(ctx context.Context, role string, s pooling.BatchStats) {
	l.DebugContext(ctx, "pool batch completed",
		"role", role,
		"batch", s.Index,
		"items", s.Items,
		"duration", s.Duration,
	)
}

// LogSearch logs the search stage.
func (l *Logger) LogSearch(ctx context.Context, s knn.Stats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"k", s.K,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "search completed",
			"queries", s.Queries,
			"k", s.K,
			"mean_nearest", s.MeanNearest,
			"time_per_query", s.MeanTimePerQuery,
			"excluded", s.ExcludedReferences,
		)
	}
}

// LogRankFile logs the rank file write.
func (l *Logger) LogRankFile(ctx context.Context, name string, records, size int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rank file write failed",
			"output", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "rank file written",
			"output", name,
			"records", records,
			"bytes", size,
		)
	}
}
