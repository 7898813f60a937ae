// Package observability provides structured logging, metrics, and tracing
// for the delivery queue.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// NewTextLogger returns a text logger writing to w at the named level.
// Unknown levels fall back to info.
func NewTextLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns logger (or slog.Default when nil) tagged with a
// component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", name))
}

// EnrichLogger adds entry context to a logger.
// Returns a new logger with entry_id, url, and attempt fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, 42, "https://stats.example.com/ingest", 1)
//	enriched.Info("posting") // includes entry_id, url, attempt
func EnrichLogger(logger *slog.Logger, entryID int64, url string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.Int64("entry_id", entryID),
		slog.String("url", url),
		slog.Int("attempt", attempt),
	)
}

// LogDrainStart logs the start of a queue drain.
func LogDrainStart(logger *slog.Logger, found int) {
	if logger == nil {
		return
	}
	logger.Info("queue drain starting",
		slog.Int("found", found),
	)
}

// LogDrainComplete logs drain completion.
func LogDrainComplete(logger *slog.Logger, successful, total int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("queue drain completed",
		slog.Int("successful", successful),
		slog.Int("total", total),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDrainError logs a drain that could not read the queue.
func LogDrainError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("queue drain failed",
		slog.String("error", err.Error()),
	)
}

// LogDelivered logs a delivered entry.
func LogDelivered(logger *slog.Logger, entryID int64, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("entry delivered",
		slog.Int64("entry_id", entryID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogDeliveryError logs a failed delivery that stays queued.
func LogDeliveryError(logger *slog.Logger, entryID int64, err error, retryIn time.Duration) {
	if logger == nil {
		return
	}
	logger.Warn("entry delivery failed",
		slog.Int64("entry_id", entryID),
		slog.String("error", err.Error()),
		slog.Duration("retry_in", retryIn),
	)
}

// LogDropped logs an entry removed by the retry policy.
func LogDropped(logger *slog.Logger, entryID int64, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("entry dropped",
		slog.Int64("entry_id", entryID),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// LogStoreError logs a store failure (non-fatal for the drain).
func LogStoreError(logger *slog.Logger, op string, entryID int64, err error) {
	if logger == nil {
		return
	}
	logger.Warn("store operation failed",
		slog.String("operation", op),
		slog.Int64("entry_id", entryID),
		slog.String("error", err.Error()),
	)
}

// LogPurge logs a retention purge.
func LogPurge(logger *slog.Logger, hours int, includeResponses bool, deleted int) {
	if logger == nil {
		return
	}
	logger.Info("retention purge completed",
		slog.Int("hours", hours),
		slog.Bool("include_responses", includeResponses),
		slog.Int("deleted", deleted),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
