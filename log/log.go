// Package log provides the leveled, structured key-value logger every
// package in this module uses (spec.md §10.1). It mirrors the teacher's own
// log package idiom — Debug/Info/Warn/Error/Crit calls taking an alternating
// key/value argument list — built on top of log/slog rather than a bespoke
// formatter.
package log

import (
	"context"
	"log/slog"
	"os"
)

var root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetDefault replaces the process-wide logger, e.g. to redirect to a file or
// raise the handler's level. Intended to be called once at startup
// (cmd/executorctl), never mid-run.
func SetDefault(l *slog.Logger) { root = l }

func kvArgs(ctx []interface{}) []any {
	args := make([]any, len(ctx))
	for i, v := range ctx {
		args[i] = v
	}
	return args
}

// Debug logs fine-grained diagnostic detail: speculative-execution retries,
// cache hits/misses, per-stage pipeline timings.
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, kvArgs(ctx)...) }

// Info logs a normal, expected lifecycle event: block committed, config
// loaded, server listening.
func Info(msg string, ctx ...interface{}) { root.Info(msg, kvArgs(ctx)...) }

// Warn logs a recoverable but noteworthy condition: a transaction discarded,
// a reconfiguration attempt refused after startup.
func Warn(msg string, ctx ...interface{}) { root.Warn(msg, kvArgs(ctx)...) }

// Error logs a failure the caller handles but that an operator should see.
func Error(msg string, ctx ...interface{}) { root.Error(msg, kvArgs(ctx)...) }

// Crit logs a fatal, unrecoverable condition and terminates the process —
// reserved for the genuinely-impossible paths spec.md §7 names (storage
// corruption, encoding failures on values this module itself produced).
// Never used for an ordinary, recoverable error.
func Crit(msg string, ctx ...interface{}) {
	root.Log(context.Background(), slog.LevelError, msg, kvArgs(ctx)...)
	os.Exit(1)
}
