// Package telemetry defines the small logging and metrics interfaces the
// router consumes, with implementations backed by goa.design/clue/log and
// OpenTelemetry metrics plus no-op variants for tests.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log messages. Keyvals are alternating
	// key/value pairs; non-string keys are skipped.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters and timers for run and task outcomes. Tags
	// are alternating key/value pairs.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
	}

	// NoopLogger discards all messages.
	NoopLogger struct{}

	// NoopMetrics discards all measurements.
	NoopMetrics struct{}
)

func (NoopLogger) Debug(context.Context, string, ...any) {}
func (NoopLogger) Info(context.Context, string, ...any)  {}
func (NoopLogger) Warn(context.Context, string, ...any)  {}
func (NoopLogger) Error(context.Context, string, ...any) {}

func (NoopMetrics) IncCounter(string, float64, ...string)        {}
func (NoopMetrics) RecordTimer(string, time.Duration, ...string) {}
