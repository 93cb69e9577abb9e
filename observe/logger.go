// Package observe provides sinks for attempt events and scoped logging
// helpers: a zap-backed attempt logger, prometheus attempt metrics, and
// wrappers that time or capture-log arbitrary blocks of work.
package observe

import (
	"go.uber.org/zap"

	"github.com/restfoundry/restbase-go/retry"
)

// AttemptLogger emits one structured log event per attempt: attempt
// number, elapsed time, and outcome. It implements retry.Observer.
type AttemptLogger struct {
	log *zap.Logger
}

// NewAttemptLogger returns an observer logging to log. A nil logger is
// replaced with a no-op.
func NewAttemptLogger(log *zap.Logger) *AttemptLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttemptLogger{log: log}
}

// ObserveAttempt implements retry.Observer. Successes log at debug,
// failures at warn with the classified kind and status.
func (l *AttemptLogger) ObserveAttempt(a retry.Attempt) {
	fields := []zap.Field{
		zap.Int("attempt", a.Number),
		zap.Duration("elapsed", a.Elapsed),
	}

	if a.Err == nil {
		fields = append(fields, zap.String("outcome", "success"))
		l.log.Debug("attempt", fields...)
		return
	}

	fields = append(fields,
		zap.String("outcome", a.Err.Kind.String()),
		zap.Error(a.Err),
	)
	if a.Err.Status > 0 {
		fields = append(fields, zap.Int("status", a.Err.Status))
	}
	l.log.Warn("attempt", fields...)
}
