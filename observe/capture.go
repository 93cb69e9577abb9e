package observe

import (
	"time"

	"go.uber.org/zap"
)

// Timed runs fn and logs its duration under the given operation name.
// The error from fn is returned unchanged.
func Timed(log *zap.Logger, name string, fn func() error) error {
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("operation failed",
			zap.String("op", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return err
	}
	log.Debug("operation completed",
		zap.String("op", name),
		zap.Duration("elapsed", elapsed))
	return nil
}

// Capture runs fn and logs the outcome. A panic inside fn is logged
// before being re-raised so crash sites show up in structured output.
func Capture(log *zap.Logger, name string, fn func() error) (err error) {
	if log == nil {
		log = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("operation panicked",
				zap.String("op", name),
				zap.Any("panic", r))
			panic(r)
		}
	}()

	if err = fn(); err != nil {
		log.Error("operation failed",
			zap.String("op", name),
			zap.Error(err))
		return err
	}
	log.Debug("operation completed", zap.String("op", name))
	return nil
}
