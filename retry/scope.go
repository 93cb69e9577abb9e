package retry

import (
	"context"
	"time"

	"github.com/juju/clock"

	"github.com/restfoundry/restbase-go/apierr"
)

// Classifier normalizes a unit-of-work failure into a classified error.
// It must return a non-nil *apierr.Error for every non-nil input.
type Classifier func(error) *apierr.Error

// Attempt describes one execution of a unit of work.
type Attempt struct {
	// Number is the 1-based attempt index.
	Number int
	// Elapsed is how long the attempt ran.
	Elapsed time.Duration
	// Err is the classified outcome; nil means success.
	Err *apierr.Error
}

// Observer receives one event per attempt, successes included.
// Implementations must not block; they run on the calling goroutine.
type Observer interface {
	ObserveAttempt(a Attempt)
}

// Scope re-runs units of work under a Policy until one succeeds or the
// policy declines another attempt. A Scope is safe for concurrent use;
// each Run keeps its own attempt state. The unit of work does not have to
// be an HTTP call: the classifier is part of the scope configuration, and
// only the default is HTTP-flavored.
type Scope struct {
	policy    Policy
	classify  Classifier
	clk       clock.Clock
	observers []Observer
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithClassifier replaces the default classifier (apierr.FromError).
func WithClassifier(fn Classifier) ScopeOption {
	return func(s *Scope) {
		s.classify = fn
	}
}

// WithObserver registers observers for attempt events.
func WithObserver(obs ...Observer) ScopeOption {
	return func(s *Scope) {
		s.observers = append(s.observers, obs...)
	}
}

// WithClock replaces the wall clock used for back-off and timing.
func WithClock(clk clock.Clock) ScopeOption {
	return func(s *Scope) {
		s.clk = clk
	}
}

// NewScope builds a Scope around the given policy.
func NewScope(policy Policy, opts ...ScopeOption) (*Scope, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s := &Scope{
		policy:   policy,
		classify: apierr.FromError,
		clk:      clock.WallClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.classify == nil {
		s.classify = apierr.FromError
	}
	if s.clk == nil {
		s.clk = clock.WallClock
	}

	return s, nil
}

// Run executes op for attempt 1 and, on classified retryable failures,
// keeps re-executing it until an attempt succeeds or the policy gives up.
// The returned error is always the classified failure of the most recent
// attempt, never an earlier one.
//
// Between attempts Run blocks the calling goroutine for the computed
// back-off. If ctx ends during the wait, Run returns the classified
// context error immediately.
func (s *Scope) Run(ctx context.Context, op func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		start := s.clk.Now()
		err := op(ctx)
		elapsed := s.clk.Now().Sub(start)

		if err == nil {
			s.notify(Attempt{Number: attempt, Elapsed: elapsed})
			return nil
		}

		cerr := s.classify(err)
		if cerr == nil {
			cerr = apierr.FromError(err)
		}
		s.notify(Attempt{Number: attempt, Elapsed: elapsed, Err: cerr})

		retry, delay := s.policy.ShouldRetry(attempt, cerr)
		if !retry {
			return cerr
		}
		if err := s.sleep(ctx, delay); err != nil {
			if cerr := s.classify(err); cerr != nil {
				return cerr
			}
			return apierr.FromError(err)
		}
	}
}

// RunResult executes op under the scope and returns its value alongside
// the terminal error.
func RunResult[T any](ctx context.Context, s *Scope, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := s.Run(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = op(ctx)
		return innerErr
	})
	return result, err
}

func (s *Scope) notify(a Attempt) {
	for _, obs := range s.observers {
		obs.ObserveAttempt(a)
	}
}

// sleep blocks for d or until ctx ends, whichever comes first.
func (s *Scope) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := s.clk.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
