// Package retry provides bounded retry with exponential back-off: a pure
// Policy that decides whether and how long to wait after a failed attempt,
// and a Scope that re-runs units of work under a policy.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/restfoundry/restbase-go/apierr"
)

// Defaults used by DefaultPolicy.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultDelayCap    = 10 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitter      = 0.2
)

// Policy decides whether a failed attempt is retried and how long to wait
// first. It is a pure value: given the same inputs and the same Rand
// source it always produces the same answers, so it is testable without
// real timers.
//
// Retry eligibility is split along two axes. Errors that carry an HTTP
// status are gated on RetryableStatuses; errors without one (transport
// faults, deadline expiry) are gated on RetryableKinds. Classification of
// an error into a kind is the apierr package's concern and is deliberately
// not configurable here.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the back-off before the second attempt.
	BaseDelay time.Duration
	// DelayCap bounds every computed delay, jitter included.
	DelayCap time.Duration
	// Multiplier grows the delay after each attempt. Must be at least 1.
	Multiplier float64
	// Jitter perturbs each delay by up to ± this fraction so concurrent
	// callers do not retry in lockstep. 0 disables jitter.
	Jitter float64
	// RetryableStatuses gates errors carrying an HTTP status.
	// nil means 429 plus every 5xx.
	RetryableStatuses map[int]bool
	// RetryableKinds gates errors carrying no status.
	// nil means transport and timeout failures.
	RetryableKinds map[apierr.Kind]bool
	// Rand supplies jitter randomness in [0, 1). nil means math/rand.
	Rand func() float64
}

// DefaultPolicy returns the stock policy: 3 attempts, 500ms base delay
// doubling up to 10s with 20% jitter, retrying transport and timeout
// failures plus 429 and 5xx statuses.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		DelayCap:    DefaultDelayCap,
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
	}
}

// Statuses builds a status set for RetryableStatuses.
func Statuses(codes ...int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}

// Kinds builds a kind set for RetryableKinds.
func Kinds(kinds ...apierr.Kind) map[apierr.Kind]bool {
	set := make(map[apierr.Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

// Validate checks the policy for internal consistency.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("retry: MaxAttempts must be at least 1")
	}
	if p.BaseDelay < 0 {
		return errors.New("retry: BaseDelay cannot be negative")
	}
	if p.DelayCap < 0 {
		return errors.New("retry: DelayCap cannot be negative")
	}
	if p.DelayCap < p.BaseDelay {
		return errors.New("retry: DelayCap must be at least BaseDelay")
	}
	if p.Multiplier < 1 {
		return errors.New("retry: Multiplier must be at least 1")
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return errors.New("retry: Jitter must be in [0, 1)")
	}
	return nil
}

// ShouldRetry decides whether to run another attempt after the given
// 1-based attempt failed with err, and how long to wait before it.
// It never retries once attempt reaches MaxAttempts.
func (p Policy) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= p.MaxAttempts {
		return false, 0
	}
	if !p.retryable(err) {
		return false, 0
	}
	return true, p.Delay(attempt)
}

func (p Policy) retryable(err error) bool {
	ce := apierr.FromError(err)
	if ce == nil {
		return false
	}
	if ce.Status > 0 {
		if p.RetryableStatuses != nil {
			return p.RetryableStatuses[ce.Status]
		}
		return ce.Status == 429 || (ce.Status >= 500 && ce.Status < 600)
	}
	if p.RetryableKinds != nil {
		return p.RetryableKinds[ce.Kind]
	}
	return ce.Kind == apierr.KindTransport || ce.Kind == apierr.KindTimeout
}

// Delay computes the back-off after the given 1-based attempt:
// min(DelayCap, BaseDelay * Multiplier^(attempt-1)), perturbed by ±Jitter
// and clamped to [0, DelayCap].
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.DelayCap) {
		delay = float64(p.DelayCap)
	}

	if p.Jitter > 0 {
		random := p.Rand
		if random == nil {
			random = rand.Float64
		}
		jitterAmount := delay * p.Jitter
		delay = delay - jitterAmount + random()*2*jitterAmount
	}

	if delay < 0 {
		delay = 0
	}
	if delay > float64(p.DelayCap) {
		delay = float64(p.DelayCap)
	}
	return time.Duration(delay)
}
