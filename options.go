package restbase

import (
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/restfoundry/restbase-go/retry"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "restbase-go"
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	timeout     time.Duration
	maxAttempts int
	baseDelay   time.Duration
	delayCap    time.Duration
	multiplier  float64
	jitter      bool
	retryOn     []int

	httpClient *http.Client
	logger     *zap.Logger
	observers  []retry.Observer
	auth       Authenticator
	userAgent  string

	// Rate limiting configuration
	limitRPS   float64
	limitBurst int
}

// callConfig holds configuration for a single request.
type callConfig struct {
	query      url.Values
	headers    http.Header
	idempotent *bool
}

// Option configures the client.
type Option func(*clientConfig)

// CallOption configures a single request.
type CallOption func(*callConfig)

// WithTimeout sets the per-attempt timeout.
// Default: 30 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithMaxAttempts sets the total number of attempts per call, including
// the first.
// Default: 3
func WithMaxAttempts(n int) Option {
	return func(c *clientConfig) {
		c.maxAttempts = n
	}
}

// WithBaseDelay sets the back-off delay before the second attempt.
// Default: 500ms
func WithBaseDelay(d time.Duration) Option {
	return func(c *clientConfig) {
		c.baseDelay = d
	}
}

// WithDelayCap sets the upper bound on any computed back-off delay.
// Default: 10 seconds
func WithDelayCap(d time.Duration) Option {
	return func(c *clientConfig) {
		c.delayCap = d
	}
}

// WithBackoffMultiplier sets the factor applied to the delay after each
// failed attempt.
// Default: 2.0
func WithBackoffMultiplier(m float64) Option {
	return func(c *clientConfig) {
		c.multiplier = m
	}
}

// WithJitter enables or disables random perturbation of back-off delays.
// Jitter prevents synchronized retries across concurrent callers.
// Default: enabled
func WithJitter(enabled bool) Option {
	return func(c *clientConfig) {
		c.jitter = enabled
	}
}

// WithRetryableStatusCodes sets the HTTP status codes that trigger a retry.
// Default: 429 and all 5xx
func WithRetryableStatusCodes(codes ...int) Option {
	return func(c *clientConfig) {
		c.retryOn = codes
	}
}

// WithHTTPClient sets a custom HTTP client. The client is used as given;
// set its Timeout field to bound individual attempts.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithLogger sets the logger that receives per-attempt events.
// Default: no-op logger
func WithLogger(log *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = log
	}
}

// WithObservers registers attempt observers alongside the built-in
// logging observer.
func WithObservers(obs ...retry.Observer) Option {
	return func(c *clientConfig) {
		c.observers = append(c.observers, obs...)
	}
}

// WithAuth sets the authenticator applied to every request.
func WithAuth(auth Authenticator) Option {
	return func(c *clientConfig) {
		c.auth = auth
	}
}

// WithRateLimit caps outgoing requests at rps per second with the given
// burst size. Every attempt waits for the limiter before dispatching.
// Default: unlimited
func WithRateLimit(rps float64, burst int) Option {
	return func(c *clientConfig) {
		c.limitRPS = rps
		c.limitBurst = burst
	}
}

// WithUserAgent sets the User-Agent header value.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithQuery merges query parameters into the request URL.
func WithQuery(q url.Values) CallOption {
	return func(c *callConfig) {
		if c.query == nil {
			c.query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				c.query.Add(k, v)
			}
		}
	}
}

// WithCallHeader sets a header on this request only. Call headers
// override the client's defaults.
func WithCallHeader(key, value string) CallOption {
	return func(c *callConfig) {
		if c.headers == nil {
			c.headers = http.Header{}
		}
		c.headers.Set(key, value)
	}
}

// WithIdempotent overrides the verb's default retry eligibility.
// GET, PUT and DELETE requests retry by default; POST and PATCH do not.
func WithIdempotent(ok bool) CallOption {
	return func(c *callConfig) {
		c.idempotent = &ok
	}
}
