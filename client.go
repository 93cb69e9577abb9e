package restbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/restfoundry/restbase-go/apierr"
	"github.com/restfoundry/restbase-go/observe"
	"github.com/restfoundry/restbase-go/retry"
)

// Client is a resilient REST client bound to a single base address.
// It is immutable after construction and safe for concurrent use; retries,
// back-off and error classification happen behind each verb.
type Client struct {
	base      string
	httpc     *http.Client
	auth      Authenticator
	limiter   *rate.Limiter
	log       *zap.Logger
	userAgent string

	// scope retries per the configured policy; oneShot runs a single
	// attempt and serves non-idempotent verbs.
	scope   *retry.Scope
	oneShot *retry.Scope
}

// New creates a client for the given base address.
func New(baseAddress string, opts ...Option) (*Client, error) {
	if baseAddress == "" {
		return nil, ErrMissingBaseAddress
	}
	base, err := url.Parse(baseAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseAddress, err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseAddress, baseAddress)
	}

	cfg := &clientConfig{
		timeout:     defaultTimeout,
		maxAttempts: retry.DefaultMaxAttempts,
		baseDelay:   retry.DefaultBaseDelay,
		delayCap:    retry.DefaultDelayCap,
		multiplier:  retry.DefaultMultiplier,
		jitter:      true,
		userAgent:   defaultUserAgent,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	policy := retry.Policy{
		MaxAttempts: cfg.maxAttempts,
		BaseDelay:   cfg.baseDelay,
		DelayCap:    cfg.delayCap,
		Multiplier:  cfg.multiplier,
	}
	if cfg.jitter {
		policy.Jitter = retry.DefaultJitter
	}
	if len(cfg.retryOn) > 0 {
		policy.RetryableStatuses = retry.Statuses(cfg.retryOn...)
	}

	log := cfg.logger
	if log == nil {
		log = zap.NewNop()
	}

	observers := append([]retry.Observer{observe.NewAttemptLogger(log)}, cfg.observers...)

	scope, err := retry.NewScope(policy, retry.WithObserver(observers...))
	if err != nil {
		return nil, err
	}

	single := policy
	single.MaxAttempts = 1
	oneShot, err := retry.NewScope(single, retry.WithObserver(observers...))
	if err != nil {
		return nil, err
	}

	httpc := cfg.httpClient
	if httpc == nil {
		httpc = cleanhttp.DefaultPooledClient()
		httpc.Timeout = cfg.timeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.limitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.limitRPS), cfg.limitBurst)
	}

	return &Client{
		base:      strings.TrimRight(base.String(), "/"),
		httpc:     httpc,
		auth:      cfg.auth,
		limiter:   limiter,
		log:       log,
		userAgent: cfg.userAgent,
		scope:     scope,
		oneShot:   oneShot,
	}, nil
}

// CloseIdleConnections closes idle connections held by the underlying
// transport.
func (c *Client) CloseIdleConnections() {
	c.httpc.CloseIdleConnections()
}

// Fetch issues a GET request and decodes the response into out.
func (c *Client) Fetch(ctx context.Context, path string, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodGet, path, nil, out, opts)
}

// Create issues a POST request with the given payload and decodes the
// response into out.
func (c *Client) Create(ctx context.Context, path string, payload, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPost, path, payload, out, opts)
}

// Update issues a PUT request with the given payload and decodes the
// response into out.
func (c *Client) Update(ctx context.Context, path string, payload, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPut, path, payload, out, opts)
}

// Patch issues a PATCH request with the given payload and decodes the
// response into out.
func (c *Client) Patch(ctx context.Context, path string, payload, out any, opts ...CallOption) error {
	return c.do(ctx, http.MethodPatch, path, payload, out, opts)
}

// Remove issues a DELETE request.
func (c *Client) Remove(ctx context.Context, path string, opts ...CallOption) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, opts)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any, opts []CallOption) error {
	call := &callConfig{}
	for _, opt := range opts {
		opt(call)
	}

	target, err := c.resolve(path, call.query)
	if err != nil {
		return err
	}

	body, contentType, err := encodePayload(payload)
	if err != nil {
		return err
	}

	c.log.Debug("request", zap.String("method", method), zap.String("url", target))

	op := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := c.newRequest(ctx, method, target, body, contentType, call.headers)
		if err != nil {
			return err
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if apiErr := apierr.FromResponse(resp, raw); apiErr != nil {
			return apiErr
		}

		return decodeResult(raw, out)
	}

	return c.scopeFor(method, call).Run(ctx, op)
}

// resolve joins the base address with path and merges query parameters.
func (c *Client) resolve(path string, query url.Values) (string, error) {
	target := c.base + "/" + strings.TrimLeft(path, "/")

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// newRequest builds a fresh request for one attempt. The body bytes were
// encoded once up front, so every attempt replays identical content.
func (c *Client) newRequest(ctx context.Context, method, target string, body []byte, contentType string, headers http.Header) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())

	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	if c.auth != nil {
		if err := c.auth.Apply(req); err != nil {
			return nil, fmt.Errorf("apply auth: %w", err)
		}
	}

	return req, nil
}

// scopeFor picks the retrying scope for idempotent calls and the
// single-attempt scope otherwise. GET, PUT and DELETE count as idempotent
// unless the call says otherwise.
func (c *Client) scopeFor(method string, call *callConfig) *retry.Scope {
	idempotent := method != http.MethodPost && method != http.MethodPatch
	if call.idempotent != nil {
		idempotent = *call.idempotent
	}
	if idempotent {
		return c.scope
	}
	return c.oneShot
}

// encodePayload marshals the request payload once so retries replay the
// same bytes. url.Values payloads are form-encoded, []byte is sent raw,
// anything else is JSON.
func encodePayload(payload any) ([]byte, string, error) {
	switch p := payload.(type) {
	case nil:
		return nil, "", nil
	case url.Values:
		return []byte(p.Encode()), "application/x-www-form-urlencoded", nil
	case []byte:
		return p, "application/octet-stream", nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("marshal request body: %w", err)
		}
		return data, "application/json", nil
	}
}

// decodeResult unpacks a successful response body. A nil out discards the
// body, *[]byte receives the raw bytes, anything else is JSON-decoded.
func decodeResult(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		*b = raw
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apierr.Protocol("decode response body", err)
	}
	return nil
}
