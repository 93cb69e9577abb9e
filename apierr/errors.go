// Package apierr defines the error taxonomy for REST request failures.
//
// Every failed request surfaces as exactly one *Error carrying a fixed
// Kind. Classification is total: transport faults, deadline expiry, and
// every non-2xx status range map to a defined kind. Whether a kind is
// worth retrying is not decided here; that belongs to the retry policy.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of a classified error.
type Kind int

const (
	// KindTransport indicates a connection, DNS, or socket-level failure.
	KindTransport Kind = iota
	// KindTimeout indicates a deadline elapsed before a response arrived.
	KindTimeout
	// KindClient indicates an HTTP response with a 4xx status.
	KindClient
	// KindServer indicates an HTTP response with a 5xx status.
	KindServer
	// KindProtocol indicates an unexpected status outside the defined
	// ranges or a malformed body where structure was expected.
	KindProtocol
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindProtocol:
		return "protocol"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// maxBodySnippet caps the response body retained on classified errors.
const maxBodySnippet = 1024

// Error is a classified request failure.
//
// It is immutable once constructed and is the only error shape callers
// receive for request outcomes. Configuration and construction problems
// are reported as plain errors, never as an *Error.
type Error struct {
	Kind      Kind
	Status    int    // HTTP status, 0 when no response was received
	Message   string
	Body      []byte // response body snippet, at most maxBodySnippet bytes
	RequestID string // server correlation ID, if one was returned
	Err       error  // underlying cause, if any
}

func (e *Error) Error() string {
	switch {
	case e.Status > 0 && e.RequestID != "":
		return fmt.Sprintf("%s error %d: %s (request_id: %s)", e.Kind, e.Status, e.Message, e.RequestID)
	case e.Status > 0:
		return fmt.Sprintf("%s error %d: %s", e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the classified kind of err, unwrapping as needed.
// The second return is false when err carries no classification.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is a classified error of kind k.
func IsKind(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

// StatusOf reports the HTTP status carried by err, or 0 when err is not
// classified or no response was received.
func StatusOf(err error) int {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

func snippet(body []byte) []byte {
	if len(body) <= maxBodySnippet {
		return body
	}
	return body[:maxBodySnippet]
}
