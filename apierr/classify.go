package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// FromError classifies a failure that produced no HTTP response. Deadline
// expiry and cancellation map to KindTimeout, as do transport timeouts;
// everything else (connection refused, DNS, TLS, resets) is KindTransport.
// An error that is already classified passes through unchanged, so the
// mapping is idempotent. Returns nil only for a nil error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	kind := KindTransport
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}

	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// FromResponse classifies a received HTTP response. It returns nil for 2xx
// statuses, which flow through unclassified. 4xx maps to KindClient, 5xx
// to KindServer, and anything else to KindProtocol.
//
// Structured error bodies of the form {"error": ..., "message": ...,
// "request_id": ...} contribute the message and correlation ID; otherwise
// the body snippet itself serves as the message.
func FromResponse(resp *http.Response, body []byte) *Error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	kind := KindProtocol
	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		kind = KindClient
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		kind = KindServer
	}

	e := &Error{
		Kind:   kind,
		Status: resp.StatusCode,
		Body:   snippet(body),
	}

	var errResp struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		e.RequestID = errResp.RequestID
		switch {
		case errResp.Error != "":
			e.Message = errResp.Error
		case errResp.Message != "":
			e.Message = errResp.Message
		}
	}

	if e.Message == "" {
		if msg := strings.TrimSpace(string(e.Body)); msg != "" {
			e.Message = msg
		} else if txt := http.StatusText(resp.StatusCode); txt != "" {
			e.Message = txt
		} else {
			e.Message = "status code " + strconv.Itoa(resp.StatusCode)
		}
	}
	if e.RequestID == "" {
		e.RequestID = resp.Header.Get("X-Request-Id")
	}

	return e
}

// Protocol builds a KindProtocol error for responses whose body could not
// be interpreted as expected, such as a JSON decode failure on a 2xx.
func Protocol(message string, cause error) *Error {
	return &Error{Kind: KindProtocol, Message: message, Err: cause}
}
