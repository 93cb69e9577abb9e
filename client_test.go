package restbase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restfoundry/restbase-go/apierr"
	"github.com/restfoundry/restbase-go/retry"
)

// attemptRecorder collects attempt events for assertions.
type attemptRecorder struct {
	mu       sync.Mutex
	attempts []retry.Attempt
}

func (r *attemptRecorder) ObserveAttempt(a retry.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *attemptRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

// countingServer runs a stub whose handler sees the 1-based hit number.
func countingServer(t *testing.T, handler func(hit int, w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(int(hits.Add(1)), w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// newTestClient builds a client against srv with zero back-off so retry
// paths run instantly.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{WithBaseDelay(0), WithDelayCap(0), WithJitter(false)}
	c, err := New(srv.URL, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresBaseAddress(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrMissingBaseAddress)
}

func TestNew_RejectsInvalidBaseAddress(t *testing.T) {
	tests := []struct {
		name string
		base string
	}{
		{"relative path", "/v1/api"},
		{"missing scheme", "api.example.com"},
		{"unparseable", "http://bad host/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.base)
			assert.ErrorIs(t, err, ErrInvalidBaseAddress)
		})
	}
}

func TestNew_RejectsInvalidRetrySettings(t *testing.T) {
	_, err := New("https://api.example.com", WithMaxAttempts(0))
	assert.Error(t, err)

	_, err = New("https://api.example.com", WithBackoffMultiplier(0.5))
	assert.Error(t, err)
}

func TestFetch_RetriesUntilSuccess(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		if hit < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "ada"})
	})

	rec := &attemptRecorder{}
	c := newTestClient(t, srv,
		WithMaxAttempts(3),
		WithRetryableStatusCodes(503),
		WithObservers(rec),
	)

	var out struct {
		Name string `json:"name"`
	}
	err := c.Fetch(context.Background(), "/users/1", &out)
	require.NoError(t, err)
	assert.Equal(t, "ada", out.Name)
	assert.Equal(t, 3, int(hits.Load()))
	assert.Equal(t, 3, rec.count())
}

func TestFetch_ExhaustsAttempts(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := newTestClient(t, srv, WithMaxAttempts(3), WithRetryableStatusCodes(503))

	err := c.Fetch(context.Background(), "/users/1", nil)
	require.Error(t, err)

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindServer, apiErr.Kind)
	assert.Equal(t, 503, apiErr.Status)
	assert.Equal(t, 3, int(hits.Load()), "no attempt beyond the cap")
}

func TestFetch_ClientErrorStopsImmediately(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no such user"}`, http.StatusNotFound)
	})

	c := newTestClient(t, srv, WithMaxAttempts(5))

	err := c.Fetch(context.Background(), "/users/1", nil)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindClient, apiErr.Kind)
	assert.Equal(t, 404, apiErr.Status)
	assert.Equal(t, 1, int(hits.Load()))
}

func TestFetch_DefaultRetryableStatuses(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		if hit == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv, WithMaxAttempts(3))

	require.NoError(t, c.Fetch(context.Background(), "/", nil))
	assert.Equal(t, 2, int(hits.Load()))
}

func TestFetch_StructuredErrorBody(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"missing field","request_id":"req-42"}`))
	})

	c := newTestClient(t, srv)

	err := c.Fetch(context.Background(), "/users", nil)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "missing field", apiErr.Message)
	assert.Equal(t, "req-42", apiErr.RequestID)
}

func TestCreate_SingleAttemptByDefault(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := newTestClient(t, srv, WithMaxAttempts(3), WithRetryableStatusCodes(503))

	err := c.Create(context.Background(), "/orders", map[string]int{"qty": 2}, nil)
	assert.True(t, apierr.IsKind(err, apierr.KindServer))
	assert.Equal(t, 1, int(hits.Load()), "POST must not replay without opt-in")
}

func TestCreate_OptInRetry(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		if hit < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	c := newTestClient(t, srv, WithMaxAttempts(3), WithRetryableStatusCodes(503))

	err := c.Create(context.Background(), "/orders", map[string]int{"qty": 2}, nil,
		WithIdempotent(true))
	require.NoError(t, err)
	assert.Equal(t, 3, int(hits.Load()))
}

func TestFetch_OptOutRetry(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := newTestClient(t, srv, WithMaxAttempts(3), WithRetryableStatusCodes(503))

	err := c.Fetch(context.Background(), "/", nil, WithIdempotent(false))
	require.Error(t, err)
	assert.Equal(t, 1, int(hits.Load()))
}

func TestUpdate_JSONPayload(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "ada", in["name"])

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "1", "name": in["name"]})
	})

	c := newTestClient(t, srv)

	var out struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := c.Update(context.Background(), "/users/1", map[string]string{"name": "ada"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "1", out.ID)
	assert.Equal(t, "ada", out.Name)
}

func TestCreate_FormPayload(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "secret", r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv)

	form := url.Values{}
	form.Set("token", "secret")
	require.NoError(t, c.Create(context.Background(), "/auth", form, nil))
}

func TestCreate_RawPayload(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, raw)
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv)

	err := c.Create(context.Background(), "/blobs", []byte{0x01, 0x02, 0x03, 0x04}, nil)
	require.NoError(t, err)
}

func TestFetch_RawResponseBytes(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("raw payload, not json"))
	})

	c := newTestClient(t, srv)

	var raw []byte
	require.NoError(t, c.Fetch(context.Background(), "/blob", &raw))
	assert.Equal(t, []byte("raw payload, not json"), raw)
}

func TestFetch_DiscardsBodyWhenOutNil(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ignored":true}`))
	})

	c := newTestClient(t, srv)
	assert.NoError(t, c.Fetch(context.Background(), "/", nil))
}

func TestFetch_EmptyBodyLeavesOutZero(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv)

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Fetch(context.Background(), "/", &out))
	assert.Empty(t, out.Name)
}

func TestFetch_MalformedBodyIsProtocolError(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("definitely not json"))
	})

	c := newTestClient(t, srv, WithMaxAttempts(3))

	var out struct{ Name string }
	err := c.Fetch(context.Background(), "/", &out)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindProtocol, apiErr.Kind)
	assert.Equal(t, 1, int(hits.Load()), "protocol errors are not retried")
}

func TestRemove_RetriesByDefault(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if hit == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, srv, WithMaxAttempts(3), WithRetryableStatusCodes(503))

	require.NoError(t, c.Remove(context.Background(), "/users/1"))
	assert.Equal(t, 2, int(hits.Load()))
}

func TestFetch_QueryAndCallHeaders(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		assert.Equal(t, "trace-1", r.Header.Get("X-Trace"))
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv)

	q := url.Values{}
	q.Set("limit", "5")
	err := c.Fetch(context.Background(), "/users?order=desc", nil,
		WithQuery(q),
		WithCallHeader("X-Trace", "trace-1"))
	require.NoError(t, err)
}

func TestFetch_StandardHeaders(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "probe/2.1", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv, WithUserAgent("probe/2.1"))
	require.NoError(t, c.Fetch(context.Background(), "/", nil))
}

func TestFetch_AuthApplied(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv, WithAuth(BearerAuth{Token: "tok-123"}))
	require.NoError(t, c.Fetch(context.Background(), "/", nil))
}

func TestFetch_AuthFailureAborts(t *testing.T) {
	srv, hits := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	boom := errors.New("no credentials")
	c := newTestClient(t, srv, WithAuth(AuthenticatorFunc(func(req *http.Request) error {
		return boom
	})))

	err := c.Fetch(context.Background(), "/", nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, int(hits.Load()))
}

func TestFetch_TransportErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	rec := &attemptRecorder{}
	c, err := New(srv.URL,
		WithBaseDelay(0), WithDelayCap(0), WithJitter(false),
		WithMaxAttempts(2), WithObservers(rec))
	require.NoError(t, err)

	err = c.Fetch(context.Background(), "/", nil)
	assert.True(t, apierr.IsKind(err, apierr.KindTransport))
	assert.Equal(t, 2, rec.count())
}

func TestFetch_PerAttemptTimeout(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv, WithTimeout(20*time.Millisecond), WithMaxAttempts(1))

	err := c.Fetch(context.Background(), "/slow", nil)
	assert.True(t, apierr.IsKind(err, apierr.KindTimeout))
}

func TestFetch_ContextDeadline(t *testing.T) {
	srv, _ := countingServer(t, func(hit int, w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, srv, WithMaxAttempts(3))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Fetch(ctx, "/slow", nil)
	assert.True(t, apierr.IsKind(err, apierr.KindTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolve_JoinsBaseAndPath(t *testing.T) {
	c, err := New("https://api.example.com/v1/")
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"leading slash", "/users", "https://api.example.com/v1/users"},
		{"no leading slash", "users", "https://api.example.com/v1/users"},
		{"nested", "/users/42/orders", "https://api.example.com/v1/users/42/orders"},
		{"empty", "", "https://api.example.com/v1/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.resolve(tt.path, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_MergesQuery(t *testing.T) {
	c, err := New("https://api.example.com")
	require.NoError(t, err)

	q := url.Values{}
	q.Set("limit", "5")
	got, err := c.resolve("/users?order=desc", q)
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "5", u.Query().Get("limit"))
	assert.Equal(t, "desc", u.Query().Get("order"))
}
