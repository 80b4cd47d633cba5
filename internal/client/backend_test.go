package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/observability"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc, threshold uint32) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBackend(BackendConfig{
		Name:    "test",
		BaseURL: srv.URL,
		Timeout: 200 * time.Millisecond,
		Breaker: BreakerSettings{FailureThreshold: threshold, OpenTimeout: time.Minute},
	})
}

// TestBackend_ForwardsCorrelationID verifies that the request correlation id
// reaches the backend as X-Correlation-ID.
func TestBackend_ForwardsCorrelationID(t *testing.T) {
	var got string
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, 0)

	ctx := observability.WithCorrelationID(context.Background(), "corr-123")
	var out struct{ OK bool }
	if err := b.getJSON(ctx, "/", nil, &out); err != nil {
		t.Fatalf("getJSON() error = %v", err)
	}
	if got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
}

func TestBackend_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusServiceUnavailable, ErrUpstreamFailure},
		{http.StatusTeapot, ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}, 100)
			var out map[string]any
			err := b.getJSON(context.Background(), "/", nil, &out)
			if !errors.Is(err, tt.want) {
				t.Errorf("getJSON() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBackend_MalformedBody(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}, 0)
	var out map[string]any
	if err := b.getJSON(context.Background(), "/", nil, &out); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("getJSON() error = %v, want ErrMalformedResponse", err)
	}
}

// TestBackend_BreakerOpensOnServerErrors verifies that consecutive 5xx responses
// open the breaker and later calls fail fast without reaching the server.
func TestBackend_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	var out map[string]any
	for i := 0; i < 2; i++ {
		_ = b.getJSON(context.Background(), "/", nil, &out)
	}
	err := b.getJSON(context.Background(), "/", nil, &out)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("getJSON() error = %v, want ErrCircuitOpen", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
	if b.BreakerState() != "open" {
		t.Errorf("BreakerState() = %q, want open", b.BreakerState())
	}
}

// TestBackend_NotFoundDoesNotTrip verifies that 404s prove the backend is up.
func TestBackend_NotFoundDoesNotTrip(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 1)
	var out map[string]any
	for i := 0; i < 3; i++ {
		if err := b.getJSON(context.Background(), "/", nil, &out); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d error = %v, want ErrNotFound", i, err)
		}
	}
	if b.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed", b.BreakerState())
	}
}

func TestBackend_Timeout(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 0)
	var out map[string]any
	err := b.getJSON(context.Background(), "/", nil, &out)
	if CategorizeError(err) != ErrorCategoryTimeout {
		t.Errorf("CategorizeError(%v) = %q, want timeout", err, CategorizeError(err))
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "success"},
		{429, "rate_limited"},
		{404, "client_error"},
		{503, "server_error"},
		{100, "error"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
