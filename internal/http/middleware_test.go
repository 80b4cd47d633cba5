package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/agri-query-service/internal/observability"
)

// TestMetricsMiddleware_TracksInFlight verifies that a request counts as
// in flight while its handler runs and is released afterwards.
func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))

	before := InFlightCount()
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	}()

	<-entered
	if got := InFlightCount(); got != before+1 {
		t.Errorf("InFlightCount() during request = %d, want %d", got, before+1)
	}
	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := WaitForInFlight(ctx, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight() error = %v", err)
	}
}

// TestCorrelationIDMiddleware_LoggerCarriesID verifies that the request-scoped
// logger is tagged with the correlation ID.
func TestCorrelationIDMiddleware_LoggerCarriesID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(zap.New(core)))
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		observability.LoggerFromContext(r.Context(), nil).Info("ping")
		if got := observability.CorrelationIDFromContext(r.Context()); got != "abc-123" {
			t.Errorf("correlation ID in context = %q, want abc-123", got)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("ping").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["correlation_id"]; got != "abc-123" {
		t.Errorf("correlation_id field = %v, want abc-123", got)
	}
}

// TestTimeoutMiddleware_SetsDeadline verifies that downstream handlers see a deadline.
func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var hasDeadline bool
	handler := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/dispatch", nil))

	if !hasDeadline {
		t.Error("request context has no deadline")
	}
}

func TestGetRoute_Unmatched(t *testing.T) {
	if got := getRoute(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Errorf("getRoute() = %q, want unmatched", got)
	}
}
