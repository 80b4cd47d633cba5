package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sony/gobreaker"

	"github.com/kjstillabower/agri-query-service/internal/observability"
)

var (
	ErrNotFound          = eris.New("not found")
	ErrBadRequest        = eris.New("rejected request")
	ErrRateLimited       = eris.New("rate limited")
	ErrUpstreamFailure   = eris.New("upstream failure")
	ErrMalformedResponse = eris.New("malformed response")
	ErrCircuitOpen       = eris.New("circuit breaker open")
)

// maxResponseBytes bounds how much of a backend body is read.
const maxResponseBytes = 4 << 20

// BreakerSettings configures the per-backend circuit breaker.
type BreakerSettings struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
	// Interval clears closed-state counts periodically. Zero never clears.
	Interval time.Duration
}

// BackendConfig configures one backend.
type BackendConfig struct {
	Name       string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    BreakerSettings
}

// Backend is an HTTP JSON backend guarded by a circuit breaker. Calls are not
// retried here; retry policy belongs to the caller.
type Backend struct {
	name    string
	baseURL string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewBackend creates a Backend. Zero breaker settings select 5 failures, 30s open, 1 trial request.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.Breaker.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	trials := cfg.Breaker.HalfOpenRequests
	if trials == 0 {
		trials = 1
	}
	name := cfg.Name
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: trials,
		Interval:    cfg.Breaker.Interval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition(name, from.String(), to.String())
		},
		IsSuccessful: isBreakerSuccess,
	})
	return &Backend{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  cfg.HTTPClient,
		breaker: breaker,
	}
}

// isBreakerSuccess keeps answers that prove the backend is up, and caller
// cancellation, from counting against the breaker.
func isBreakerSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, context.Canceled)
}

// Name returns the backend name used in metrics and health checks.
func (b *Backend) Name() string { return b.name }

// BreakerState returns closed, half_open or open.
func (b *Backend) BreakerState() string {
	return strings.ReplaceAll(b.breaker.State().String(), "-", "_")
}

// getJSON issues GET path?query and decodes the response into out.
func (b *Backend) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return b.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// postJSON issues POST path with body encoded as JSON and decodes the response into out.
func (b *Backend) postJSON(ctx context.Context, path string, body, out any) error {
	return b.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (b *Backend) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	raw, status, err := b.execute(ctx, method, path, query, body)
	duration := time.Since(start).Seconds()
	observability.BackendCallsTotal.WithLabelValues(b.name, status).Inc()
	observability.BackendDuration.WithLabelValues(b.name, status).Observe(duration)
	if err != nil {
		observability.BackendErrorsTotal.WithLabelValues(b.name, string(CategorizeError(err))).Inc()
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		observability.BackendErrorsTotal.WithLabelValues(b.name, string(ErrorCategoryParsing)).Inc()
		return eris.Wrapf(ErrMalformedResponse, "%s: decode response: %v", b.name, err)
	}
	return nil
}

// execute runs one request through the breaker and returns the body and a status label.
func (b *Backend) execute(ctx context.Context, method, path string, query url.Values, body any) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := b.buildRequest(reqCtx, method, path, query, body)
	if err != nil {
		return nil, "error", eris.Wrapf(err, "%s: build request", b.name)
	}

	status := "error"
	result, err := b.breaker.Execute(func() (interface{}, error) {
		resp, err := b.client.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, eris.Wrapf(err, "%s: request timeout", b.name)
			}
			return nil, eris.Wrapf(err, "%s: http request failed", b.name)
		}
		defer resp.Body.Close()
		status = statusLabel(resp.StatusCode)

		if err := b.handleErrorResponse(resp); err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, eris.Wrapf(err, "%s: read response body", b.name)
		}
		return raw, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, "circuit_open", eris.Wrapf(ErrCircuitOpen, "%s", b.name)
		}
		return nil, status, err
	}
	return result.([]byte), status, nil
}

func (b *Backend) buildRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u, err := url.Parse(b.baseURL + path)
	if err != nil {
		return nil, eris.Wrap(err, "invalid backend URL")
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, eris.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func (b *Backend) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return eris.Wrapf(ErrNotFound, "%s: HTTP 404", b.name)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return eris.Wrapf(ErrBadRequest, "%s: HTTP %d", b.name, resp.StatusCode)
	case http.StatusTooManyRequests:
		return eris.Wrapf(ErrRateLimited, "%s", b.name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Wrapf(ErrUpstreamFailure, "%s: HTTP %d", b.name, resp.StatusCode)
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
