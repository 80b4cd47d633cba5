// Package health computes the service status reported by GET /health.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-query-service/internal/cropmodel"
	"github.com/kjstillabower/agri-query-service/internal/observability"
	"github.com/kjstillabower/agri-query-service/internal/traffic"
)

const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusOverloaded   = "overloaded"
	StatusShuttingDown = "shutting-down"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
// The health endpoint returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Config holds the thresholds for the overloaded and degraded states.
// A zero window disables the corresponding check.
type Config struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedFailurePct   int
}

// ModelSource exposes the crop model bundle in use.
type ModelSource interface {
	Bundle() *cropmodel.Bundle
}

// Breaker reports the state of one backend circuit breaker.
type Breaker interface {
	Name() string
	BreakerState() string
}

// Options configures a Checker. Nil fields skip their check.
type Options struct {
	Config   Config
	Model    ModelSource
	Backends []Breaker
	// CacheBypassed reports whether the cache store breaker is open.
	CacheBypassed func() bool
	// CachePing checks store reachability. Set when the backend is memcached.
	CachePing func() error
	Logger    *zap.Logger
}

// Checker evaluates service health on demand.
type Checker struct {
	opts Options

	mu   sync.Mutex
	prev string
}

func New(opts Options) *Checker {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Checker{opts: opts}
}

// Report is one health evaluation.
type Report struct {
	Status string            `json:"status"`
	Code   int               `json:"-"`
	Reason string            `json:"reason,omitempty"`
	Checks map[string]string `json:"checks"`
}

// Check evaluates the status and per-component checks and logs status transitions.
func (c *Checker) Check(ctx context.Context) Report {
	status, code, reason := c.status()
	report := Report{Status: status, Code: code, Reason: reason, Checks: c.checks()}

	c.mu.Lock()
	prev := c.prev
	c.prev = status
	c.mu.Unlock()
	if prev != "" && prev != status {
		observability.LoggerFromContext(ctx, c.opts.Logger).Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status),
			zap.String("reason", reason))
	}
	return report
}

// status decides in priority order: shutting-down > overloaded > degraded > healthy.
// A corrupted model is degraded but still 200 since rule-based answers are served.
func (c *Checker) status() (string, int, string) {
	if IsShuttingDown() {
		return StatusShuttingDown, http.StatusServiceUnavailable, "signal"
	}
	cfg := c.opts.Config
	if cfg.OverloadWindow > 0 && cfg.RateLimitRPS > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(cfg.OverloadWindow)) > threshold {
			return StatusOverloaded, http.StatusServiceUnavailable, "overload_threshold"
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedFailurePct > 0 {
		failed, total := traffic.FailureRate(cfg.DegradedWindow)
		if total > 0 && float64(failed)*100/float64(total) >= float64(cfg.DegradedFailurePct) {
			return StatusDegraded, http.StatusServiceUnavailable, "failure_rate_breach"
		}
	}
	if c.opts.Model != nil && c.opts.Model.Bundle().Health() != cropmodel.HealthLoaded {
		return StatusDegraded, http.StatusOK, "model_corrupted"
	}
	return StatusHealthy, http.StatusOK, ""
}

func (c *Checker) checks() map[string]string {
	checks := make(map[string]string, len(c.opts.Backends)+2)
	if c.opts.Model != nil {
		checks["model"] = string(c.opts.Model.Bundle().Health())
	}
	switch {
	case c.opts.CacheBypassed != nil && c.opts.CacheBypassed():
		checks["cache"] = "bypassed"
	case c.opts.CachePing != nil:
		if err := c.opts.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
		} else {
			checks["cache"] = "healthy"
		}
	case c.opts.CacheBypassed != nil:
		checks["cache"] = "healthy"
	}
	for _, b := range c.opts.Backends {
		checks[b.Name()] = b.BreakerState()
	}
	return checks
}
