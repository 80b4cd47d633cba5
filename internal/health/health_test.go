package health

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/agri-query-service/internal/cropmodel"
	"github.com/kjstillabower/agri-query-service/internal/traffic"
)

type staticModel struct{ b *cropmodel.Bundle }

func (m staticModel) Bundle() *cropmodel.Bundle { return m.b }

type stubBreaker struct{ name, state string }

func (s stubBreaker) Name() string         { return s.name }
func (s stubBreaker) BreakerState() string { return s.state }

func loadedModel(t *testing.T) staticModel {
	t.Helper()
	b := cropmodel.Load("../cropmodel/testdata/model.json", nil)
	if b.Health() != cropmodel.HealthLoaded {
		t.Fatalf("test model not loaded: %s", b.Reason())
	}
	return staticModel{b}
}

func TestShuttingDownFlag(t *testing.T) {
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false")
	}
	SetShuttingDown(true)
	defer SetShuttingDown(false)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
}

// TestCheck_StatusPriority verifies the decision order
// shutting-down > overloaded > degraded > healthy.
func TestCheck_StatusPriority(t *testing.T) {
	cfg := Config{
		OverloadWindow:       time.Minute,
		OverloadThresholdPct: 50,
		RateLimitRPS:         1,
		DegradedWindow:       time.Minute,
		DegradedFailurePct:   50,
	}
	tests := []struct {
		name       string
		setup      func()
		model      ModelSource
		wantStatus string
		wantCode   int
	}{
		{"healthy", func() {}, nil, StatusHealthy, http.StatusOK},
		{"corrupted model", func() {}, staticModel{cropmodel.Corrupted("bad")}, StatusDegraded, http.StatusOK},
		{"failure rate", func() {
			traffic.Record(traffic.OutcomeFailed)
			traffic.Record(traffic.OutcomeSuccess)
		}, nil, StatusDegraded, http.StatusServiceUnavailable},
		{"overloaded beats degraded", func() {
			for i := 0; i < 40; i++ {
				traffic.Record(traffic.OutcomeFailed)
			}
		}, staticModel{cropmodel.Corrupted("bad")}, StatusOverloaded, http.StatusServiceUnavailable},
		{"shutting down beats all", func() {
			for i := 0; i < 40; i++ {
				traffic.RecordDenied()
			}
			SetShuttingDown(true)
		}, nil, StatusShuttingDown, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traffic.Reset()
			SetShuttingDown(false)
			defer traffic.Reset()
			defer SetShuttingDown(false)
			tt.setup()

			opts := Options{Config: cfg}
			if tt.model != nil {
				opts.Model = tt.model
			}
			r := New(opts).Check(context.Background())
			if r.Status != tt.wantStatus || r.Code != tt.wantCode {
				t.Errorf("Check() = %s/%d, want %s/%d", r.Status, r.Code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestCheck_Checks(t *testing.T) {
	traffic.Reset()
	tests := []struct {
		name      string
		opts      Options
		wantCache string
	}{
		{"memory store", Options{CacheBypassed: func() bool { return false }}, "healthy"},
		{"bypassed", Options{CacheBypassed: func() bool { return true }, CachePing: func() error { return nil }}, "bypassed"},
		{"ping fails", Options{CacheBypassed: func() bool { return false }, CachePing: func() error { return errors.New("dial tcp") }}, "unhealthy"},
		{"ping ok", Options{CachePing: func() error { return nil }}, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Model = loadedModel(t)
			tt.opts.Backends = []Breaker{stubBreaker{"soil", "closed"}, stubBreaker{"weather", "open"}}
			r := New(tt.opts).Check(context.Background())
			if r.Checks["cache"] != tt.wantCache {
				t.Errorf("checks[cache] = %q, want %q", r.Checks["cache"], tt.wantCache)
			}
			if r.Checks["model"] != "loaded" {
				t.Errorf("checks[model] = %q, want loaded", r.Checks["model"])
			}
			if r.Checks["soil"] != "closed" || r.Checks["weather"] != "open" {
				t.Errorf("breaker checks = %v", r.Checks)
			}
		})
	}
}

// TestCheck_LogsTransitions verifies a status change is logged once.
func TestCheck_LogsTransitions(t *testing.T) {
	traffic.Reset()
	SetShuttingDown(false)
	defer SetShuttingDown(false)
	core, logs := observer.New(zap.InfoLevel)
	c := New(Options{Logger: zap.New(core)})

	c.Check(context.Background())
	c.Check(context.Background())
	SetShuttingDown(true)
	c.Check(context.Background())

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["current_status"]; got != StatusShuttingDown {
		t.Errorf("current_status = %v, want %s", got, StatusShuttingDown)
	}
}
