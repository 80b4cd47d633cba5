// Package dispatch fans a request out to capability adapters and collects
// their results.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-query-service/internal/adapters"
	"github.com/kjstillabower/agri-query-service/internal/aggregate"
	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/observability"
	"github.com/kjstillabower/agri-query-service/internal/traffic"
)

// Policy bounds one capability's invocation.
type Policy struct {
	// Timeout is the whole budget for the capability, retries included.
	Timeout time.Duration
	// Retries is the number of extra attempts after an UpstreamUnavailable failure.
	Retries        int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultPolicy applies to capabilities without an explicit policy.
var DefaultPolicy = Policy{
	Timeout:        10 * time.Second,
	Retries:        1,
	RetryBaseDelay: 100 * time.Millisecond,
	RetryMaxDelay:  time.Second,
}

// LocationResolver is implemented by location.Resolver.
type LocationResolver interface {
	Resolve(ctx context.Context, explicit *models.Coordinate, clientIP string) (models.ResolvedLocation, error)
}

// Request is one validated dispatch.
type Request struct {
	RequestID    string
	Capabilities []models.CapabilityID
	Coordinate   *models.Coordinate
	ClientIP     string
	TimeWindow   *models.TimeWindow
	QueryText    string
	Features     map[string]float64
}

// Dispatcher resolves the location once, runs every needed capability
// concurrently under its own budget and aggregates the results.
type Dispatcher struct {
	adapters map[models.CapabilityID]adapters.Adapter
	resolver LocationResolver
	policies map[models.CapabilityID]Policy
	logger   *zap.Logger
	now      func() time.Time
}

// Options configures a Dispatcher.
type Options struct {
	Policies map[models.CapabilityID]Policy
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(list []adapters.Adapter, resolver LocationResolver, opts Options) *Dispatcher {
	byID := make(map[models.CapabilityID]adapters.Adapter, len(list))
	for _, a := range list {
		byID[a.ID()] = a
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		adapters: byID,
		resolver: resolver,
		policies: opts.Policies,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

func (d *Dispatcher) policy(id models.CapabilityID) Policy {
	if p, ok := d.policies[id]; ok {
		return p
	}
	return DefaultPolicy
}

// Handle runs req and returns the aggregated response. It never fails: every
// problem is reported per capability.
func (d *Dispatcher) Handle(ctx context.Context, req Request) models.AggregatedResponse {
	logger := observability.LoggerFromContext(ctx, d.logger)
	now := d.now().UTC()
	requested := dedupe(req.Capabilities)

	base := models.CapabilityRequest{
		TimeWindow: req.TimeWindow,
		Now:        now,
		QueryText:  req.QueryText,
		Features:   req.Features,
	}
	plan := planFor(requested, base)

	var (
		location *models.ResolvedLocation
		locErr   error
	)
	if needsLocation(plan, base) {
		resolved, err := d.resolver.Resolve(ctx, req.Coordinate, req.ClientIP)
		if err != nil {
			locErr = err
			logger.Warn("location unresolved", zap.Error(err))
		} else {
			location = &resolved
			coord := resolved.Coordinate
			base.Coordinate = &coord
		}
	}

	results := d.run(ctx, plan, base, runOptions{locErr: locErr, countTraffic: true})
	resp := aggregate.Aggregate(aggregate.Input{
		RequestID: req.RequestID,
		Now:       now,
		Requested: requested,
		Location:  location,
		Results:   results,
	})

	observability.DispatchRequestsTotal.WithLabelValues(fmt.Sprintf("%t", resp.NarrativeReady)).Inc()
	logger.Info("dispatch complete",
		zap.Int("requested", len(requested)),
		zap.Int("succeeded", resp.Summary.Succeeded),
		zap.Int("degraded", resp.Summary.Degraded),
		zap.Int("failed", resp.Summary.Failed))
	return resp
}

// Prefetch warms the cache for coord with the soil and default weather
// capabilities. Its results do not count toward the health failure rate.
func (d *Dispatcher) Prefetch(ctx context.Context, coord models.Coordinate) error {
	base := models.CapabilityRequest{Coordinate: &coord, Now: d.now().UTC()}
	plan := []models.CapabilityID{models.CapabilitySoil, models.CapabilityWeather}
	results := d.run(ctx, plan, base, runOptions{})
	for _, id := range plan {
		if r := results[id]; !r.Usable() {
			return fmt.Errorf("prefetch %s: %s: %s", id, r.ErrorKind, r.Message)
		}
	}
	return nil
}

// future is a result that dependents can wait on.
type future struct {
	done   chan struct{}
	result models.Result
}

func (f *future) set(r models.Result) {
	f.result = r
	close(f.done)
}

// runOptions carries per-run settings through execute.
type runOptions struct {
	// locErr explains a missing coordinate.
	locErr error
	// countTraffic feeds results into the health failure rate. Off for cache warming.
	countTraffic bool
}

// run invokes every capability in plan concurrently and waits for all of them.
func (d *Dispatcher) run(ctx context.Context, plan []models.CapabilityID, base models.CapabilityRequest, opts runOptions) map[models.CapabilityID]models.Result {
	futures := make(map[models.CapabilityID]*future, len(plan))
	for _, id := range plan {
		futures[id] = &future{done: make(chan struct{})}
	}

	var wg sync.WaitGroup
	for _, id := range plan {
		wg.Add(1)
		go func(id models.CapabilityID) {
			defer wg.Done()
			futures[id].set(d.execute(ctx, id, base, futures, opts))
		}(id)
	}
	wg.Wait()

	results := make(map[models.CapabilityID]models.Result, len(plan))
	for id, f := range futures {
		results[id] = f.result
	}
	return results
}

// execute produces the result for one capability, short-circuiting when its
// location or dependencies are unavailable.
func (d *Dispatcher) execute(ctx context.Context, id models.CapabilityID, base models.CapabilityRequest, futures map[models.CapabilityID]*future, opts runOptions) models.Result {
	req := base
	req.Capability = id

	adapter, ok := d.adapters[id]
	if !ok {
		return d.record(id, models.Failed(models.KindUpstreamUnavailable, "capability is not configured"), 0, opts)
	}
	if needsCoordinate(id, req) && req.Coordinate == nil {
		msg := "location could not be resolved"
		if opts.locErr != nil {
			msg = models.MessageOf(opts.locErr)
		}
		return d.record(id, models.Failed(models.KindLocationUnresolved, msg), 0, opts)
	}

	if deps := dependenciesOf(id, req); len(deps) > 0 {
		req.Dependencies = make(map[models.CapabilityID]models.Result, len(deps))
		for _, dep := range deps {
			f := futures[dep]
			<-f.done
			if !f.result.Usable() {
				return d.record(id, models.Failed(models.KindDependencyUnresolved,
					fmt.Sprintf("%s unavailable: %s", dep, f.result.ErrorKind)), 0, opts)
			}
			req.Dependencies[dep] = f.result
		}
	}

	start := time.Now()
	r := d.invoke(ctx, adapter, req, d.policy(id))
	return d.record(id, r, time.Since(start), opts)
}

// invoke calls the adapter within the policy budget, retrying
// UpstreamUnavailable failures with exponential backoff while budget remains.
func (d *Dispatcher) invoke(ctx context.Context, adapter adapters.Adapter, req models.CapabilityRequest, p Policy) models.Result {
	budget, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	logger := observability.LoggerFromContext(ctx, d.logger)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			observability.CapabilityRetriesTotal.WithLabelValues(string(req.Capability)).Inc()
			delay := calculateBackoff(attempt, p.RetryBaseDelay, p.RetryMaxDelay)
			select {
			case <-budget.Done():
				return timeoutResult(req.Capability, p.Timeout)
			case <-time.After(delay):
			}
		}

		r := invokeOnce(budget, adapter, req, p.Timeout)
		if r.Status != models.StatusFailed || r.ErrorKind != models.KindUpstreamUnavailable || attempt >= p.Retries {
			return r
		}
		if deadline, ok := budget.Deadline(); ok && time.Until(deadline) <= p.RetryBaseDelay {
			return r
		}
		logger.Debug("retrying capability",
			zap.String("capability", string(req.Capability)),
			zap.Int("attempt", attempt+1),
			zap.String("message", r.Message))
	}
}

// invokeOnce runs the adapter in its own goroutine so an adapter that ignores
// its context still cannot hold the dispatch past the budget.
func invokeOnce(ctx context.Context, adapter adapters.Adapter, req models.CapabilityRequest, timeout time.Duration) models.Result {
	ch := make(chan models.Result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- models.Failed(models.KindUpstreamUnavailable, fmt.Sprintf("adapter panic: %v", rec))
			}
		}()
		ch <- adapter.Invoke(ctx, req)
	}()
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		return timeoutResult(req.Capability, timeout)
	}
}

func timeoutResult(id models.CapabilityID, budget time.Duration) models.Result {
	return models.Failed(models.KindTimeout, fmt.Sprintf("%s exceeded its %s budget", id, budget))
}

func (d *Dispatcher) record(id models.CapabilityID, r models.Result, elapsed time.Duration, opts runOptions) models.Result {
	observability.CapabilityResultsTotal.WithLabelValues(string(id), string(r.Status), string(r.Source), string(r.ErrorKind)).Inc()
	if elapsed > 0 {
		observability.CapabilityDuration.WithLabelValues(string(id)).Observe(elapsed.Seconds())
	}
	if opts.countTraffic {
		traffic.RecordResult(r)
	}
	return r
}

// calculateBackoff returns base*2^(attempt-1) capped at max, plus up to 10% jitter.
func calculateBackoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if max > 0 && delay > float64(max) {
		delay = float64(max)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}
