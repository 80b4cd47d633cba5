package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/observability"
)

// Lookup reports how a GetOrCompute value was obtained.
type Lookup int

const (
	// LookupMiss means the value was computed by this call or a coalesced one.
	LookupMiss Lookup = iota
	// LookupHit means the value was fresh in the store.
	LookupHit
	// LookupStale means compute failed and an expired entry within the stale window was served.
	LookupStale
)

// Source maps a Lookup to a result source.
func (l Lookup) Source() models.Source {
	switch l {
	case LookupHit:
		return models.SourceCache
	case LookupStale:
		return models.SourceFallback
	default:
		return models.SourcePrimary
	}
}

// DefaultComputeTimeout bounds a shared computation when LayerOptions leaves it unset.
const DefaultComputeTimeout = 30 * time.Second

// LayerOptions configures a Layer.
type LayerOptions struct {
	// StaleWindow keeps entries this long past their TTL as an upstream-failure fallback. Zero disables.
	StaleWindow time.Duration
	// ComputeTimeout bounds a shared computation independently of any caller's
	// deadline. Defaults to DefaultComputeTimeout.
	ComputeTimeout time.Duration
	Logger         *zap.Logger
	// Now overrides the clock. Must match the store's clock in tests.
	Now func() time.Time
}

// Layer is a TTL cache in front of capability computations. Concurrent callers
// with the same key share one computation. Store errors never fail a request:
// a failed read is a miss and a failed write is logged.
type Layer struct {
	store          Store
	group          singleflight.Group
	staleWindow    time.Duration
	computeTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewLayer creates a Layer over store. A nil store makes the layer pass-through.
func NewLayer(store Store, opts LayerOptions) *Layer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	computeTimeout := opts.ComputeTimeout
	if computeTimeout <= 0 {
		computeTimeout = DefaultComputeTimeout
	}
	return &Layer{
		store:          store,
		staleWindow:    opts.StaleWindow,
		computeTimeout: computeTimeout,
		logger:         logger,
		now:            now,
	}
}

// entry is the stored envelope. A hit is valid while now < CreatedAt + TTL.
type entry struct {
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
	Value     json.RawMessage `json:"value"`
}

func (e entry) fresh(now time.Time) bool {
	return now.Before(e.CreatedAt.Add(e.TTL))
}

func (e entry) withinStale(now time.Time, window time.Duration) bool {
	return window > 0 && now.Before(e.CreatedAt.Add(e.TTL+window))
}

type flightResult struct {
	value  []byte
	lookup Lookup
}

// GetOrCompute returns the cached value for key, or runs compute and caches its
// result for ttl. Errors from compute are not cached. Each waiter stops waiting
// when its own ctx is done; the shared computation keeps the first caller's
// values but is bounded only by the layer's compute timeout, so a follower with a
// longer budget still receives the value after the leader gives up.
func GetOrCompute[T any](ctx context.Context, l *Layer, key Key, ttl time.Duration, compute func(context.Context) (T, error)) (T, Lookup, error) {
	return getOrComputeTyped(ctx, l, key, ttl, l.staleWindow, compute)
}

// GetOrComputeFresh is GetOrCompute without the stale window: an expired entry
// is never served, so a failed compute always returns its error.
func GetOrComputeFresh[T any](ctx context.Context, l *Layer, key Key, ttl time.Duration, compute func(context.Context) (T, error)) (T, Lookup, error) {
	return getOrComputeTyped(ctx, l, key, ttl, 0, compute)
}

func getOrComputeTyped[T any](ctx context.Context, l *Layer, key Key, ttl, staleWindow time.Duration, compute func(context.Context) (T, error)) (T, Lookup, error) {
	var zero T
	raw, lookup, err := l.getOrCompute(ctx, key, ttl, staleWindow, func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, lookup, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, lookup, fmt.Errorf("cache: decode %s value: %w", key.Capability, err)
	}
	return out, lookup, nil
}

func (l *Layer) getOrCompute(ctx context.Context, key Key, ttl, staleWindow time.Duration, compute func(context.Context) ([]byte, error)) ([]byte, Lookup, error) {
	ch := l.group.DoChan(key.String(), func() (interface{}, error) {
		fctx, cancel := detach(ctx, l.computeTimeout)
		defer cancel()
		return l.fill(fctx, key, ttl, staleWindow, compute)
	})
	select {
	case <-ctx.Done():
		return nil, LookupMiss, ctx.Err()
	case res := <-ch:
		if res.Shared {
			observability.CacheCoalescedTotal.WithLabelValues(string(key.Capability)).Inc()
		}
		if res.Err != nil {
			return nil, LookupMiss, res.Err
		}
		fr := res.Val.(flightResult)
		return fr.value, fr.lookup, nil
	}
}

// detach returns a context that keeps ctx's values but neither its deadline nor
// its cancellation. The computation it carries ends after timeout.
func detach(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (l *Layer) fill(ctx context.Context, key Key, ttl, staleWindow time.Duration, compute func(context.Context) ([]byte, error)) (flightResult, error) {
	logger := observability.LoggerFromContext(ctx, l.logger)
	capability := string(key.Capability)

	cached, found := l.read(ctx, key, logger)
	now := l.now()
	if found && cached.fresh(now) {
		observability.CacheHitsTotal.WithLabelValues(capability).Inc()
		logger.Debug("cache hit", zap.String("key", key.String()))
		return flightResult{value: cached.Value, lookup: LookupHit}, nil
	}
	observability.CacheMissesTotal.WithLabelValues(capability).Inc()
	logger.Debug("cache miss, computing", zap.String("key", key.String()))

	value, err := compute(ctx)
	if err != nil {
		now = l.now()
		if found && cached.withinStale(now, staleWindow) {
			age := now.Sub(cached.CreatedAt)
			observability.CacheStaleServesTotal.WithLabelValues(capability).Inc()
			logger.Info("serving stale cache",
				zap.String("key", key.String()),
				zap.Duration("age", age),
				zap.Error(err))
			return flightResult{value: cached.Value, lookup: LookupStale}, nil
		}
		return flightResult{}, err
	}

	l.write(ctx, key, ttl, staleWindow, value, logger)
	return flightResult{value: value, lookup: LookupMiss}, nil
}

func (l *Layer) read(ctx context.Context, key Key, logger *zap.Logger) (entry, bool) {
	if l.store == nil {
		return entry{}, false
	}
	start := time.Now()
	raw, ok, err := l.store.Get(ctx, key.String())
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(duration)
		if !errors.Is(err, ErrStoreBypassed) {
			logger.Warn("cache get failed, treating as miss", zap.String("key", key.String()), zap.Error(err))
		}
		return entry{}, false
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(duration)
	if !ok {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", "decode").Inc()
		logger.Warn("cache entry undecodable, treating as miss", zap.String("key", key.String()), zap.Error(err))
		return entry{}, false
	}
	return e, true
}

func (l *Layer) write(ctx context.Context, key Key, ttl, staleWindow time.Duration, value []byte, logger *zap.Logger) {
	if l.store == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(entry{CreatedAt: l.now(), TTL: ttl, Value: value})
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", "encode").Inc()
		return
	}
	start := time.Now()
	// The store keeps entries through the stale window; freshness is decided on read.
	if err := l.store.Set(ctx, key.String(), raw, ttl+staleWindow); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(start).Seconds())
		if !errors.Is(err, ErrStoreBypassed) {
			logger.Warn("cache set failed", zap.String("key", key.String()), zap.Error(err))
		}
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(start).Seconds())
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	switch {
	case errors.Is(err, ErrStoreBypassed):
		return "bypassed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connect"), strings.Contains(msg, "connection"), strings.Contains(msg, "no servers"):
		return "connection"
	default:
		return "unknown"
	}
}
