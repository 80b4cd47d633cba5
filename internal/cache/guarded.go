package cache

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/circuitbreaker"
)

// ErrStoreBypassed is returned while the store's breaker is open. The Layer
// treats it as a miss and skips writes, i.e. pass-through mode.
var ErrStoreBypassed = errors.New("cache store bypassed")

// GuardedStore wraps a Store with a circuit breaker so that an unavailable
// store is skipped instead of paying its timeout on every request.
type GuardedStore struct {
	store   Store
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedStore wraps store with breaker.
func NewGuardedStore(store Store, breaker *circuitbreaker.CircuitBreaker) *GuardedStore {
	return &GuardedStore{store: store, breaker: breaker}
}

func (g *GuardedStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := g.breaker.Call(ctx, func() error {
		var err error
		value, ok, err = g.store.Get(ctx, key)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, false, ErrStoreBypassed
	}
	return value, ok, err
}

func (g *GuardedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := g.breaker.Call(ctx, func() error {
		return g.store.Set(ctx, key, value, ttl)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return ErrStoreBypassed
	}
	return err
}

// Bypassed reports whether the store is currently skipped.
func (g *GuardedStore) Bypassed() bool {
	return g.breaker.State() == circuitbreaker.StateOpen
}
