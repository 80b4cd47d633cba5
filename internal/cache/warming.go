package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/observability"
)

// Prefetcher populates the cache for one coordinate. Implemented by the
// dispatcher; declared here to avoid an import cycle.
type Prefetcher interface {
	Prefetch(ctx context.Context, coord models.Coordinate) error
}

// Warmer prefetches a fixed list of coordinates so the first requests for
// them are cache hits.
type Warmer struct {
	prefetcher  Prefetcher
	coordinates []models.Coordinate
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger
	scheduler   *gocron.Scheduler
}

// NewWarmer creates a Warmer. concurrency <= 0 means 4; timeout bounds a whole Warm run.
func NewWarmer(prefetcher Prefetcher, coordinates []models.Coordinate, concurrency int, timeout time.Duration, logger *zap.Logger) *Warmer {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{
		prefetcher:  prefetcher,
		coordinates: coordinates,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}
}

// Warm prefetches every coordinate with bounded concurrency. Individual
// failures do not stop the run; they are joined into the returned error.
func (w *Warmer) Warm(ctx context.Context) error {
	if len(w.coordinates) == 0 {
		return nil
	}
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("coordinates", len(w.coordinates)))

	errs := make([]error, len(w.coordinates))
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, coord := range w.coordinates {
		i, coord := i, coord
		g.Go(func() error {
			if err := w.prefetcher.Prefetch(ctx, coord); err != nil {
				errs[i] = fmt.Errorf("warm %.2f,%.2f: %w", coord.Latitude(), coord.Longitude(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if err != nil {
		observability.CacheWarmingErrorsTotal.Inc()
	}
	w.logger.Info("cache warming complete",
		zap.Int("coordinates", len(w.coordinates)),
		zap.Float64("duration_seconds", duration),
		zap.NamedError("errors", err))
	return err
}

// Start runs Warm immediately and then every interval on a background scheduler.
func (w *Warmer) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cache warming: interval must be positive, got %s", interval)
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		if err := w.Warm(context.Background()); err != nil {
			w.logger.Warn("cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("cache warming: schedule: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop halts the scheduler started by Start.
func (w *Warmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
