package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/agri-query-service/internal/adapters"
	"github.com/kjstillabower/agri-query-service/internal/cache"
	"github.com/kjstillabower/agri-query-service/internal/circuitbreaker"
	"github.com/kjstillabower/agri-query-service/internal/client"
	"github.com/kjstillabower/agri-query-service/internal/config"
	"github.com/kjstillabower/agri-query-service/internal/cropmodel"
	"github.com/kjstillabower/agri-query-service/internal/dispatch"
	"github.com/kjstillabower/agri-query-service/internal/health"
	httphandler "github.com/kjstillabower/agri-query-service/internal/http"
	"github.com/kjstillabower/agri-query-service/internal/location"
	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/observability"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	// While the store breaker is open the layer fetches uncached.
	var (
		store          cache.Store
		memcacheCloser *cache.MemcachedStore
		guarded        *cache.GuardedStore
	)
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		memcacheCloser = mc
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.StoreFailureThreshold,
			Timeout:          cfg.StoreOpenTimeout,
			Component:        "cache_store",
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
				logger.Warn("cache store breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		guarded = cache.NewGuardedStore(mc, cb)
		store = guarded
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewInMemoryStore()
		logger.Info("cache backend: in_memory")
	}
	// A shared fill may serve a request or a warming run, so it gets the longer of the two budgets.
	layer := cache.NewLayer(store, cache.LayerOptions{
		StaleWindow:    cfg.StaleWindow,
		ComputeTimeout: max(cfg.RequestTimeout, cfg.WarmTimeout),
		Logger:         logger,
	})

	breaker := client.BreakerSettings{
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		HalfOpenRequests: cfg.BreakerHalfOpenRequests,
		Interval:         cfg.BreakerInterval,
	}
	newBackend := func(name, url string, timeout time.Duration) *client.Backend {
		return client.NewBackend(client.BackendConfig{Name: name, BaseURL: url, Timeout: timeout, Breaker: breaker})
	}
	soilBackend := newBackend("soil", cfg.SoilAPIURL, cfg.SoilAPITimeout)
	forecastBackend := newBackend("weather_forecast", cfg.ForecastAPIURL, cfg.WeatherAPITimeout)
	archiveBackend := newBackend("weather_archive", cfg.ArchiveAPIURL, cfg.WeatherAPITimeout)
	backends := []health.Breaker{soilBackend, forecastBackend, archiveBackend}

	bundle := cropmodel.Load(cfg.ModelPath, logger)
	observability.SetModelLoaded(bundle.Health() == cropmodel.HealthLoaded)
	crop := adapters.NewCrop(bundle, cfg.RecommendationThreshold, logger)

	capabilities := []adapters.Adapter{
		adapters.NewSoil(client.NewSoilClient(soilBackend), layer, cfg.SoilTTL),
		adapters.NewWeather(client.NewWeatherClient(forecastBackend, archiveBackend), layer,
			adapters.WeatherTTLs{Forecast: cfg.ForecastTTL, Archive: cfg.ArchiveTTL}, cfg.DefaultForecastDays),
		crop,
	}
	if cfg.KnowledgeAPIURL != "" {
		knowledgeBackend := newBackend("knowledge", cfg.KnowledgeAPIURL, cfg.KnowledgeAPITimeout)
		backends = append(backends, knowledgeBackend)
		capabilities = append(capabilities, adapters.NewKnowledge(client.NewKnowledgeClient(knowledgeBackend), layer, adapters.KnowledgeOptions{
			TopK:             cfg.KnowledgeTopK,
			MinRelevance:     cfg.KnowledgeMinRelevance,
			MaxResponseRunes: cfg.KnowledgeMaxResponseRunes,
			TTL:              cfg.KnowledgeTTL,
		}))
	} else {
		logger.Warn("knowledge backend not configured; knowledge capability will report UpstreamUnavailable")
	}

	var geo location.Geolocator
	if cfg.GeoIPURL != "" {
		geoBackend := newBackend("geoip", cfg.GeoIPURL, cfg.GeoIPTimeout)
		backends = append(backends, geoBackend)
		geo = client.NewGeoIPClient(geoBackend)
	}
	resolver := location.NewResolver(geo, cfg.GeoIPPrecision, logger)

	dispatcher := dispatch.New(capabilities, resolver, dispatch.Options{Policies: dispatchPolicies(cfg.Policies), Logger: logger})

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	if cfg.ModelReloadEnabled && bundle.Health() != cropmodel.HealthLoaded {
		go health.RunRecovery(rootCtx, health.ModelReloader(cfg.ModelPath, crop, logger),
			cfg.ModelReloadInitial, cfg.ModelReloadMax, func() {
				logger.Error("crop model reload exhausted; serving rule-based recommendations")
			})
	}

	var warmer *cache.Warmer
	if len(cfg.WarmCoordinates) > 0 {
		warmer = cache.NewWarmer(dispatcher, cfg.WarmCoordinates, cfg.WarmConcurrency, cfg.WarmTimeout, logger)
		if cfg.WarmInterval > 0 {
			if err := warmer.Start(cfg.WarmInterval); err != nil {
				logger.Error("cache warming", zap.Error(err))
			}
		} else {
			go func() {
				if err := warmer.Warm(rootCtx); err != nil {
					logger.Warn("cache warming failed", zap.Error(err))
				}
			}()
		}
	}

	healthOpts := health.Options{
		Config: health.Config{
			OverloadWindow:       cfg.OverloadWindow,
			OverloadThresholdPct: cfg.OverloadThresholdPct,
			RateLimitRPS:         cfg.RateLimitRPS,
			DegradedWindow:       cfg.DegradedWindow,
			DegradedFailurePct:   cfg.DegradedFailurePct,
		},
		Model:    crop,
		Backends: backends,
		Logger:   logger,
	}
	if guarded != nil {
		healthOpts.CacheBypassed = guarded.Bypassed
		healthOpts.CachePing = memcacheCloser.Ping
	}
	checker := health.New(healthOpts)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	observability.RegisterRateLimitGauges(cfg.OverloadWindow)

	handler := httphandler.NewHandler(dispatcher, checker, logger, cfg.MaxQueryRunes)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	health.SetShuttingDown(true)
	if warmer != nil {
		warmer.Stop()
	}
	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
}

// dispatchPolicies converts configured capability policies for the dispatcher.
func dispatchPolicies(configured map[models.CapabilityID]config.Policy) map[models.CapabilityID]dispatch.Policy {
	policies := make(map[models.CapabilityID]dispatch.Policy, len(configured))
	for id, p := range configured {
		policies[id] = dispatch.Policy{
			Timeout:        p.Timeout,
			Retries:        p.Retries,
			RetryBaseDelay: p.RetryBaseDelay,
			RetryMaxDelay:  p.RetryMaxDelay,
		}
	}
	return policies
}
