package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// Policy bounds one capability's invocation budget and retries.
type Policy struct {
	Timeout        time.Duration
	Retries        int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	RequestTimeout                time.Duration
	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int
	StoreFailureThreshold int
	StoreOpenTimeout      time.Duration

	SoilTTL      time.Duration
	ForecastTTL  time.Duration
	ArchiveTTL   time.Duration
	KnowledgeTTL time.Duration
	StaleWindow  time.Duration

	WarmCoordinates []models.Coordinate
	WarmInterval    time.Duration
	WarmConcurrency int
	WarmTimeout     time.Duration

	SoilAPIURL          string
	SoilAPITimeout      time.Duration
	ForecastAPIURL      string
	ArchiveAPIURL       string
	WeatherAPITimeout   time.Duration
	KnowledgeAPIURL     string
	KnowledgeAPITimeout time.Duration
	GeoIPURL            string
	GeoIPTimeout        time.Duration
	GeoIPPrecision      int

	BreakerFailureThreshold   uint32
	BreakerOpenTimeout        time.Duration
	BreakerHalfOpenRequests   uint32
	BreakerInterval           time.Duration
	Policies                  map[models.CapabilityID]Policy
	DefaultForecastDays       int
	ModelPath                 string
	RecommendationThreshold   float64
	ModelReloadEnabled        bool
	ModelReloadInitial        time.Duration
	ModelReloadMax            time.Duration
	KnowledgeTopK             int
	KnowledgeMinRelevance     float64
	KnowledgeMaxResponseRunes int
	MaxQueryRunes             int

	RateLimitRPS   int
	RateLimitBurst int

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedFailurePct   int
}

type durationPolicy struct {
	Timeout        string `yaml:"timeout"`
	Retries        *int   `yaml:"retries"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
	RetryMaxDelay  string `yaml:"retry_max_delay"`
}

type coordinateEntry struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type backendEntry struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		StoreBreaker struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"store_breaker"`
		TTL struct {
			Soil      string `yaml:"soil"`
			Forecast  string `yaml:"forecast"`
			Archive   string `yaml:"archive"`
			Knowledge string `yaml:"knowledge"`
		} `yaml:"ttl"`
		StaleWindow     string            `yaml:"stale_window"`
		WarmCoordinates []coordinateEntry `yaml:"warm_coordinates"`
		WarmInterval    string            `yaml:"warm_interval"`
		WarmConcurrency int               `yaml:"warm_concurrency"`
		WarmTimeout     string            `yaml:"warm_timeout"`
	} `yaml:"cache"`

	Backends struct {
		Soil            backendEntry `yaml:"soil"`
		WeatherForecast backendEntry `yaml:"weather_forecast"`
		WeatherArchive  backendEntry `yaml:"weather_archive"`
		Knowledge       backendEntry `yaml:"knowledge"`
		GeoIP           backendEntry `yaml:"geoip"`
		GeoIPPrecision  *int         `yaml:"geoip_precision"`
		Breaker         struct {
			FailureThreshold int    `yaml:"failure_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
			HalfOpenRequests int    `yaml:"half_open_requests"`
			Interval         string `yaml:"interval"`
		} `yaml:"breaker"`
	} `yaml:"backends"`

	Capabilities struct {
		Default  durationPolicy            `yaml:"default"`
		Policies map[string]durationPolicy `yaml:"policies"`
	} `yaml:"capabilities"`

	Weather struct {
		DefaultForecastDays int `yaml:"default_forecast_days"`
	} `yaml:"weather"`

	Crop struct {
		ModelPath     string  `yaml:"model_path"`
		Threshold     float64 `yaml:"threshold"`
		ReloadEnabled bool    `yaml:"reload_enabled"`
		ReloadInitial string  `yaml:"reload_initial"`
		ReloadMax     string  `yaml:"reload_max"`
	} `yaml:"crop"`

	Knowledge struct {
		TopK             int      `yaml:"top_k"`
		MinRelevance     *float64 `yaml:"min_relevance"`
		MaxResponseRunes int      `yaml:"max_response_runes"`
		MaxQueryRunes    int      `yaml:"max_query_runes"`
	} `yaml:"knowledge"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedFailurePct   int    `yaml:"degraded_failure_pct"`
	} `yaml:"lifecycle"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev). A .env file in the
// working directory is loaded first; it never overrides variables already set.
// Environment overrides: CACHE_BACKEND, MEMCACHED_ADDRS, MODEL_PATH, SOIL_API_URL,
// KNOWLEDGE_API_URL. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.CacheBackend = firstNonEmpty(strings.ToLower(os.Getenv("CACHE_BACKEND")), strings.ToLower(fc.Cache.Backend), "in_memory")
	cfg.MemcachedAddrs = firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)
	cfg.StoreFailureThreshold = positiveOr(fc.Cache.StoreBreaker.FailureThreshold, 5)
	cfg.StoreOpenTimeout = parseDuration(fc.Cache.StoreBreaker.OpenTimeout, 30*time.Second)

	cfg.SoilTTL = parseDuration(fc.Cache.TTL.Soil, 168*time.Hour)
	cfg.ForecastTTL = parseDuration(fc.Cache.TTL.Forecast, 30*time.Minute)
	cfg.ArchiveTTL = parseDuration(fc.Cache.TTL.Archive, 12*time.Hour)
	cfg.KnowledgeTTL = parseDuration(fc.Cache.TTL.Knowledge, 6*time.Hour)
	cfg.StaleWindow = parseDurationOrZero(fc.Cache.StaleWindow, time.Hour)

	for i, c := range fc.Cache.WarmCoordinates {
		coord, err := models.NewCoordinate(c.Latitude, c.Longitude)
		if err != nil {
			return nil, fmt.Errorf("cache.warm_coordinates[%d]: %w", i, err)
		}
		cfg.WarmCoordinates = append(cfg.WarmCoordinates, coord)
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.WarmConcurrency = positiveOr(fc.Cache.WarmConcurrency, 4)
	cfg.WarmTimeout = parseDuration(fc.Cache.WarmTimeout, 30*time.Second)

	cfg.SoilAPIURL = firstNonEmpty(os.Getenv("SOIL_API_URL"), fc.Backends.Soil.URL, "http://localhost:8000/soiltype")
	cfg.SoilAPITimeout = parseDurationOrZero(fc.Backends.Soil.Timeout, 5*time.Second)
	cfg.ForecastAPIURL = firstNonEmpty(fc.Backends.WeatherForecast.URL, "https://api.open-meteo.com")
	cfg.ArchiveAPIURL = firstNonEmpty(fc.Backends.WeatherArchive.URL, "https://archive-api.open-meteo.com")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.Backends.WeatherForecast.Timeout, 5*time.Second)
	cfg.KnowledgeAPIURL = firstNonEmpty(os.Getenv("KNOWLEDGE_API_URL"), fc.Backends.Knowledge.URL)
	cfg.KnowledgeAPITimeout = parseDurationOrZero(fc.Backends.Knowledge.Timeout, 8*time.Second)
	cfg.GeoIPURL = strings.TrimSpace(fc.Backends.GeoIP.URL)
	cfg.GeoIPTimeout = parseDurationOrZero(fc.Backends.GeoIP.Timeout, 3*time.Second)
	cfg.GeoIPPrecision = 1
	if fc.Backends.GeoIPPrecision != nil {
		cfg.GeoIPPrecision = *fc.Backends.GeoIPPrecision
	}

	cfg.BreakerFailureThreshold = uint32(positiveOr(fc.Backends.Breaker.FailureThreshold, 5))
	cfg.BreakerOpenTimeout = parseDuration(fc.Backends.Breaker.OpenTimeout, 30*time.Second)
	cfg.BreakerHalfOpenRequests = uint32(positiveOr(fc.Backends.Breaker.HalfOpenRequests, 1))
	cfg.BreakerInterval = parseDurationOrZero(fc.Backends.Breaker.Interval, 0)

	def := fc.Capabilities.Default.resolve(Policy{
		Timeout:        10 * time.Second,
		Retries:        1,
		RetryBaseDelay: 100 * time.Millisecond,
		RetryMaxDelay:  time.Second,
	})
	cfg.Policies = make(map[models.CapabilityID]Policy, len(models.AllCapabilities))
	for _, id := range models.AllCapabilities {
		cfg.Policies[id] = def
	}
	for name, p := range fc.Capabilities.Policies {
		id, ok := models.ParseCapabilityID(name)
		if !ok {
			return nil, fmt.Errorf("capabilities.policies: unknown capability %q", name)
		}
		cfg.Policies[id] = p.resolve(def)
	}

	cfg.DefaultForecastDays = positiveOr(fc.Weather.DefaultForecastDays, 7)

	cfg.ModelPath = firstNonEmpty(os.Getenv("MODEL_PATH"), fc.Crop.ModelPath, "models/crop_model.json")
	cfg.RecommendationThreshold = fc.Crop.Threshold
	if cfg.RecommendationThreshold == 0 {
		cfg.RecommendationThreshold = 0.5
	}
	// Off by default: a model that fails to load stays unavailable until restart.
	cfg.ModelReloadEnabled = fc.Crop.ReloadEnabled
	cfg.ModelReloadInitial = parseDurationOrZero(fc.Crop.ReloadInitial, time.Minute)
	cfg.ModelReloadMax = parseDurationOrZero(fc.Crop.ReloadMax, 20*time.Minute)

	cfg.KnowledgeTopK = positiveOr(fc.Knowledge.TopK, 3)
	cfg.KnowledgeMinRelevance = 0.35
	if fc.Knowledge.MinRelevance != nil {
		cfg.KnowledgeMinRelevance = *fc.Knowledge.MinRelevance
	}
	cfg.KnowledgeMaxResponseRunes = positiveOr(fc.Knowledge.MaxResponseRunes, 1500)
	cfg.MaxQueryRunes = positiveOr(fc.Knowledge.MaxQueryRunes, 1000)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = positiveOr(fc.Lifecycle.OverloadThresholdPct, 80)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedFailurePct = positiveOr(fc.Lifecycle.DegradedFailurePct, 50)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p durationPolicy) resolve(def Policy) Policy {
	out := Policy{
		Timeout:        parseDuration(p.Timeout, def.Timeout),
		Retries:        def.Retries,
		RetryBaseDelay: parseDuration(p.RetryBaseDelay, def.RetryBaseDelay),
		RetryMaxDelay:  parseDuration(p.RetryMaxDelay, def.RetryMaxDelay),
	}
	if p.Retries != nil && *p.Retries >= 0 {
		out.Retries = *p.Retries
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above the
// largest capability budget when needed.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.ArchiveTTL < 10*cfg.ForecastTTL {
		return fmt.Errorf("cache.ttl.archive (%s) must be at least 10x cache.ttl.forecast (%s)", cfg.ArchiveTTL, cfg.ForecastTTL)
	}
	if cfg.StaleWindow < 0 {
		return fmt.Errorf("cache.stale_window must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"backends.soil.timeout":             cfg.SoilAPITimeout,
		"backends.weather_forecast.timeout": cfg.WeatherAPITimeout,
		"backends.knowledge.timeout":        cfg.KnowledgeAPITimeout,
		"backends.geoip.timeout":            cfg.GeoIPTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if cfg.RecommendationThreshold <= 0 || cfg.RecommendationThreshold > 1 {
		return fmt.Errorf("crop.threshold must be in (0, 1], got %v", cfg.RecommendationThreshold)
	}
	if cfg.KnowledgeMinRelevance < 0 || cfg.KnowledgeMinRelevance > 1 {
		return fmt.Errorf("knowledge.min_relevance must be in [0, 1], got %v", cfg.KnowledgeMinRelevance)
	}
	if cfg.GeoIPPrecision < 0 || cfg.GeoIPPrecision > 6 {
		return fmt.Errorf("backends.geoip_precision must be between 0 and 6, got %d", cfg.GeoIPPrecision)
	}
	if cfg.DefaultForecastDays > models.ForecastHorizonDays {
		return fmt.Errorf("weather.default_forecast_days must be at most %d", models.ForecastHorizonDays)
	}
	var longest time.Duration
	for _, p := range cfg.Policies {
		if p.Timeout > longest {
			longest = p.Timeout
		}
	}
	if cfg.RequestTimeout <= longest {
		cfg.RequestTimeout = longest + time.Second
	}
	return nil
}
