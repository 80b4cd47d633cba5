package testhelpers

import (
	"testing"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/adapters"
	"github.com/kjstillabower/agri-query-service/internal/cache"
	"github.com/kjstillabower/agri-query-service/internal/client"
	"github.com/kjstillabower/agri-query-service/internal/cropmodel"
	"github.com/kjstillabower/agri-query-service/internal/dispatch"
	"github.com/kjstillabower/agri-query-service/internal/location"
	"github.com/kjstillabower/agri-query-service/internal/models"
)

// Stack is a dispatcher wired to FakeBackends the same way the service wires
// the real upstreams.
type Stack struct {
	Backends   *FakeBackends
	Dispatcher *dispatch.Dispatcher
	Crop       *adapters.Crop
	Clients    []*client.Backend
}

// StackOptions configures NewStack. A nil Bundle loads the test model at ModelPath.
type StackOptions struct {
	Bundle    *cropmodel.Bundle
	ModelPath string
	Now       func() time.Time
}

// NewStack builds the full dispatch stack against fake upstreams and an in-memory cache.
func NewStack(t *testing.T, opts StackOptions) *Stack {
	t.Helper()
	fb := NewFakeBackends(t)
	backend := func(name, url string) *client.Backend {
		return client.NewBackend(client.BackendConfig{Name: name, BaseURL: url, Timeout: 2 * time.Second})
	}
	soilB := backend("soil", fb.Soil.URL)
	forecastB := backend("weather_forecast", fb.Forecast.URL)
	archiveB := backend("weather_archive", fb.Archive.URL)
	knowledgeB := backend("knowledge", fb.Knowledge.URL)
	geoB := backend("geoip", fb.GeoIP.URL)

	bundle := opts.Bundle
	if bundle == nil {
		bundle = cropmodel.Load(opts.ModelPath, nil)
	}
	layer := cache.NewLayer(cache.NewInMemoryStore(), cache.LayerOptions{StaleWindow: time.Hour})
	crop := adapters.NewCrop(bundle, cropmodel.DefaultThreshold, nil)
	list := []adapters.Adapter{
		adapters.NewSoil(client.NewSoilClient(soilB), layer, 168*time.Hour),
		adapters.NewWeather(client.NewWeatherClient(forecastB, archiveB), layer,
			adapters.WeatherTTLs{Forecast: 30 * time.Minute, Archive: 12 * time.Hour}, adapters.DefaultForecastDays),
		crop,
		adapters.NewKnowledge(client.NewKnowledgeClient(knowledgeB), layer, adapters.KnowledgeOptions{MinRelevance: 0.35, TTL: 6 * time.Hour}),
	}
	resolver := location.NewResolver(client.NewGeoIPClient(geoB), location.DefaultPrecision, nil)

	policy := dispatch.Policy{Timeout: 3 * time.Second, Retries: 1, RetryBaseDelay: 5 * time.Millisecond, RetryMaxDelay: 20 * time.Millisecond}
	policies := make(map[models.CapabilityID]dispatch.Policy, len(models.AllCapabilities))
	for _, id := range models.AllCapabilities {
		policies[id] = policy
	}
	return &Stack{
		Backends:   fb,
		Dispatcher: dispatch.New(list, resolver, dispatch.Options{Policies: policies, Now: opts.Now}),
		Crop:       crop,
		Clients:    []*client.Backend{soilB, forecastB, archiveB, knowledgeB, geoB},
	}
}
