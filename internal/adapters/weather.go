package adapters

import (
	"context"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/cache"
	"github.com/kjstillabower/agri-query-service/internal/models"
)

// DefaultForecastDays is the window used when a request carries none.
const DefaultForecastDays = 7

// WeatherFetcher is implemented by client.WeatherClient.
type WeatherFetcher interface {
	Daily(ctx context.Context, coord models.Coordinate, start, end time.Time, archive bool) (models.WeatherReport, error)
}

// WeatherTTLs are the cache lifetimes for forecast and archive windows.
type WeatherTTLs struct {
	Forecast time.Duration
	Archive  time.Duration
}

// Weather returns daily weather for a forecast horizon or a historical range.
type Weather struct {
	fetcher     WeatherFetcher
	cache       *cache.Layer
	ttls        WeatherTTLs
	defaultDays int
}

func NewWeather(fetcher WeatherFetcher, layer *cache.Layer, ttls WeatherTTLs, defaultDays int) *Weather {
	if defaultDays <= 0 {
		defaultDays = DefaultForecastDays
	}
	return &Weather{fetcher: fetcher, cache: layer, ttls: ttls, defaultDays: defaultDays}
}

func (a *Weather) ID() models.CapabilityID { return models.CapabilityWeather }

// Invoke validates the window before any network call. Windows ending before
// today are archival and cached with the archive TTL.
func (a *Weather) Invoke(ctx context.Context, req models.CapabilityRequest) models.Result {
	window := models.TimeWindow{Days: a.defaultDays}
	if req.TimeWindow != nil {
		window = *req.TimeWindow
	}
	if err := window.Validate(req.Now); err != nil {
		return models.FailedFromError(err)
	}
	coord, failed := requireCoordinate(req)
	if failed != nil {
		return *failed
	}
	coord = coord.Rounded(cache.KeyPrecision)

	start, end := window.Dates(req.Now)
	today, _ := models.TimeWindow{Days: 1}.Dates(req.Now)
	archive := end.Before(today)
	ttl := a.ttls.Forecast
	if archive {
		ttl = a.ttls.Archive
	}

	key := cache.NewKey(models.CapabilityWeather, cache.KeyParams{Coordinate: &coord, Start: start, End: end})
	report, lookup, err := cache.GetOrCompute(ctx, a.cache, key, ttl, func(ctx context.Context) (models.WeatherReport, error) {
		return a.fetcher.Daily(ctx, coord, start, end, archive)
	})
	if err != nil {
		return failedFromError(err)
	}
	return resultFromLookup(report, lookup)
}
