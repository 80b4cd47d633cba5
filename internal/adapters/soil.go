package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/cache"
	"github.com/kjstillabower/agri-query-service/internal/client"
	"github.com/kjstillabower/agri-query-service/internal/models"
)

// SoilFetcher is implemented by client.SoilClient.
type SoilFetcher interface {
	Analyze(ctx context.Context, coord models.Coordinate) (models.SoilProfile, error)
}

// Soil returns the soil classification and properties at the coordinate.
type Soil struct {
	fetcher SoilFetcher
	cache   *cache.Layer
	ttl     time.Duration
}

func NewSoil(fetcher SoilFetcher, layer *cache.Layer, ttl time.Duration) *Soil {
	return &Soil{fetcher: fetcher, cache: layer, ttl: ttl}
}

func (a *Soil) ID() models.CapabilityID { return models.CapabilitySoil }

func (a *Soil) Invoke(ctx context.Context, req models.CapabilityRequest) models.Result {
	coord, failed := requireCoordinate(req)
	if failed != nil {
		return *failed
	}
	// Fetch at key precision so every request sharing a key sees the same data.
	coord = coord.Rounded(cache.KeyPrecision)
	key := cache.NewKey(models.CapabilitySoil, cache.KeyParams{Coordinate: &coord})

	profile, lookup, err := cache.GetOrCompute(ctx, a.cache, key, a.ttl, func(ctx context.Context) (models.SoilProfile, error) {
		return a.fetcher.Analyze(ctx, coord)
	})
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return models.Failed(models.KindInsufficientData, "no soil data at coordinate")
		}
		return failedFromError(err)
	}
	return resultFromLookup(profile, lookup)
}
