// Package adapters holds one adapter per capability. Each adapter is the
// only component that talks to its backend, and Invoke always returns
// exactly one Result; errors never cross the adapter boundary.
package adapters

import (
	"context"
	"errors"

	"github.com/kjstillabower/agri-query-service/internal/cache"
	"github.com/kjstillabower/agri-query-service/internal/client"
	"github.com/kjstillabower/agri-query-service/internal/models"
)

// Adapter invokes one capability.
type Adapter interface {
	ID() models.CapabilityID
	Invoke(ctx context.Context, req models.CapabilityRequest) models.Result
}

// resultFromLookup tags a payload with where the cache layer got it.
func resultFromLookup(payload any, lookup cache.Lookup) models.Result {
	if lookup == cache.LookupStale {
		return models.Degraded(payload, models.ReasonStaleCache)
	}
	return models.Success(payload, lookup.Source())
}

// failedFromError classifies err, preferring an explicit capability error kind.
func failedFromError(err error) models.Result {
	var capErr *models.Error
	if errors.As(err, &capErr) {
		return models.FailedFromError(err)
	}
	return models.Failed(client.KindOf(err), err.Error())
}

func requireCoordinate(req models.CapabilityRequest) (models.Coordinate, *models.Result) {
	if req.Coordinate == nil {
		r := models.Failed(models.KindLocationUnresolved, string(req.Capability)+" requires a resolved coordinate")
		return models.Coordinate{}, &r
	}
	return *req.Coordinate, nil
}
