// Package aggregate merges per-capability results into one response.
package aggregate

import (
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// Input is what the dispatcher collected for one request.
type Input struct {
	RequestID string
	Now       time.Time
	Requested []models.CapabilityID
	Location  *models.ResolvedLocation
	Results   map[models.CapabilityID]models.Result
}

// Aggregate returns a response with exactly one entry per requested capability.
// A requested capability with no result is reported as Failed. Results for
// capabilities that were only resolved as dependencies are left out.
func Aggregate(in Input) models.AggregatedResponse {
	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	resp := models.AggregatedResponse{
		RequestID:   requestID,
		GeneratedAt: in.Now,
		Location:    in.Location,
		Results:     make(map[models.CapabilityID]models.Result, len(in.Requested)),
	}
	for _, id := range in.Requested {
		r, ok := in.Results[id]
		if !ok || r.Status == "" {
			r = models.Failed(models.KindUpstreamUnavailable, "capability produced no result")
		}
		resp.Results[id] = r
		switch r.Status {
		case models.StatusSuccess:
			resp.Summary.Succeeded++
		case models.StatusDegraded:
			resp.Summary.Degraded++
		default:
			resp.Summary.Failed++
		}
	}
	resp.NarrativeReady = resp.Summary.Succeeded+resp.Summary.Degraded > 0
	return resp
}
