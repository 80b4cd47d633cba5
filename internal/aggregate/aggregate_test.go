package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

func TestAggregate_TotalMapping(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	resp := Aggregate(Input{
		RequestID: "req-1",
		Now:       now,
		Requested: []models.CapabilityID{models.CapabilitySoil, models.CapabilityWeather, models.CapabilityKnowledge},
		Results: map[models.CapabilityID]models.Result{
			models.CapabilitySoil:    models.Success("soil", models.SourcePrimary),
			models.CapabilityWeather: models.Degraded("weather", models.ReasonStaleCache),
			// Resolved only as a dependency; must not leak into the response.
			models.CapabilityCropRecommendation: models.Success("crop", models.SourcePrimary),
		},
	})

	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, now, resp.GeneratedAt)
	assert.Len(t, resp.Results, 3)
	assert.NotContains(t, resp.Results, models.CapabilityCropRecommendation)
	assert.Equal(t, models.StatusFailed, resp.Results[models.CapabilityKnowledge].Status)
	assert.Equal(t, models.ResultSummary{Succeeded: 1, Degraded: 1, Failed: 1}, resp.Summary)
	assert.True(t, resp.NarrativeReady)
}

func TestAggregate_NarrativeReady(t *testing.T) {
	tests := []struct {
		name    string
		results map[models.CapabilityID]models.Result
		want    bool
	}{
		{"all failed", map[models.CapabilityID]models.Result{
			models.CapabilitySoil: models.Failed(models.KindTimeout, "slow"),
		}, false},
		{"degraded only", map[models.CapabilityID]models.Result{
			models.CapabilitySoil: models.Degraded("x", models.ReasonStaleCache),
		}, true},
		{"success", map[models.CapabilityID]models.Result{
			models.CapabilitySoil: models.Success("x", models.SourceCache),
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Aggregate(Input{Requested: []models.CapabilityID{models.CapabilitySoil}, Results: tt.results})
			assert.Equal(t, tt.want, resp.NarrativeReady)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}
