package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/agri-query-service/internal/adapters"
	"github.com/kjstillabower/agri-query-service/internal/cache"
	"github.com/kjstillabower/agri-query-service/internal/cropmodel"
	"github.com/kjstillabower/agri-query-service/internal/location"
	"github.com/kjstillabower/agri-query-service/internal/models"
)

type stubSoil struct{}

func (stubSoil) Analyze(ctx context.Context, coord models.Coordinate) (models.SoilProfile, error) {
	ph, clay := 7.4, 28.0
	return models.SoilProfile{
		Coordinate:     coord,
		Classification: models.SoilClassification{WRB4Code: "KS", WRB4Description: "Kastanozems"},
		Properties: []models.SoilProperty{
			{Name: "pH", Value: &ph},
			{Name: "Clay", Value: &clay},
		},
	}, nil
}

type stubWeather struct{}

func (stubWeather) Daily(ctx context.Context, coord models.Coordinate, start, end time.Time, archive bool) (models.WeatherReport, error) {
	var days []models.DailyWeather
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		mean, max, min, rain := 14.0, 20.0, 7.0, 0.8
		days = append(days, models.DailyWeather{
			Date:             d.Format(models.DateLayout),
			TemperatureMean:  &mean,
			TemperatureMax:   &max,
			TemperatureMin:   &min,
			PrecipitationSum: &rain,
		})
	}
	return models.WeatherReport{Coordinate: coord, Daily: days, Summary: models.Summarize(days), Archive: archive}, nil
}

func scenarioDispatcher(bundle *cropmodel.Bundle) *Dispatcher {
	layer := cache.NewLayer(cache.NewInMemoryStore(), cache.LayerOptions{StaleWindow: time.Hour})
	list := []adapters.Adapter{
		adapters.NewSoil(stubSoil{}, layer, time.Hour),
		adapters.NewWeather(stubWeather{}, layer, adapters.WeatherTTLs{Forecast: 30 * time.Minute, Archive: 12 * time.Hour}, adapters.DefaultForecastDays),
		adapters.NewCrop(bundle, cropmodel.DefaultThreshold, nil),
	}
	return New(list, location.NewResolver(nil, location.DefaultPrecision, nil), Options{
		Policies: fastPolicy(),
		Now:      func() time.Time { return testNow },
	})
}

func farmRequest() Request {
	coord := models.MustCoordinate(39.0, 32.0)
	return Request{
		RequestID:    "req-1",
		Capabilities: []models.CapabilityID{models.CapabilitySoil, models.CapabilityWeather, models.CapabilityCropRecommendation},
		Coordinate:   &coord,
		TimeWindow:   &models.TimeWindow{Days: 3},
	}
}

// TestScenario_HealthyModel runs soil, weather and crop for one explicit
// coordinate with a loaded model.
func TestScenario_HealthyModel(t *testing.T) {
	bundle := cropmodel.Load("../cropmodel/testdata/model.json", nil)
	require.Equal(t, cropmodel.HealthLoaded, bundle.Health(), bundle.Reason())

	resp := scenarioDispatcher(bundle).Handle(context.Background(), farmRequest())

	assert.Equal(t, "req-1", resp.RequestID)
	require.NotNil(t, resp.Location)
	assert.Equal(t, models.LocationExplicit, resp.Location.Source)
	for _, id := range []models.CapabilityID{models.CapabilitySoil, models.CapabilityWeather, models.CapabilityCropRecommendation} {
		assert.Equal(t, models.StatusSuccess, resp.Results[id].Status, "%s: %s", id, resp.Results[id].Message)
	}
	assert.Equal(t, 3, resp.Summary.Succeeded)
	assert.True(t, resp.NarrativeReady)

	report := resp.Results[models.CapabilityWeather].Payload.(models.WeatherReport)
	assert.Len(t, report.Daily, 3)
	crop := resp.Results[models.CapabilityCropRecommendation].Payload.(models.CropRecommendations)
	assert.Equal(t, models.MethodModel, crop.Method)
}

// TestScenario_CorruptedModel verifies crop falls back while the other
// capabilities are unaffected.
func TestScenario_CorruptedModel(t *testing.T) {
	resp := scenarioDispatcher(cropmodel.Corrupted("feature order mismatch")).Handle(context.Background(), farmRequest())

	assert.Equal(t, models.StatusSuccess, resp.Results[models.CapabilitySoil].Status)
	assert.Equal(t, models.StatusSuccess, resp.Results[models.CapabilityWeather].Status)
	crop := resp.Results[models.CapabilityCropRecommendation]
	assert.Equal(t, models.StatusDegraded, crop.Status)
	assert.Equal(t, models.ReasonModelUnavailable, crop.Reason)
	assert.Equal(t, models.SourceFallback, crop.Source)
	assert.Equal(t, 1, resp.Summary.Degraded)
	assert.True(t, resp.NarrativeReady)
}

// TestScenario_SecondRequestServedFromCache verifies repeated dispatches for
// the same coordinate hit the cache.
func TestScenario_SecondRequestServedFromCache(t *testing.T) {
	d := scenarioDispatcher(cropmodel.Corrupted("x"))
	d.Handle(context.Background(), farmRequest())
	resp := d.Handle(context.Background(), farmRequest())

	assert.Equal(t, models.SourceCache, resp.Results[models.CapabilitySoil].Source)
	assert.Equal(t, models.SourceCache, resp.Results[models.CapabilityWeather].Source)
}
