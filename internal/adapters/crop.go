package adapters

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-query-service/internal/cropmodel"
	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/observability"
)

// Crop recommends crops from soil and climate features. A corrupted model
// bundle switches it to the rule-based estimator, reported as Degraded.
// The bundle can be replaced at runtime by a model reload.
type Crop struct {
	bundle    atomic.Pointer[cropmodel.Bundle]
	threshold float64
	logger    *zap.Logger
}

func NewCrop(bundle *cropmodel.Bundle, threshold float64, logger *zap.Logger) *Crop {
	if threshold <= 0 || threshold > 1 {
		threshold = cropmodel.DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Crop{threshold: threshold, logger: logger}
	a.SetBundle(bundle)
	return a
}

// Bundle returns the model bundle currently in use.
func (a *Crop) Bundle() *cropmodel.Bundle { return a.bundle.Load() }

// SetBundle replaces the model bundle. A nil bundle is treated as corrupted.
func (a *Crop) SetBundle(b *cropmodel.Bundle) {
	if b == nil {
		b = cropmodel.Corrupted("no model bundle")
	}
	a.bundle.Store(b)
}

func (a *Crop) ID() models.CapabilityID { return models.CapabilityCropRecommendation }

// NeedsDependencies reports whether req must wait for soil and weather results.
func NeedsDependencies(req models.CapabilityRequest) bool {
	_, ok := cropmodel.ManualFeatures(req.Features)
	return !ok
}

func (a *Crop) Invoke(ctx context.Context, req models.CapabilityRequest) models.Result {
	logger := observability.LoggerFromContext(ctx, a.logger)

	features, inputs, failed := a.features(req)
	if failed != nil {
		return *failed
	}
	payload := models.CropRecommendations{
		Threshold: a.threshold,
		Inputs:    inputs,
		Features:  features,
	}

	bundle := a.Bundle()
	if bundle.Health() == cropmodel.HealthLoaded {
		recs, err := bundle.Recommend(features, a.threshold)
		if err == nil {
			payload.Method = models.MethodModel
			payload.ModelVersion = bundle.Metadata().Version
			payload.Recommendations = recs
			return models.Success(payload, models.SourcePrimary)
		}
		logger.Error("crop model prediction failed, using rule-based fallback", zap.Error(err))
	}

	observability.CropFallbackTotal.Inc()
	payload.Method = models.MethodRuleBased
	payload.Recommendations = cropmodel.RuleBased(features, a.threshold)
	return models.Degraded(payload, models.ReasonModelUnavailable)
}

func (a *Crop) features(req models.CapabilityRequest) (cropmodel.Features, string, *models.Result) {
	if f, ok := cropmodel.ManualFeatures(req.Features); ok {
		return f, models.InputsManual, nil
	}
	insufficient := func(msg string) (cropmodel.Features, string, *models.Result) {
		r := models.Failed(models.KindInsufficientData, msg)
		return nil, "", &r
	}

	soilRes, ok := req.Dependencies[models.CapabilitySoil]
	if !ok || !soilRes.Usable() {
		return insufficient("soil data is required for crop recommendation")
	}
	weatherRes, ok := req.Dependencies[models.CapabilityWeather]
	if !ok || !weatherRes.Usable() {
		return insufficient("weather data is required for crop recommendation")
	}
	soil, ok := soilRes.Payload.(models.SoilProfile)
	if !ok {
		return insufficient("soil result has no soil profile")
	}
	weather, ok := weatherRes.Payload.(models.WeatherReport)
	if !ok {
		return insufficient("weather result has no weather report")
	}

	f, err := cropmodel.FromInputs(soil, weather.Summary)
	if err != nil {
		r := models.FailedFromError(err)
		return nil, "", &r
	}
	return f, models.InputsDependencies, nil
}
