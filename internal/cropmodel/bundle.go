// Package cropmodel holds the crop recommendation model bundle and the
// rule-based estimator used when the bundle is unusable.
package cropmodel

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// Health gates model-backed versus rule-based recommendations.
type Health string

const (
	HealthLoaded    Health = "loaded"
	HealthCorrupted Health = "corrupted"
)

// DefaultThreshold is the probability at which a crop counts as recommended.
const DefaultThreshold = 0.5

// Metadata describes a trained bundle.
type Metadata struct {
	Version   string `json:"version"`
	TrainedAt string `json:"trained_at"`
}

type bundleFile struct {
	Metadata     Metadata `json:"metadata"`
	FeatureOrder []string `json:"feature_order"`
	Scaler       struct {
		Mean  []float64 `json:"mean"`
		Scale []float64 `json:"scale"`
	} `json:"scaler"`
	Crops   []string    `json:"crops"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// Bundle is a one-vs-rest logistic model with its feature scaler. It is
// read-only after construction and safe for concurrent use.
type Bundle struct {
	health   Health
	reason   string
	metadata Metadata
	crops    []string
	mean     []float64
	scale    []float64
	weights  *mat.Dense
	bias     *mat.VecDense
}

// Load reads the bundle at path. It never fails: any problem yields a
// Corrupted bundle carrying the reason.
func Load(path string, logger *zap.Logger) *Bundle {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		err = eris.Wrapf(err, "read model bundle %s", path)
		logger.Error("crop model unavailable, using rule-based fallback", zap.Error(err))
		return Corrupted(err.Error())
	}
	b, err := Parse(data)
	if err != nil {
		err = eris.Wrapf(err, "model bundle %s", path)
		logger.Error("crop model unavailable, using rule-based fallback", zap.Error(err))
		return Corrupted(err.Error())
	}
	logger.Info("crop model loaded",
		zap.String("version", b.metadata.Version),
		zap.String("trained_at", b.metadata.TrainedAt),
		zap.Int("crops", len(b.crops)))
	return b
}

// Corrupted returns a bundle that only supports the rule-based path.
func Corrupted(reason string) *Bundle {
	return &Bundle{health: HealthCorrupted, reason: reason}
}

// Parse decodes and validates a bundle.
func Parse(data []byte) (*Bundle, error) {
	var f bundleFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "decode")
	}
	n := len(FeatureOrder)
	if len(f.FeatureOrder) != n {
		return nil, eris.Errorf("feature_order has %d entries, want %d", len(f.FeatureOrder), n)
	}
	for i, name := range f.FeatureOrder {
		if name != FeatureOrder[i] {
			return nil, eris.Errorf("feature_order[%d] = %q, want %q", i, name, FeatureOrder[i])
		}
	}
	if len(f.Scaler.Mean) != n || len(f.Scaler.Scale) != n {
		return nil, eris.Errorf("scaler has %d means and %d scales, want %d", len(f.Scaler.Mean), len(f.Scaler.Scale), n)
	}
	for i, s := range f.Scaler.Scale {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, eris.Errorf("scaler scale[%d] = %v is not usable", i, s)
		}
	}
	if floats.HasNaN(f.Scaler.Mean) {
		return nil, eris.New("scaler mean contains NaN")
	}
	k := len(f.Crops)
	if k == 0 {
		return nil, eris.New("no crops")
	}
	if len(f.Weights) != k || len(f.Bias) != k {
		return nil, eris.Errorf("weights has %d rows and bias %d entries, want %d", len(f.Weights), len(f.Bias), k)
	}
	flat := make([]float64, 0, k*n)
	for i, row := range f.Weights {
		if len(row) != n {
			return nil, eris.Errorf("weights[%d] has %d columns, want %d", i, len(row), n)
		}
		if floats.HasNaN(row) {
			return nil, eris.Errorf("weights[%d] contains NaN", i)
		}
		flat = append(flat, row...)
	}
	return &Bundle{
		health:   HealthLoaded,
		metadata: f.Metadata,
		crops:    append([]string(nil), f.Crops...),
		mean:     append([]float64(nil), f.Scaler.Mean...),
		scale:    append([]float64(nil), f.Scaler.Scale...),
		weights:  mat.NewDense(k, n, flat),
		bias:     mat.NewVecDense(k, append([]float64(nil), f.Bias...)),
	}, nil
}

func (b *Bundle) Health() Health { return b.health }

// Reason explains a Corrupted health. Empty when loaded.
func (b *Bundle) Reason() string { return b.reason }

func (b *Bundle) Metadata() Metadata { return b.metadata }

// Predict returns per-crop probabilities for features in FeatureOrder.
func (b *Bundle) Predict(features []float64) (map[string]float64, error) {
	if b.health != HealthLoaded {
		return nil, models.NewError(models.KindModelUnavailable, b.reason)
	}
	if len(features) != len(b.mean) {
		return nil, eris.Errorf("got %d features, want %d", len(features), len(b.mean))
	}
	scaled := append([]float64(nil), features...)
	floats.Sub(scaled, b.mean)
	floats.Div(scaled, b.scale)

	var z mat.VecDense
	z.MulVec(b.weights, mat.NewVecDense(len(scaled), scaled))
	z.AddVec(&z, b.bias)

	out := make(map[string]float64, len(b.crops))
	for i, crop := range b.crops {
		out[crop] = sigmoid(z.AtVec(i))
	}
	return out, nil
}

// Recommend scores every crop and returns them sorted by descending probability.
func (b *Bundle) Recommend(features Features, threshold float64) ([]models.Recommendation, error) {
	probs, err := b.Predict(features.Vector())
	if err != nil {
		return nil, err
	}
	recs := make([]models.Recommendation, 0, len(probs))
	for crop, p := range probs {
		recs = append(recs, newRecommendation(crop, p, threshold))
	}
	sortRecommendations(recs)
	return recs, nil
}

func newRecommendation(crop string, p, threshold float64) models.Recommendation {
	p = models.RoundTo(p, 4)
	return models.Recommendation{
		Crop:           crop,
		Probability:    p,
		ConfidenceTier: models.TierFor(p),
		Recommended:    p >= threshold,
	}
}

// sortRecommendations orders by probability, then name, so output is deterministic.
func sortRecommendations(recs []models.Recommendation) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Probability != recs[j].Probability {
			return recs[i].Probability > recs[j].Probability
		}
		return recs[i].Crop < recs[j].Crop
	})
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
