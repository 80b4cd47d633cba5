package models

// ConfidenceTier buckets a recommendation probability.
type ConfidenceTier string

const (
	TierHigh    ConfidenceTier = "High"
	TierMedium  ConfidenceTier = "Medium"
	TierLow     ConfidenceTier = "Low"
	TierVeryLow ConfidenceTier = "VeryLow"
)

// TierFor maps a probability to its tier. Each lower bound is inclusive.
func TierFor(p float64) ConfidenceTier {
	switch {
	case p >= 0.8:
		return TierHigh
	case p >= 0.6:
		return TierMedium
	case p >= 0.4:
		return TierLow
	default:
		return TierVeryLow
	}
}

// Recommendation scores one crop.
type Recommendation struct {
	Crop           string         `json:"crop"`
	Probability    float64        `json:"probability"`
	ConfidenceTier ConfidenceTier `json:"confidence_tier"`
	Recommended    bool           `json:"recommended"`
}

// Recommendation methods.
const (
	MethodModel     = "model"
	MethodRuleBased = "rule_based"
)

// Feature input origins.
const (
	InputsDependencies = "soil_and_weather"
	InputsManual       = "manual"
)

// CropRecommendations is the payload of the crop recommendation capability.
// Recommendations are sorted by descending probability.
type CropRecommendations struct {
	Method          string             `json:"method"`
	ModelVersion    string             `json:"model_version,omitempty"`
	Threshold       float64            `json:"threshold"`
	Inputs          string             `json:"inputs"`
	Features        map[string]float64 `json:"features,omitempty"`
	Recommendations []Recommendation   `json:"recommendations"`
}
