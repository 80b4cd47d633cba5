package cropmodel

import "github.com/kjstillabower/agri-query-service/internal/models"

// maxRuleResults caps the rule-based shortlist.
const maxRuleResults = 5

type cropScore struct {
	crop  string
	score float64
}

var (
	steppeCrops = []cropScore{{"wheat", .85}, {"barley", .80}, {"sunflower", .75}, {"maize", .70}, {"sugar_beet", .65}}
	loamCrops   = []cropScore{{"cotton", .85}, {"maize", .80}, {"tomato", .75}, {"pepper", .70}, {"potato", .65}}
	aridCrops   = []cropScore{{"olive", .85}, {"grape", .80}, {"almond", .75}, {"apricot", .70}, {"peach", .65}}
	otherCrops  = []cropScore{{"wheat", .80}, {"barley", .75}, {"maize", .70}, {"potato", .65}, {"bean", .60}}
)

// RuleBased shortlists plausible crops from coarse soil-group and climate
// bands. It is deterministic and always returns at least one crop.
func RuleBased(f Features, threshold float64) []models.Recommendation {
	scores := map[string]float64{}
	add := func(list []cropScore) {
		for _, c := range list {
			if c.score > scores[c.crop] {
				scores[c.crop] = c.score
			}
		}
	}

	switch int(f[FeatureWRBCode]) {
	case WRBChernozem, WRBKastanozem, WRBPhaeozem:
		add(steppeCrops)
	case WRBLuvisol, WRBCambisol:
		add(loamCrops)
	case WRBDurisol, WRBGypsisol:
		add(aridCrops)
	default:
		add(otherCrops)
	}

	annualRain := f[FeaturePrecipitationDailyMean] * 365
	if f[FeatureTemperatureMax] > 30 {
		add([]cropScore{{"cotton", .90}, {"maize", .85}})
	}
	if f[FeatureTemperatureMin] < 5 {
		add([]cropScore{{"barley", .90}, {"potato", .85}})
	}
	if annualRain < 400 {
		add([]cropScore{{"olive", .90}, {"almond", .85}})
	}
	if annualRain > 800 {
		add([]cropScore{{"tea", .90}, {"hazelnut", .85}})
	}

	recs := make([]models.Recommendation, 0, len(scores))
	for crop, s := range scores {
		recs = append(recs, newRecommendation(crop, s, threshold))
	}
	sortRecommendations(recs)
	if len(recs) > maxRuleResults {
		recs = recs[:maxRuleResults]
	}
	return recs
}
