package cropmodel

import (
	"math"
	"strings"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// Feature names, in the order the model bundle is trained on.
const (
	FeatureWRBCode                = "wrb_code"
	FeatureOrganicCarbon          = "organic_carbon"
	FeaturePH                     = "ph"
	FeatureClay                   = "clay"
	FeatureSand                   = "sand"
	FeatureSilt                   = "silt"
	FeatureCEC                    = "cation_exchange_capacity"
	FeatureElectricalConductivity = "electrical_conductivity"
	FeatureTemperatureMean        = "temperature_mean"
	FeatureTemperatureMax         = "temperature_max"
	FeatureTemperatureMin         = "temperature_min"
	FeaturePrecipitationDailyMean = "precipitation_daily_mean"
	FeatureET0DailyMean           = "et0_daily_mean"
)

// FeatureOrder is the documented feature vector layout.
var FeatureOrder = []string{
	FeatureWRBCode,
	FeatureOrganicCarbon,
	FeaturePH,
	FeatureClay,
	FeatureSand,
	FeatureSilt,
	FeatureCEC,
	FeatureElectricalConductivity,
	FeatureTemperatureMean,
	FeatureTemperatureMax,
	FeatureTemperatureMin,
	FeaturePrecipitationDailyMean,
	FeatureET0DailyMean,
}

// soilDefaults fill unmeasured soil properties with typical mid-range values.
var soilDefaults = map[string]float64{
	FeatureOrganicCarbon:          1.0,
	FeaturePH:                     7.0,
	FeatureClay:                   25,
	FeatureSand:                   40,
	FeatureSilt:                   35,
	FeatureCEC:                    20,
	FeatureElectricalConductivity: 0.5,
}

// wrbGroups numbers the WRB reference soil groups. Unknown groups are 0.
var wrbGroups = map[string]int{
	"HS": 1, "AT": 2, "TC": 3, "CR": 4, "LP": 5, "SN": 6, "VR": 7, "SC": 8,
	"GL": 9, "AN": 10, "PZ": 11, "PT": 12, "NT": 13, "FR": 14, "PL": 15, "ST": 16,
	"CH": 17, "KS": 18, "PH": 19, "UM": 20, "DU": 21, "GY": 22, "CL": 23, "RT": 24,
	"AC": 25, "LX": 26, "AL": 27, "LV": 28, "CM": 29, "AR": 30, "FL": 31, "RG": 32,
}

// WRB group codes referenced by the rule-based estimator.
const (
	WRBChernozem  = 17
	WRBKastanozem = 18
	WRBPhaeozem   = 19
	WRBDurisol    = 21
	WRBGypsisol   = 22
	WRBLuvisol    = 28
	WRBCambisol   = 29
)

// WRBCode returns the group number for a WRB code such as "CH" or "CHh".
func WRBCode(code string) int {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 2 {
		return 0
	}
	return wrbGroups[code[:2]]
}

// Features is a named feature set. A complete set has every FeatureOrder entry.
type Features map[string]float64

// Vector returns the values in FeatureOrder. Missing names read as 0.
func (f Features) Vector() []float64 {
	out := make([]float64, len(FeatureOrder))
	for i, name := range FeatureOrder {
		out[i] = f[name]
	}
	return out
}

// Complete reports whether every documented feature is present and finite.
func (f Features) Complete() bool {
	for _, name := range FeatureOrder {
		v, ok := f[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ManualFeatures returns the documented subset of raw when it is complete.
func ManualFeatures(raw map[string]float64) (Features, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	f := make(Features, len(FeatureOrder))
	for _, name := range FeatureOrder {
		if v, ok := raw[name]; ok {
			f[name] = v
		}
	}
	return f, f.Complete()
}

// FromInputs builds features from a soil profile and a weather summary.
// Unmeasured soil properties take defaults; weather without any temperature
// samples is InsufficientData.
func FromInputs(soil models.SoilProfile, weather models.WeatherSummary) (Features, error) {
	if weather.TemperatureSamples == 0 {
		return nil, models.NewError(models.KindInsufficientData, "weather report has no temperature data")
	}
	code := soil.Classification.WRB2Code
	if code == "" {
		code = soil.Classification.WRB4Code
	}
	f := Features{
		FeatureWRBCode:                float64(WRBCode(code)),
		FeatureTemperatureMean:        weather.TemperatureMean,
		FeatureTemperatureMax:         weather.TemperatureMax,
		FeatureTemperatureMin:         weather.TemperatureMin,
		FeaturePrecipitationDailyMean: weather.PrecipitationDailyMean,
		FeatureET0DailyMean:           weather.ET0DailyMean,
	}
	measured := soilValues(soil)
	for name, def := range soilDefaults {
		if v, ok := measured[name]; ok {
			f[name] = v
		} else {
			f[name] = def
		}
	}
	return f, nil
}

// soilValues indexes measured properties by normalized name ("Organic Carbon" -> organic_carbon).
func soilValues(soil models.SoilProfile) map[string]float64 {
	out := make(map[string]float64, len(soil.Properties))
	for _, p := range soil.Properties {
		if p.Value == nil {
			continue
		}
		name := strings.Join(strings.Fields(strings.ToLower(p.Name)), "_")
		if _, seen := out[name]; !seen {
			out[name] = *p.Value
		}
	}
	return out
}
