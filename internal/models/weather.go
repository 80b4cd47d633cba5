package models

// DailyWeather is one day of aggregated weather. Nil fields were not reported upstream.
type DailyWeather struct {
	Date             string   `json:"date"`
	TemperatureMean  *float64 `json:"temperature_mean,omitempty"`
	TemperatureMax   *float64 `json:"temperature_max,omitempty"`
	TemperatureMin   *float64 `json:"temperature_min,omitempty"`
	PrecipitationSum *float64 `json:"precipitation_sum,omitempty"`
	ET0              *float64 `json:"et0,omitempty"`
	WindSpeedMax     *float64 `json:"wind_speed_max,omitempty"`
	WindGustsMax     *float64 `json:"wind_gusts_max,omitempty"`
	WindDirection    *float64 `json:"wind_direction,omitempty"`
	WeatherCode      *int     `json:"weather_code,omitempty"`
}

// WeatherSummary aggregates the daily rows of a report.
type WeatherSummary struct {
	Days                   int     `json:"days"`
	TemperatureMean        float64 `json:"temperature_mean"`
	TemperatureMax         float64 `json:"temperature_max"`
	TemperatureMin         float64 `json:"temperature_min"`
	PrecipitationTotal     float64 `json:"precipitation_total"`
	PrecipitationDailyMean float64 `json:"precipitation_daily_mean"`
	ET0DailyMean           float64 `json:"et0_daily_mean"`
	// TemperatureSamples is the number of days that reported a mean temperature.
	TemperatureSamples int `json:"temperature_samples"`
}

// WeatherReport is the Success payload of the weather capability.
type WeatherReport struct {
	Coordinate Coordinate     `json:"coordinate"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Timezone   string         `json:"timezone,omitempty"`
	Archive    bool           `json:"archive"`
	Daily      []DailyWeather `json:"daily"`
	Summary    WeatherSummary `json:"summary"`
}

// Summarize computes a WeatherSummary over the reported values of days.
func Summarize(days []DailyWeather) WeatherSummary {
	s := WeatherSummary{Days: len(days)}
	var tempSum, precipSum, et0Sum float64
	var precipN, et0N int
	maxSet, minSet := false, false
	for _, d := range days {
		if d.TemperatureMean != nil {
			tempSum += *d.TemperatureMean
			s.TemperatureSamples++
		}
		if d.TemperatureMax != nil && (!maxSet || *d.TemperatureMax > s.TemperatureMax) {
			s.TemperatureMax = *d.TemperatureMax
			maxSet = true
		}
		if d.TemperatureMin != nil && (!minSet || *d.TemperatureMin < s.TemperatureMin) {
			s.TemperatureMin = *d.TemperatureMin
			minSet = true
		}
		if d.PrecipitationSum != nil {
			precipSum += *d.PrecipitationSum
			precipN++
		}
		if d.ET0 != nil {
			et0Sum += *d.ET0
			et0N++
		}
	}
	if s.TemperatureSamples > 0 {
		s.TemperatureMean = RoundTo(tempSum/float64(s.TemperatureSamples), 2)
	}
	s.PrecipitationTotal = RoundTo(precipSum, 2)
	if precipN > 0 {
		s.PrecipitationDailyMean = RoundTo(precipSum/float64(precipN), 2)
	}
	if et0N > 0 {
		s.ET0DailyMean = RoundTo(et0Sum/float64(et0N), 2)
	}
	return s
}
