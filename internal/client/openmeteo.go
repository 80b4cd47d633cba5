package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

var dailyFields = []string{
	"temperature_2m_mean",
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"et0_fao_evapotranspiration",
	"wind_speed_10m_max",
	"wind_gusts_10m_max",
	"wind_direction_10m_dominant",
	"weather_code",
}

// WeatherClient queries Open-Meteo. Windows ending before today go to the
// archive backend, everything else to the forecast backend.
type WeatherClient struct {
	forecast *Backend
	archive  *Backend
}

func NewWeatherClient(forecast, archive *Backend) *WeatherClient {
	return &WeatherClient{forecast: forecast, archive: archive}
}

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Daily    struct {
		Time             []string   `json:"time"`
		TemperatureMean  []*float64 `json:"temperature_2m_mean"`
		TemperatureMax   []*float64 `json:"temperature_2m_max"`
		TemperatureMin   []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		ET0              []*float64 `json:"et0_fao_evapotranspiration"`
		WindSpeedMax     []*float64 `json:"wind_speed_10m_max"`
		WindGustsMax     []*float64 `json:"wind_gusts_10m_max"`
		WindDirection    []*float64 `json:"wind_direction_10m_dominant"`
		WeatherCode      []*float64 `json:"weather_code"`
	} `json:"daily"`
}

// Daily returns daily weather for coord between start and end inclusive.
func (c *WeatherClient) Daily(ctx context.Context, coord models.Coordinate, start, end time.Time, archive bool) (models.WeatherReport, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(coord.Latitude(), 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(coord.Longitude(), 'f', -1, 64))
	query.Set("start_date", start.Format(models.DateLayout))
	query.Set("end_date", end.Format(models.DateLayout))
	query.Set("daily", strings.Join(dailyFields, ","))
	query.Set("timezone", "auto")

	backend, path := c.forecast, "/v1/forecast"
	if archive {
		backend, path = c.archive, "/v1/archive"
	}
	var resp openMeteoResponse
	if err := backend.getJSON(ctx, path, query, &resp); err != nil {
		return models.WeatherReport{}, err
	}

	days, err := mapDaily(resp)
	if err != nil {
		return models.WeatherReport{}, eris.Wrapf(ErrMalformedResponse, "%s: %v", backend.name, err)
	}
	return models.WeatherReport{
		Coordinate: coord,
		Start:      start.Format(models.DateLayout),
		End:        end.Format(models.DateLayout),
		Timezone:   resp.Timezone,
		Archive:    archive,
		Daily:      days,
		Summary:    models.Summarize(days),
	}, nil
}

func mapDaily(resp openMeteoResponse) ([]models.DailyWeather, error) {
	d := resp.Daily
	n := len(d.Time)
	if n == 0 {
		return nil, fmt.Errorf("no daily rows")
	}
	columns := map[string][]*float64{
		"temperature_2m_mean":         d.TemperatureMean,
		"temperature_2m_max":          d.TemperatureMax,
		"temperature_2m_min":          d.TemperatureMin,
		"precipitation_sum":           d.PrecipitationSum,
		"et0_fao_evapotranspiration":  d.ET0,
		"wind_speed_10m_max":          d.WindSpeedMax,
		"wind_gusts_10m_max":          d.WindGustsMax,
		"wind_direction_10m_dominant": d.WindDirection,
		"weather_code":                d.WeatherCode,
	}
	for name, col := range columns {
		if col != nil && len(col) != n {
			return nil, fmt.Errorf("daily %s has %d values, want %d", name, len(col), n)
		}
	}

	days := make([]models.DailyWeather, n)
	for i, date := range d.Time {
		days[i] = models.DailyWeather{
			Date:             date,
			TemperatureMean:  at(d.TemperatureMean, i),
			TemperatureMax:   at(d.TemperatureMax, i),
			TemperatureMin:   at(d.TemperatureMin, i),
			PrecipitationSum: at(d.PrecipitationSum, i),
			ET0:              at(d.ET0, i),
			WindSpeedMax:     at(d.WindSpeedMax, i),
			WindGustsMax:     at(d.WindGustsMax, i),
			WindDirection:    at(d.WindDirection, i),
		}
		if code := at(d.WeatherCode, i); code != nil {
			v := int(*code)
			days[i].WeatherCode = &v
		}
	}
	return days, nil
}

func at(col []*float64, i int) *float64 {
	if col == nil {
		return nil
	}
	return col[i]
}
