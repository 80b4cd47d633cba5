// Package testhelpers provides fake upstream services and a fully wired
// dispatch stack for handler and end-to-end tests.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// FakeBackends serves the soil, Open-Meteo, knowledge and ip-api contracts.
// Status fields, when non-zero, replace the response with that HTTP status.
type FakeBackends struct {
	Soil      *httptest.Server
	Forecast  *httptest.Server
	Archive   *httptest.Server
	Knowledge *httptest.Server
	GeoIP     *httptest.Server

	SoilCalls      atomic.Int32
	WeatherCalls   atomic.Int32
	KnowledgeCalls atomic.Int32
	GeoIPCalls     atomic.Int32

	SoilStatus    atomic.Int32
	WeatherStatus atomic.Int32
}

// NewFakeBackends starts the fake servers and closes them when t finishes.
func NewFakeBackends(t *testing.T) *FakeBackends {
	t.Helper()
	f := &FakeBackends{}
	f.Soil = serve(t, http.HandlerFunc(f.serveSoil))
	f.Forecast = serve(t, http.HandlerFunc(f.serveWeather))
	f.Archive = serve(t, http.HandlerFunc(f.serveWeather))
	f.Knowledge = serve(t, http.HandlerFunc(f.serveKnowledge))
	f.GeoIP = serve(t, http.HandlerFunc(f.serveGeoIP))
	return f
}

func serve(t *testing.T, h http.Handler) *httptest.Server {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeBackends) serveSoil(w http.ResponseWriter, r *http.Request) {
	f.SoilCalls.Add(1)
	if code := f.SoilStatus.Load(); code != 0 {
		http.Error(w, "soil backend status", int(code))
		return
	}
	if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"soil_id": 4021,
		"classification": map[string]string{
			"wrb4_code": "KS", "wrb4_description": "Kastanozems", "wrb2_code": "KSh", "fao90_code": "KSh",
		},
		"properties": []map[string]any{
			{"category": "chemical", "name": "pH", "value": 7.6, "unit": "pH"},
			{"category": "chemical", "name": "Organic Carbon", "value": 0.9, "unit": "%"},
			{"category": "texture", "name": "Clay", "value": 31, "unit": "%"},
			{"category": "texture", "name": "Sand", "value": 29, "unit": "%"},
			{"category": "texture", "name": "Silt", "value": 40, "unit": "%"},
			{"category": "salinity", "name": "Electrical Conductivity", "value": -9, "unit": "dS/m"},
		},
	})
}

func (f *FakeBackends) serveWeather(w http.ResponseWriter, r *http.Request) {
	f.WeatherCalls.Add(1)
	if code := f.WeatherStatus.Load(); code != 0 {
		http.Error(w, "weather backend status", int(code))
		return
	}
	q := r.URL.Query()
	start, err1 := time.Parse(models.DateLayout, q.Get("start_date"))
	end, err2 := time.Parse(models.DateLayout, q.Get("end_date"))
	if err1 != nil || err2 != nil || !strings.Contains(q.Get("daily"), "temperature_2m_mean") {
		http.Error(w, `{"error":true,"reason":"bad query"}`, http.StatusBadRequest)
		return
	}
	daily := map[string][]any{}
	cols := []string{
		"temperature_2m_mean", "temperature_2m_max", "temperature_2m_min", "precipitation_sum",
		"et0_fao_evapotranspiration", "wind_speed_10m_max", "wind_gusts_10m_max",
		"wind_direction_10m_dominant", "weather_code",
	}
	for d, i := start, 0; !d.After(end); d, i = d.AddDate(0, 0, 1), i+1 {
		daily["time"] = append(daily["time"], d.Format(models.DateLayout))
		values := []any{14.0 + float64(i), 21.0, 7.5, 0.6, 3.1, 18.0, 32.0, 270, 3}
		for j, c := range cols {
			daily[c] = append(daily[c], values[j])
		}
	}
	writeJSON(w, map[string]any{"timezone": "Europe/Istanbul", "daily": daily})
}

func (f *FakeBackends) serveKnowledge(w http.ResponseWriter, r *http.Request) {
	f.KnowledgeCalls.Add(1)
	var req struct {
		Query string `json:"query"`
		TopK  int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "query required", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]any{"snippets": []map[string]any{
		{"text": fmt.Sprintf("Winter wheat suits %s conditions on Kastanozems.", req.Query), "source": "docs/tbbbd/wheat.pdf", "score": 0.82},
		{"text": "Sow after the first autumn rains.", "source": "docs/mgm/calendar.html", "score": 0.64},
		{"text": "Unrelated snippet.", "source": "docs/misc.txt", "score": 0.10},
	}})
}

func (f *FakeBackends) serveGeoIP(w http.ResponseWriter, r *http.Request) {
	f.GeoIPCalls.Add(1)
	if strings.Trim(r.URL.Path, "/") == "203.0.113.250" {
		writeJSON(w, map[string]any{"status": "fail", "message": "reserved range"})
		return
	}
	writeJSON(w, map[string]any{"status": "success", "lat": 39.9334, "lon": 32.8597, "city": "Ankara", "country": "Turkey"})
}
