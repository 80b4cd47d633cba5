package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestNewCoordinate verifies range validation including the inclusive bounds.
func TestNewCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"center", 39.0, 32.0, false},
		{"north pole", 90, 0, false},
		{"south west corner", -90, -180, false},
		{"antimeridian", 0, 180, false},
		{"latitude too high", 200, 32, true},
		{"latitude too low", -90.0001, 0, true},
		{"longitude too high", 0, 180.5, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewCoordinate(tc.lat, tc.lon)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Fatalf("NewCoordinate(%v, %v) error = %v, want InvalidCoordinate", tc.lat, tc.lon, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewCoordinate(%v, %v) error = %v, want nil", tc.lat, tc.lon, err)
			}
			if c.Latitude() != tc.lat || c.Longitude() != tc.lon {
				t.Errorf("NewCoordinate() = (%v, %v), want (%v, %v)", c.Latitude(), c.Longitude(), tc.lat, tc.lon)
			}
		})
	}
}

// TestError_Is verifies that an invalid coordinate also reads as an unresolved location,
// but not the other way around.
func TestError_Is(t *testing.T) {
	err := Errorf(KindInvalidCoordinate, "latitude %d out of range", 200)
	if !errors.Is(err, ErrInvalidCoordinate) {
		t.Error("errors.Is(InvalidCoordinate, ErrInvalidCoordinate) = false, want true")
	}
	if !errors.Is(err, ErrLocationUnresolved) {
		t.Error("errors.Is(InvalidCoordinate, ErrLocationUnresolved) = false, want true")
	}
	unresolved := NewError(KindLocationUnresolved, "geolocation failed")
	if errors.Is(unresolved, ErrInvalidCoordinate) {
		t.Error("errors.Is(LocationUnresolved, ErrInvalidCoordinate) = true, want false")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("errors.Is(InvalidCoordinate, ErrTimeout) = true, want false")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(WrapError(KindInsufficientData, "no soil", errors.New("404"))); got != KindInsufficientData {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindInsufficientData)
	}
	if got := KindOf(errors.New("boom")); got != KindUpstreamUnavailable {
		t.Errorf("KindOf(plain) = %q, want %q", got, KindUpstreamUnavailable)
	}
}

// TestTierFor verifies tier thresholds with inclusive lower bounds.
func TestTierFor(t *testing.T) {
	tests := []struct {
		p    float64
		want ConfidenceTier
	}{
		{0.85, TierHigh},
		{0.8, TierHigh},
		{0.79999, TierMedium},
		{0.65, TierMedium},
		{0.6, TierMedium},
		{0.45, TierLow},
		{0.4, TierLow},
		{0.2, TierVeryLow},
		{0, TierVeryLow},
		{1, TierHigh},
	}
	for _, tc := range tests {
		if got := TierFor(tc.p); got != tc.want {
			t.Errorf("TierFor(%v) = %q, want %q", tc.p, got, tc.want)
		}
	}
}

// TestTimeWindow_Validate verifies horizon and range rules relative to a fixed now.
func TestTimeWindow_Validate(t *testing.T) {
	now := time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)
	date := func(s string) time.Time {
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		return d
	}
	tests := []struct {
		name    string
		window  TimeWindow
		wantErr bool
	}{
		{"one day", TimeWindow{Days: 1}, false},
		{"sixteen days", TimeWindow{Days: 16}, false},
		{"zero days", TimeWindow{Days: 0}, true},
		{"seventeen days", TimeWindow{Days: 17}, true},
		{"historical range", TimeWindow{Start: date("2026-01-01"), End: date("2026-01-31")}, false},
		{"single day range", TimeWindow{Start: date("2026-10-18"), End: date("2026-10-18")}, false},
		{"reversed range", TimeWindow{Start: date("2026-02-01"), End: date("2026-01-01")}, true},
		{"range ends on horizon", TimeWindow{Start: date("2026-10-18"), End: date("2026-11-02")}, false},
		{"range beyond horizon", TimeWindow{Start: date("2026-10-18"), End: date("2026-11-03")}, true},
		{"missing end", TimeWindow{Start: date("2026-10-18")}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.window.Validate(now)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRange) {
					t.Fatalf("Validate() error = %v, want InvalidRange", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestTimeWindow_Dates(t *testing.T) {
	now := time.Date(2026, 10, 18, 23, 59, 0, 0, time.UTC)
	start, end := TimeWindow{Days: 3}.Dates(now)
	if got := start.Format(DateLayout); got != "2026-10-18" {
		t.Errorf("start = %s, want 2026-10-18", got)
	}
	if got := end.Format(DateLayout); got != "2026-10-20" {
		t.Errorf("end = %s, want 2026-10-20", got)
	}
}

func TestSummarize(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	days := []DailyWeather{
		{Date: "2026-10-18", TemperatureMean: f(10), TemperatureMax: f(15), TemperatureMin: f(4), PrecipitationSum: f(2), ET0: f(1)},
		{Date: "2026-10-19", TemperatureMean: f(14), TemperatureMax: f(21), TemperatureMin: f(6), PrecipitationSum: f(0), ET0: f(3)},
		{Date: "2026-10-20"},
	}
	s := Summarize(days)
	if s.Days != 3 || s.TemperatureSamples != 2 {
		t.Fatalf("Summarize() days/samples = %d/%d, want 3/2", s.Days, s.TemperatureSamples)
	}
	if s.TemperatureMean != 12 || s.TemperatureMax != 21 || s.TemperatureMin != 4 {
		t.Errorf("Summarize() temps = %v/%v/%v, want 12/21/4", s.TemperatureMean, s.TemperatureMax, s.TemperatureMin)
	}
	if s.PrecipitationTotal != 2 || s.PrecipitationDailyMean != 1 || s.ET0DailyMean != 2 {
		t.Errorf("Summarize() precip/et0 = %v/%v/%v, want 2/1/2", s.PrecipitationTotal, s.PrecipitationDailyMean, s.ET0DailyMean)
	}
}

// TestCoordinate_UnmarshalJSON verifies that decoding enforces the range invariant.
func TestCoordinate_UnmarshalJSON(t *testing.T) {
	var c Coordinate
	if err := json.Unmarshal([]byte(`{"latitude":39.5,"longitude":32.25}`), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if c.Latitude() != 39.5 || c.Longitude() != 32.25 {
		t.Errorf("Unmarshal() = (%v, %v), want (39.5, 32.25)", c.Latitude(), c.Longitude())
	}
	if err := json.Unmarshal([]byte(`{"latitude":200,"longitude":32}`), &c); !errors.Is(err, ErrInvalidCoordinate) {
		t.Errorf("Unmarshal(out of range) error = %v, want InvalidCoordinate", err)
	}
}
