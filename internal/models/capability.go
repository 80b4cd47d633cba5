package models

import (
	"fmt"
	"time"
)

// CapabilityID names one independently invocable backend function.
type CapabilityID string

const (
	CapabilitySoil               CapabilityID = "soil"
	CapabilityWeather            CapabilityID = "weather"
	CapabilityCropRecommendation CapabilityID = "crop_recommendation"
	CapabilityKnowledge          CapabilityID = "knowledge"
)

// AllCapabilities lists every capability in a stable order.
var AllCapabilities = []CapabilityID{
	CapabilitySoil,
	CapabilityWeather,
	CapabilityCropRecommendation,
	CapabilityKnowledge,
}

// ParseCapabilityID returns the CapabilityID for s, or false if s is unknown.
func ParseCapabilityID(s string) (CapabilityID, bool) {
	for _, id := range AllCapabilities {
		if string(id) == s {
			return id, true
		}
	}
	return "", false
}

// ForecastHorizonDays is the furthest day ahead the weather backend can forecast.
const ForecastHorizonDays = 16

// DateLayout is the ISO date format used on the wire and in cache keys.
const DateLayout = "2006-01-02"

// TimeWindow is either a relative forecast horizon (Days) or an absolute date range.
type TimeWindow struct {
	Days  int       `json:"days,omitempty"`
	Start time.Time `json:"-"`
	End   time.Time `json:"-"`
}

// IsRange reports whether the window is an absolute date range.
func (w TimeWindow) IsRange() bool {
	return !w.Start.IsZero() || !w.End.IsZero()
}

// Dates resolves the window into inclusive calendar dates relative to now.
func (w TimeWindow) Dates(now time.Time) (start, end time.Time) {
	if w.IsRange() {
		return truncateDay(w.Start), truncateDay(w.End)
	}
	today := truncateDay(now)
	days := w.Days
	if days < 1 {
		days = 1
	}
	return today, today.AddDate(0, 0, days-1)
}

// Validate checks the horizon (1..ForecastHorizonDays) or that the range is
// ordered and does not end beyond the forecast horizon.
func (w TimeWindow) Validate(now time.Time) error {
	if !w.IsRange() {
		if w.Days < 1 || w.Days > ForecastHorizonDays {
			return Errorf(KindInvalidRange, "days must be between 1 and %d, got %d", ForecastHorizonDays, w.Days)
		}
		return nil
	}
	if w.Start.IsZero() || w.End.IsZero() {
		return NewError(KindInvalidRange, "start and end are both required for a date range")
	}
	start, end := w.Dates(now)
	if end.Before(start) {
		return Errorf(KindInvalidRange, "start %s is after end %s", start.Format(DateLayout), end.Format(DateLayout))
	}
	limit := truncateDay(now).AddDate(0, 0, ForecastHorizonDays-1)
	if end.After(limit) {
		return Errorf(KindInvalidRange, "end %s is beyond the %d-day forecast horizon", end.Format(DateLayout), ForecastHorizonDays)
	}
	return nil
}

func (w TimeWindow) String() string {
	if w.IsRange() {
		return fmt.Sprintf("%s..%s", w.Start.Format(DateLayout), w.End.Format(DateLayout))
	}
	return fmt.Sprintf("%dd", w.Days)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CapabilityRequest is one unit of work for one adapter.
type CapabilityRequest struct {
	Capability CapabilityID
	// Coordinate is nil when no location could be resolved.
	Coordinate *Coordinate
	TimeWindow *TimeWindow
	// Now is the logical dispatch time shared by every capability.
	Now       time.Time
	QueryText string
	// Features are caller-supplied model inputs for crop recommendation.
	Features map[string]float64
	// Dependencies holds results of capabilities this one depends on.
	Dependencies map[CapabilityID]Result
}
