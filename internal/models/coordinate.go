package models

import (
	"encoding/json"
	"math"
)

// Coordinate is a validated latitude/longitude pair. The zero value is (0, 0),
// which is itself valid; any other value must come from NewCoordinate.
type Coordinate struct {
	lat float64
	lon float64
}

// NewCoordinate returns a Coordinate or an InvalidCoordinate error when either
// component is non-finite or out of range.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return Coordinate{}, Errorf(KindInvalidCoordinate, "latitude %v out of range [-90, 90]", lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return Coordinate{}, Errorf(KindInvalidCoordinate, "longitude %v out of range [-180, 180]", lon)
	}
	return Coordinate{lat: lat, lon: lon}, nil
}

// MustCoordinate is NewCoordinate for literals known to be valid.
func MustCoordinate(lat, lon float64) Coordinate {
	c, err := NewCoordinate(lat, lon)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Coordinate) Latitude() float64  { return c.lat }
func (c Coordinate) Longitude() float64 { return c.lon }

// Rounded returns the coordinate rounded to the given number of decimals.
func (c Coordinate) Rounded(decimals int) Coordinate {
	return Coordinate{lat: RoundTo(c.lat, decimals), lon: RoundTo(c.lon, decimals)}
}

type coordinateJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal(coordinateJSON{Latitude: c.lat, Longitude: c.lon})
}

// UnmarshalJSON enforces the same range checks as NewCoordinate.
func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var raw coordinateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewCoordinate(raw.Latitude, raw.Longitude)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// RoundTo rounds v half away from zero to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// LocationSource records how the dispatch coordinate was obtained.
type LocationSource string

const (
	LocationExplicit LocationSource = "explicit"
	LocationGeoIP    LocationSource = "geoip"
)

// ResolvedLocation is the single coordinate shared by every capability in a dispatch.
type ResolvedLocation struct {
	Coordinate Coordinate
	Source     LocationSource
	City       string
	Country    string
}

type resolvedLocationJSON struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Source    LocationSource `json:"source"`
	City      string         `json:"city,omitempty"`
	Country   string         `json:"country,omitempty"`
}

// MarshalJSON flattens the coordinate next to the source.
func (l ResolvedLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(resolvedLocationJSON{
		Latitude:  l.Coordinate.lat,
		Longitude: l.Coordinate.lon,
		Source:    l.Source,
		City:      l.City,
		Country:   l.Country,
	})
}

// GeoLocation is a best-effort position reported by an IP geolocation service.
type GeoLocation struct {
	Latitude  float64
	Longitude float64
	City      string
	Country   string
}
