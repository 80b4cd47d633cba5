package location

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

type mockGeolocator struct {
	loc   models.GeoLocation
	err   error
	calls int
	ip    string
}

func (m *mockGeolocator) Locate(ctx context.Context, ip string) (models.GeoLocation, error) {
	m.calls++
	m.ip = ip
	return m.loc, m.err
}

// TestResolve_ExplicitUnchanged verifies that valid explicit coordinates are
// returned unchanged with no geolocation call.
func TestResolve_ExplicitUnchanged(t *testing.T) {
	geo := &mockGeolocator{}
	r := NewResolver(geo, 1, nil)
	for _, c := range [][2]float64{{39.123456, 32.654321}, {-90, -180}, {90, 180}, {0, 0}} {
		coord := models.MustCoordinate(c[0], c[1])
		got, err := r.Resolve(context.Background(), &coord, "203.0.113.9")
		require.NoError(t, err)
		assert.Equal(t, c[0], got.Coordinate.Latitude())
		assert.Equal(t, c[1], got.Coordinate.Longitude())
		assert.Equal(t, models.LocationExplicit, got.Source)
	}
	assert.Equal(t, 0, geo.calls)
}

func TestResolve_GeoIPRounded(t *testing.T) {
	geo := &mockGeolocator{loc: models.GeoLocation{Latitude: 39.9334, Longitude: 32.8597, City: "Ankara", Country: "Turkey"}}
	r := NewResolver(geo, 1, nil)

	got, err := r.Resolve(context.Background(), nil, "203.0.113.9:51234")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", geo.ip)
	assert.Equal(t, 39.9, got.Coordinate.Latitude())
	assert.Equal(t, 32.9, got.Coordinate.Longitude())
	assert.Equal(t, models.LocationGeoIP, got.Source)
	assert.Equal(t, "Ankara", got.City)
}

func TestResolve_PrivateAddressNotForwarded(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:8080", "10.1.2.3", "192.168.0.5:1", "[::1]:80", "not-an-ip"} {
		geo := &mockGeolocator{loc: models.GeoLocation{Latitude: 1, Longitude: 2}}
		_, err := NewResolver(geo, 1, nil).Resolve(context.Background(), nil, addr)
		require.NoError(t, err)
		assert.Equal(t, "", geo.ip, "address %q must not be forwarded", addr)
	}
}

// TestResolve_FailuresAreLocationUnresolved verifies no default coordinate is ever substituted.
func TestResolve_FailuresAreLocationUnresolved(t *testing.T) {
	tests := []struct {
		name string
		geo  Geolocator
	}{
		{"no geolocator", nil},
		{"lookup error", &mockGeolocator{err: errors.New("geoip: lookup failed")}},
		{"out of range", &mockGeolocator{loc: models.GeoLocation{Latitude: 123, Longitude: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewResolver(tt.geo, 1, nil).Resolve(context.Background(), nil, "203.0.113.9")
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrLocationUnresolved)
			assert.Equal(t, models.ResolvedLocation{}, got)
		})
	}
}
