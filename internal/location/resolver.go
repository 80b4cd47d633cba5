// Package location resolves the single coordinate a dispatch works on.
package location

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/kjstillabower/agri-query-service/internal/models"
	"github.com/kjstillabower/agri-query-service/internal/observability"
)

// DefaultPrecision is the number of decimals kept from IP geolocation (about 11 km).
const DefaultPrecision = 1

// Geolocator reports an approximate position for an IP address. An empty ip
// means the caller's own public address.
type Geolocator interface {
	Locate(ctx context.Context, ip string) (models.GeoLocation, error)
}

// Resolver turns an optional explicit coordinate, or the client address, into
// a ResolvedLocation. It never substitutes a default coordinate.
type Resolver struct {
	geo       Geolocator
	precision int
	logger    *zap.Logger
}

// NewResolver creates a Resolver. geo may be nil, in which case only explicit
// coordinates resolve.
func NewResolver(geo Geolocator, precision int, logger *zap.Logger) *Resolver {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{geo: geo, precision: precision, logger: logger}
}

// Resolve returns explicit unchanged when present. Otherwise it geolocates
// clientIP; private and loopback addresses are not sent upstream. Failures are
// LocationUnresolved.
func (r *Resolver) Resolve(ctx context.Context, explicit *models.Coordinate, clientIP string) (models.ResolvedLocation, error) {
	if explicit != nil {
		observability.LocationResolutionsTotal.WithLabelValues(string(models.LocationExplicit), "success").Inc()
		return models.ResolvedLocation{Coordinate: *explicit, Source: models.LocationExplicit}, nil
	}

	logger := observability.LoggerFromContext(ctx, r.logger)
	if r.geo == nil {
		observability.LocationResolutionsTotal.WithLabelValues(string(models.LocationGeoIP), "unavailable").Inc()
		return models.ResolvedLocation{}, models.NewError(models.KindLocationUnresolved, "no coordinate supplied and geolocation is not configured")
	}

	ip := publicIP(clientIP)
	geo, err := r.geo.Locate(ctx, ip)
	if err != nil {
		observability.LocationResolutionsTotal.WithLabelValues(string(models.LocationGeoIP), "failure").Inc()
		logger.Warn("ip geolocation failed", zap.String("client_ip", clientIP), zap.Error(err))
		return models.ResolvedLocation{}, models.WrapError(models.KindLocationUnresolved, "ip geolocation failed", err)
	}

	coord, err := models.NewCoordinate(models.RoundTo(geo.Latitude, r.precision), models.RoundTo(geo.Longitude, r.precision))
	if err != nil {
		observability.LocationResolutionsTotal.WithLabelValues(string(models.LocationGeoIP), "invalid").Inc()
		return models.ResolvedLocation{}, models.WrapError(models.KindLocationUnresolved, "ip geolocation returned an invalid coordinate", err)
	}
	observability.LocationResolutionsTotal.WithLabelValues(string(models.LocationGeoIP), "success").Inc()
	logger.Debug("location resolved from ip",
		zap.Float64("latitude", coord.Latitude()),
		zap.Float64("longitude", coord.Longitude()),
		zap.String("city", geo.City))
	return models.ResolvedLocation{
		Coordinate: coord,
		Source:     models.LocationGeoIP,
		City:       geo.City,
		Country:    geo.Country,
	}, nil
}

// publicIP returns addr's host when it is a routable public address, else "".
func publicIP(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return ""
	}
	return ip.String()
}
