package client

import (
	"context"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// GeoIPClient looks up approximate positions for IP addresses using the
// ip-api.com JSON contract.
type GeoIPClient struct {
	backend *Backend
}

func NewGeoIPClient(backend *Backend) *GeoIPClient {
	return &GeoIPClient{backend: backend}
}

type geoIPResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
	Country string  `json:"country"`
}

// Locate returns the position of ip. An empty ip locates the caller of the
// backend, i.e. this service's egress address.
func (c *GeoIPClient) Locate(ctx context.Context, ip string) (models.GeoLocation, error) {
	path := "/"
	if ip != "" {
		path += url.PathEscape(ip)
	}
	var resp geoIPResponse
	if err := c.backend.getJSON(ctx, path, url.Values{"fields": {"status,message,lat,lon,city,country"}}, &resp); err != nil {
		return models.GeoLocation{}, err
	}
	if resp.Status != "success" {
		return models.GeoLocation{}, eris.Wrapf(ErrNotFound, "geoip: lookup failed: %s", resp.Message)
	}
	return models.GeoLocation{
		Latitude:  resp.Lat,
		Longitude: resp.Lon,
		City:      resp.City,
		Country:   resp.Country,
	}, nil
}
