package client

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/kjstillabower/agri-query-service/internal/models"
)

// missingValue is the soil backend's sentinel for an unmeasured property.
const missingValue = -9

// SoilClient queries the soil classification backend.
type SoilClient struct {
	backend *Backend
}

func NewSoilClient(backend *Backend) *SoilClient {
	return &SoilClient{backend: backend}
}

type soilRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type soilResponse struct {
	SoilID         int `json:"soil_id"`
	Classification struct {
		WRB4Code        string `json:"wrb4_code"`
		WRB4Description string `json:"wrb4_description"`
		WRB2Code        string `json:"wrb2_code"`
		FAO90Code       string `json:"fao90_code"`
	} `json:"classification"`
	Properties []struct {
		Category string   `json:"category"`
		Name     string   `json:"name"`
		Value    *float64 `json:"value"`
		Unit     string   `json:"unit"`
	} `json:"properties"`
}

// Analyze returns the soil profile at coord. ErrNotFound means the backend
// has no soil unit there.
func (c *SoilClient) Analyze(ctx context.Context, coord models.Coordinate) (models.SoilProfile, error) {
	var resp soilResponse
	req := soilRequest{Latitude: coord.Latitude(), Longitude: coord.Longitude()}
	if err := c.backend.postJSON(ctx, "/analyze", req, &resp); err != nil {
		return models.SoilProfile{}, err
	}
	if resp.Classification.WRB4Code == "" && len(resp.Properties) == 0 {
		return models.SoilProfile{}, eris.Wrap(ErrMalformedResponse, "soil: response has no classification or properties")
	}
	return mapSoilResponse(resp, coord), nil
}

func mapSoilResponse(resp soilResponse, coord models.Coordinate) models.SoilProfile {
	profile := models.SoilProfile{
		Coordinate: coord,
		SoilID:     resp.SoilID,
		Classification: models.SoilClassification{
			WRB4Code:        resp.Classification.WRB4Code,
			WRB4Description: resp.Classification.WRB4Description,
			WRB2Code:        resp.Classification.WRB2Code,
			FAO90Code:       resp.Classification.FAO90Code,
		},
		Properties: make([]models.SoilProperty, 0, len(resp.Properties)),
	}
	for _, p := range resp.Properties {
		value := p.Value
		if value != nil && *value == missingValue {
			value = nil
		}
		profile.Properties = append(profile.Properties, models.SoilProperty{
			Category: p.Category,
			Name:     p.Name,
			Value:    value,
			Unit:     p.Unit,
		})
	}
	return profile
}
