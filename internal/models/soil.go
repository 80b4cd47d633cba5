package models

// SoilClassification holds the WRB and FAO classification codes for a soil unit.
type SoilClassification struct {
	WRB4Code        string `json:"wrb4_code"`
	WRB4Description string `json:"wrb4_description,omitempty"`
	WRB2Code        string `json:"wrb2_code,omitempty"`
	FAO90Code       string `json:"fao90_code,omitempty"`
}

// SoilProperty is one measured property. Value is nil when the backend has no measurement.
type SoilProperty struct {
	Category string   `json:"category"`
	Name     string   `json:"name"`
	Value    *float64 `json:"value,omitempty"`
	Unit     string   `json:"unit,omitempty"`
}

// SoilProfile is the Success payload of the soil capability.
type SoilProfile struct {
	Coordinate     Coordinate         `json:"coordinate"`
	SoilID         int                `json:"soil_id,omitempty"`
	Classification SoilClassification `json:"classification"`
	Properties     []SoilProperty     `json:"properties"`
}

// Property returns the measured value of the named property.
func (p SoilProfile) Property(name string) (float64, bool) {
	for _, prop := range p.Properties {
		if prop.Name == name && prop.Value != nil {
			return *prop.Value, true
		}
	}
	return 0, false
}
