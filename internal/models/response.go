package models

import "time"

// ResultSummary counts results by status.
type ResultSummary struct {
	Succeeded int `json:"succeeded"`
	Degraded  int `json:"degraded"`
	Failed    int `json:"failed"`
}

// AggregatedResponse is the reply to one dispatch. Results holds exactly one
// entry per requested capability.
type AggregatedResponse struct {
	RequestID      string                  `json:"request_id"`
	GeneratedAt    time.Time               `json:"generated_at"`
	Location       *ResolvedLocation       `json:"location"`
	Results        map[CapabilityID]Result `json:"results"`
	Summary        ResultSummary           `json:"summary"`
	NarrativeReady bool                    `json:"narrative_ready"`
}
