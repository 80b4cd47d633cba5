package dispatch

import (
	"github.com/kjstillabower/agri-query-service/internal/adapters"
	"github.com/kjstillabower/agri-query-service/internal/models"
)

// dependenciesOf lists the capabilities id must wait for.
func dependenciesOf(id models.CapabilityID, req models.CapabilityRequest) []models.CapabilityID {
	if id == models.CapabilityCropRecommendation && adapters.NeedsDependencies(req) {
		return []models.CapabilityID{models.CapabilitySoil, models.CapabilityWeather}
	}
	return nil
}

func needsCoordinate(id models.CapabilityID, req models.CapabilityRequest) bool {
	switch id {
	case models.CapabilitySoil, models.CapabilityWeather:
		return true
	case models.CapabilityCropRecommendation:
		return adapters.NeedsDependencies(req)
	default:
		return false
	}
}

// planFor returns requested plus any dependencies, each once, in a stable order.
func planFor(requested []models.CapabilityID, base models.CapabilityRequest) []models.CapabilityID {
	seen := make(map[models.CapabilityID]bool, len(requested)+2)
	var plan []models.CapabilityID
	var add func(id models.CapabilityID)
	add = func(id models.CapabilityID) {
		if seen[id] {
			return
		}
		seen[id] = true
		for _, dep := range dependenciesOf(id, base) {
			add(dep)
		}
		plan = append(plan, id)
	}
	for _, id := range requested {
		add(id)
	}
	return plan
}

func needsLocation(plan []models.CapabilityID, base models.CapabilityRequest) bool {
	for _, id := range plan {
		if needsCoordinate(id, base) {
			return true
		}
	}
	return false
}

func dedupe(ids []models.CapabilityID) []models.CapabilityID {
	seen := make(map[models.CapabilityID]bool, len(ids))
	out := make([]models.CapabilityID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
