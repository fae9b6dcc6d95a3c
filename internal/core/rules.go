package core

import "cellarcore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewVesselOccupancyRule())
	engine.Register(NewVesselCapacityRule())
	engine.Register(NewBatchPhaseRule())
	engine.Register(NewBatchAllocationRule())
	return engine
}

// touchedVessels collects the vessels affected by vessel or allocation changes.
func touchedVessels(changes []Change) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityVessel:
			if v, ok := change.After.(domain.Vessel); ok {
				add(v.ID)
			}
		case domain.EntityAllocation:
			if a, ok := change.After.(domain.Allocation); ok {
				add(a.VesselID)
			}
		}
	}
	return out
}
