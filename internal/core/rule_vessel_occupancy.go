package core

import (
	"cellarcore/pkg/domain"
	"context"
	"fmt"
)

// NewVesselOccupancyRule blocks commits that leave a vessel's occupancy
// pointers out of step with its ACTIVE allocations.
func NewVesselOccupancyRule() domain.Rule {
	return vesselOccupancyRule{}
}

type vesselOccupancyRule struct{}

func (vesselOccupancyRule) Name() string { return "vessel_occupancy" }

func (r vesselOccupancyRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, vesselID := range touchedVessels(changes) {
		vessel, ok := view.FindVessel(vesselID)
		if !ok {
			continue
		}
		var active []domain.Allocation
		for _, a := range view.AllocationsForVessel(vesselID) {
			if a.Status == domain.AllocationActive {
				active = append(active, a)
			}
		}
		if msg := occupancyMismatch(vessel, active); msg != "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  msg,
				Entity:   domain.EntityVessel,
				EntityID: vessel.ID,
			})
		}
	}
	return res, nil
}

func occupancyMismatch(vessel domain.Vessel, active []domain.Allocation) string {
	if vessel.Status != domain.VesselOccupied {
		if len(active) > 0 {
			return fmt.Sprintf("vessel %s is %s but holds active allocation %s", vessel.Name, vessel.Status, active[0].ID)
		}
		return ""
	}
	if len(active) != 1 {
		return fmt.Sprintf("vessel %s is OCCUPIED with %d active allocations", vessel.Name, len(active))
	}
	current := active[0]
	if vessel.CurrentAllocationID == nil || *vessel.CurrentAllocationID != current.ID ||
		vessel.CurrentBatchID == nil || *vessel.CurrentBatchID != current.BatchID {
		return fmt.Sprintf("vessel %s occupancy pointers do not match allocation %s", vessel.Name, current.ID)
	}
	return ""
}
