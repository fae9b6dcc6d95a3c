package core

import (
	"cellarcore/pkg/domain"
	"context"
	"fmt"
)

// NewVesselCapacityRule warns when a batch is placed in a vessel smaller than
// its volume.
func NewVesselCapacityRule() domain.Rule {
	return vesselCapacityRule{}
}

type vesselCapacityRule struct{}

func (vesselCapacityRule) Name() string { return "vessel_capacity" }

func (r vesselCapacityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAllocation {
			continue
		}
		alloc, ok := change.After.(domain.Allocation)
		if !ok || alloc.Status != domain.AllocationActive {
			continue
		}
		batch, okBatch := view.FindBatch(alloc.BatchID)
		vessel, okVessel := view.FindVessel(alloc.VesselID)
		if !okBatch || !okVessel || batch.Volume <= vessel.Capacity {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("batch %s volume %g exceeds vessel %s capacity %g", batch.Code, batch.Volume, vessel.Name, vessel.Capacity),
			Entity:   domain.EntityVessel,
			EntityID: vessel.ID,
		})
	}
	return res, nil
}
