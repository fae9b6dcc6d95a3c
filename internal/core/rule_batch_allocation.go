package core

import (
	"cellarcore/pkg/domain"
	"context"
	"fmt"
)

// NewBatchAllocationRule blocks commits that leave a batch holding more than
// one ACTIVE allocation. Split volume moves to sibling batches, so every
// batch occupies at most one vessel.
func NewBatchAllocationRule() domain.Rule {
	return batchAllocationRule{}
}

type batchAllocationRule struct{}

func (batchAllocationRule) Name() string { return "batch_allocation" }

func (r batchAllocationRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityAllocation {
			continue
		}
		alloc, ok := change.After.(domain.Allocation)
		if !ok || alloc.Status != domain.AllocationActive {
			continue
		}
		if _, dup := seen[alloc.BatchID]; dup {
			continue
		}
		seen[alloc.BatchID] = struct{}{}
		var active []string
		for _, a := range view.AllocationsForBatch(alloc.BatchID) {
			if a.Status == domain.AllocationActive {
				active = append(active, a.VesselID)
			}
		}
		if len(active) > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s holds %d active allocations", alloc.BatchID, len(active)),
				Entity:   domain.EntityBatch,
				EntityID: alloc.BatchID,
			})
		}
	}
	return res, nil
}
