package core

import (
	"cellarcore/pkg/domain"
	"context"
	"fmt"
)

// NewBatchPhaseRule blocks persisted batch phase changes that do not follow
// the phase graph.
func NewBatchPhaseRule() domain.Rule {
	return batchPhaseRule{}
}

type batchPhaseRule struct{}

func (batchPhaseRule) Name() string { return "batch_phase" }

func (r batchPhaseRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityBatch {
			continue
		}
		after, ok := change.After.(domain.Batch)
		if !ok {
			continue
		}
		if !after.Phase.Valid() {
			res.Violations = append(res.Violations, r.violation(after.ID, fmt.Sprintf("batch %s is set to invalid phase %s", after.Code, after.Phase)))
			continue
		}
		before, ok := change.Before.(domain.Batch)
		if !ok || before.Phase == after.Phase {
			continue
		}
		if !domain.CanTransition(before.Phase, after.Phase) {
			res.Violations = append(res.Violations, r.violation(after.ID, fmt.Sprintf("batch %s cannot move from %s to %s", after.Code, before.Phase, after.Phase)))
		}
	}
	return res, nil
}

func (r batchPhaseRule) violation(batchID, msg string) domain.Violation {
	return domain.Violation{
		Rule:     r.Name(),
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityBatch,
		EntityID: batchID,
	}
}
