package core

import (
	"cellarcore/internal/infra/persistence/memory"
	"cellarcore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDefaultRulesEngineRegistersPolicies(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{"vessel_occupancy", "vessel_capacity", "batch_phase", "batch_allocation"}
	if len(got) != len(want) {
		t.Fatalf("rules = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rules = %v, want %v", got, want)
		}
	}
}

func blockingRule(t *testing.T, err error) string {
	t.Helper()
	var violation RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, v := range violation.Result.Violations {
		if v.Severity == SeverityBlock {
			return v.Rule
		}
	}
	t.Fatalf("no blocking violation in %+v", violation.Result)
	return ""
}

func TestVesselOccupancyRuleRejectsDanglingPointers(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	batchID := "b1"

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateVessel(domain.Vessel{
			Base:           domain.Base{TenantID: tenant},
			Name:           "FV-1",
			Capacity:       1000,
			Status:         domain.VesselOccupied,
			CurrentBatchID: &batchID,
		})
		return err
	})
	if rule := blockingRule(t, err); rule != "vessel_occupancy" {
		t.Fatalf("blocked by %s", rule)
	}
	if len(store.ListVessels(tenant)) != 0 {
		t.Fatalf("blocked vessel persisted")
	}
}

func TestVesselOccupancyRuleRejectsActiveAllocationOnFreeVessel(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	var vessel domain.Vessel
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		v, err := tx.CreateVessel(domain.Vessel{Base: domain.Base{TenantID: tenant}, Name: "FV-1", Capacity: 1000, Status: domain.VesselAvailable})
		vessel = v
		return err
	}); err != nil {
		t.Fatalf("create vessel: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		batch, err := tx.CreateBatch(domain.Batch{Base: domain.Base{TenantID: tenant}, Code: "HA-1", Volume: 100, Phase: domain.PhaseFermenting})
		if err != nil {
			return err
		}
		_, err = tx.CreateAllocation(domain.Allocation{
			Base:         domain.Base{TenantID: tenant},
			VesselID:     vessel.ID,
			BatchID:      batch.ID,
			Phase:        domain.PhaseFermenting,
			PlannedStart: at(10),
			PlannedEnd:   at(12),
			Status:       domain.AllocationActive,
		})
		return err
	})
	if rule := blockingRule(t, err); rule != "vessel_occupancy" {
		t.Fatalf("blocked by %s", rule)
	}
}

func TestBatchPhaseRuleRejectsSkippedPhase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	var batch domain.Batch
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		b, err := tx.CreateBatch(domain.Batch{Base: domain.Base{TenantID: tenant}, Code: "HA-1", Volume: 100, Phase: domain.PhasePlanned})
		batch = b
		return err
	}); err != nil {
		t.Fatalf("create batch: %v", err)
	}

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateBatch(batch.ID, func(b *domain.Batch) error {
			b.Phase = domain.PhasePackaged
			return nil
		})
		return err
	})
	if rule := blockingRule(t, err); rule != "batch_phase" {
		t.Fatalf("blocked by %s", rule)
	}

	_, err = store.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdateBatch(batch.ID, func(b *domain.Batch) error {
			b.Phase = "AGING"
			return nil
		})
		return err
	})
	if rule := blockingRule(t, err); rule != "batch_phase" {
		t.Fatalf("blocked by %s", rule)
	}
	if got, _ := store.GetBatch(batch.ID); got.Phase != domain.PhasePlanned {
		t.Fatalf("batch phase = %s", got.Phase)
	}
}

func TestBatchAllocationRuleRejectsSecondActiveVessel(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewDefaultRulesEngine())
	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		batch, err := tx.CreateBatch(domain.Batch{Base: domain.Base{TenantID: tenant}, Code: "HA-1", Volume: 100, Phase: domain.PhaseFermenting})
		if err != nil {
			return err
		}
		for i, name := range []string{"FV-1", "FV-2"} {
			allocID := fmt.Sprintf("a%d", i+1)
			v, err := tx.CreateVessel(domain.Vessel{
				Base:                domain.Base{TenantID: tenant},
				Name:                name,
				Capacity:            1000,
				Status:              domain.VesselOccupied,
				CurrentBatchID:      &batch.ID,
				CurrentAllocationID: &allocID,
			})
			if err != nil {
				return err
			}
			if _, err := tx.CreateAllocation(domain.Allocation{
				Base:         domain.Base{ID: allocID, TenantID: tenant},
				VesselID:     v.ID,
				BatchID:      batch.ID,
				Phase:        domain.PhaseFermenting,
				PlannedStart: at(10),
				PlannedEnd:   at(12),
				Status:       domain.AllocationActive,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if rule := blockingRule(t, err); rule != "batch_allocation" {
		t.Fatalf("blocked by %s", rule)
	}
	if len(store.ListBatches(tenant)) != 0 {
		t.Fatalf("blocked batch persisted")
	}
}

func TestTouchedVesselsDeduplicates(t *testing.T) {
	changes := []Change{
		{Entity: domain.EntityVessel, After: domain.Vessel{Base: domain.Base{ID: "v1"}}},
		{Entity: domain.EntityAllocation, After: domain.Allocation{VesselID: "v1"}},
		{Entity: domain.EntityAllocation, After: domain.Allocation{VesselID: "v2"}},
		{Entity: domain.EntityBatch, After: domain.Batch{Base: domain.Base{ID: "b1"}}},
	}
	got := touchedVessels(changes)
	if len(got) != 2 || got[0] != "v1" || got[1] != "v2" {
		t.Fatalf("touched = %v", got)
	}
}
