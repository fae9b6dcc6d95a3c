package core

import (
	"cellarcore/pkg/domain"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type blendFixture struct {
	*fixture
	paleAle  domain.Recipe
	amberAle domain.Recipe
	lager    domain.Recipe
}

func newBlendFixture(t *testing.T, opts ...Option) *blendFixture {
	f := newFixture(t, opts...)
	return &blendFixture{
		fixture:  f,
		paleAle:  f.recipe("House Ale", "Pale Ale", "WLP001"),
		amberAle: f.recipe("House Ale", "Amber Ale", "WLP001"),
		lager:    f.recipe("House Ale", "Helles", "WLP830"),
	}
}

// fermenting plans a batch and starts it in a fresh vessel.
func (f *blendFixture) fermenting(code string, recipe domain.Recipe) (domain.Batch, domain.Vessel) {
	f.t.Helper()
	v := f.vessel("FV-"+code, 1200)
	b := f.batch(code, recipe, 1000)
	return f.ferment(b, v.ID).Batch, v
}

func blendInto(sources ...string) domain.Blend {
	return domain.Blend{Sources: sources}
}

func TestBlendFormsLotAndWarnsOnSoftMismatch(t *testing.T) {
	f := newBlendFixture(t)
	a, fvA := f.fermenting("A1", f.paleAle)
	b, fvB := f.fermenting("B1", f.amberAle)
	bt := f.vessel("BT-1", 2000)

	sc := blendInto(b.ID)
	sc.Allocations = []domain.VesselVolume{{VesselID: bt.ID, Volume: 1000}}
	res, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, sc, domain.Measurements{})
	if err != nil {
		t.Fatalf("blend: %v", err)
	}
	if res.Lot == nil || res.Lot.Code != "BLEND-2026-0001" {
		t.Fatalf("lot = %+v", res.Lot)
	}
	if len(res.Lot.BatchIDs) != 2 || !res.Lot.Contains(a.ID) || !res.Lot.Contains(b.ID) {
		t.Fatalf("lot members = %v", res.Lot.BatchIDs)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "style") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	for _, id := range []string{a.ID, b.ID} {
		got := f.getBatch(id)
		if got.Phase != domain.PhaseConditioning || got.LotID == nil || *got.LotID != res.Lot.ID {
			t.Fatalf("member %s = %+v", got.Code, got)
		}
	}
	if len(res.Sources) != 1 || res.Sources[0].ID != b.ID {
		t.Fatalf("sources = %+v", res.Sources)
	}
	f.expectStatus(fvA.ID, domain.VesselNeedsCleaning)
	f.expectStatus(fvB.ID, domain.VesselNeedsCleaning)
	f.expectOccupiedBy(bt.ID, a.ID)

	events := f.timeline.Events()
	last := events[len(events)-1]
	if last.Type != domain.TimelineBlend || last.Payload["lot_code"] != "BLEND-2026-0001" {
		t.Fatalf("blend event = %+v", last)
	}
}

func TestBlendRejectsDifferentStrainWithoutMutation(t *testing.T) {
	f := newBlendFixture(t)
	a, fvA := f.fermenting("A1", f.paleAle)
	c, fvC := f.fermenting("C1", f.lager)
	emitted := len(f.timeline.Events())

	_, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(c.ID), domain.Measurements{})
	incompatible := asError[domain.IncompatibleBlendError](t, err)
	if incompatible.Attribute != "strain" || len(incompatible.Values) != 2 {
		t.Fatalf("error = %+v", incompatible)
	}
	if lots := f.svc.Store().ListLots(tenant); len(lots) != 0 {
		t.Fatalf("lots created: %+v", lots)
	}
	for _, id := range []string{a.ID, c.ID} {
		if got := f.getBatch(id); got.Phase != domain.PhaseFermenting || got.LotID != nil {
			t.Fatalf("batch %s mutated: %+v", got.Code, got)
		}
	}
	f.expectOccupiedBy(fvA.ID, a.ID)
	f.expectOccupiedBy(fvC.ID, c.ID)
	if len(f.timeline.Events()) != emitted {
		t.Fatalf("rejected blend emitted an event")
	}
}

func TestBlendLotCodesAreSequentialAndLotsCanGrow(t *testing.T) {
	f := newBlendFixture(t)
	a, fvA := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	c, _ := f.fermenting("C1", f.paleAle)
	d, _ := f.fermenting("D1", f.paleAle)
	e, fvE := f.fermenting("E1", f.paleAle)

	first, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(b.ID), domain.Measurements{})
	if err != nil {
		t.Fatalf("first blend: %v", err)
	}
	second, err := f.svc.TransferToConditioning(f.ctx, tenant, c.ID, blendInto(d.ID), domain.Measurements{})
	if err != nil {
		t.Fatalf("second blend: %v", err)
	}
	if first.Lot.Code != "BLEND-2026-0001" || second.Lot.Code != "BLEND-2026-0002" {
		t.Fatalf("lot codes = %s, %s", first.Lot.Code, second.Lot.Code)
	}
	// With no allocations the anchor stays in its fermenter.
	f.expectOccupiedBy(fvA.ID, a.ID)

	target := first.Lot.ID
	joined, err := f.svc.TransferToConditioning(f.ctx, tenant, e.ID, domain.Blend{TargetLotID: &target}, domain.Measurements{})
	if err != nil {
		t.Fatalf("join existing lot: %v", err)
	}
	if joined.Lot.ID != target || joined.Lot.Code != "BLEND-2026-0001" || len(joined.Lot.BatchIDs) != 3 {
		t.Fatalf("joined lot = %+v", joined.Lot)
	}
	f.expectOccupiedBy(fvE.ID, e.ID)
	if lots := f.svc.Store().ListLots(tenant); len(lots) != 2 {
		t.Fatalf("expected two lots, got %d", len(lots))
	}

	other := second.Lot.ID
	_, err = f.svc.TransferToPackaging(f.ctx, tenant, a.ID, domain.Blend{TargetLotID: &other}, domain.Measurements{})
	asError[domain.InvalidRequestError](t, err)

	missing := "lot-missing"
	_, err = f.svc.TransferToPackaging(f.ctx, tenant, a.ID, domain.Blend{TargetLotID: &missing}, domain.Measurements{})
	asError[domain.NotFoundError](t, err)
}

func TestBlendWithSplitAddsSiblingsToLot(t *testing.T) {
	f := newBlendFixture(t)
	a, _ := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	bt1 := f.vessel("BT-1", 1200)
	bt2 := f.vessel("BT-2", 1200)

	sc := blendInto(b.ID)
	sc.Allocations = []domain.VesselVolume{{VesselID: bt1.ID, Volume: 500}, {VesselID: bt2.ID, Volume: 500}}
	res, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, sc, domain.Measurements{})
	if err != nil {
		t.Fatalf("blend with split: %v", err)
	}
	if len(res.Siblings) != 1 || res.Siblings[0].Code != "A1B" {
		t.Fatalf("siblings = %+v", res.Siblings)
	}
	sib := res.Siblings[0]
	if sib.LotID == nil || *sib.LotID != res.Lot.ID {
		t.Fatalf("sibling not in lot: %+v", sib)
	}
	lot, ok := f.svc.Store().GetLot(res.Lot.ID)
	if !ok || len(lot.BatchIDs) != 3 || !lot.Contains(sib.ID) {
		t.Fatalf("lot = %+v", lot)
	}
	f.expectOccupiedBy(bt1.ID, a.ID)
	f.expectOccupiedBy(bt2.ID, sib.ID)
}

func TestBlendIntoPackagingReleasesVessels(t *testing.T) {
	f := newBlendFixture(t)
	a, fvA := f.fermenting("A1", f.paleAle)
	b, fvB := f.fermenting("B1", f.paleAle)

	res, err := f.svc.TransferToPackaging(f.ctx, tenant, a.ID, blendInto(b.ID), domain.Measurements{})
	if err != nil {
		t.Fatalf("blend into packaging: %v", err)
	}
	if res.Batch.Phase != domain.PhasePackaged || res.Sources[0].Phase != domain.PhasePackaged {
		t.Fatalf("members not packaged")
	}
	f.expectStatus(fvA.ID, domain.VesselNeedsCleaning)
	f.expectStatus(fvB.ID, domain.VesselNeedsCleaning)
}

func TestBlendRequestValidation(t *testing.T) {
	f := newBlendFixture(t)
	a, _ := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	planned := f.batch("P1", f.paleAle, 1000)

	_, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(a.ID), domain.Measurements{})
	asError[domain.InvalidRequestError](t, err)

	_, err = f.svc.Transition(f.ctx, domain.TransitionRequest{TenantID: tenant, BatchID: a.ID, TargetPhase: domain.PhaseCancelled, Scenario: blendInto(b.ID)})
	asError[domain.InvalidRequestError](t, err)

	_, err = f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(planned.ID), domain.Measurements{})
	asError[domain.InvalidPhaseTransitionError](t, err)

	_, err = f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto("missing"), domain.Measurements{})
	asError[domain.NotFoundError](t, err)

	// Duplicated sources collapse into one member.
	res, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(b.ID, b.ID), domain.Measurements{})
	if err != nil {
		t.Fatalf("blend with duplicate source: %v", err)
	}
	if len(res.Lot.BatchIDs) != 2 || len(res.Sources) != 1 {
		t.Fatalf("lot = %+v sources = %d", res.Lot, len(res.Sources))
	}
}

type scriptedSequencer struct {
	mu    sync.Mutex
	codes []string
	calls int
}

func (s *scriptedSequencer) NextLotCode(context.Context, domain.TransactionView, string, time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.codes[min(s.calls, len(s.codes)-1)]
	s.calls++
	return code, nil
}

func (s *scriptedSequencer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestBlendRecomputesAfterLotCodeCollision(t *testing.T) {
	seq := &scriptedSequencer{codes: []string{"BLEND-2026-0001", "BLEND-2026-0001", "BLEND-2026-0002"}}
	f := newBlendFixture(t, WithSequencer(seq))
	a, _ := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	c, _ := f.fermenting("C1", f.paleAle)
	d, _ := f.fermenting("D1", f.paleAle)

	if _, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(b.ID), domain.Measurements{}); err != nil {
		t.Fatalf("first blend: %v", err)
	}
	res, err := f.svc.TransferToConditioning(f.ctx, tenant, c.ID, blendInto(d.ID), domain.Measurements{})
	if err != nil {
		t.Fatalf("second blend: %v", err)
	}
	if res.Lot.Code != "BLEND-2026-0002" {
		t.Fatalf("lot code = %s", res.Lot.Code)
	}
	if seq.Calls() != 3 {
		t.Fatalf("sequencer calls = %d, want 3", seq.Calls())
	}
}

func TestBlendGivesUpAfterAttemptBudget(t *testing.T) {
	seq := &scriptedSequencer{codes: []string{"BLEND-2026-0001"}}
	f := newBlendFixture(t, WithSequencer(seq), WithMaxCodeAttempts(3))
	a, _ := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	c, _ := f.fermenting("C1", f.paleAle)
	d, _ := f.fermenting("D1", f.paleAle)

	if _, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(b.ID), domain.Measurements{}); err != nil {
		t.Fatalf("first blend: %v", err)
	}
	_, err := f.svc.TransferToConditioning(f.ctx, tenant, c.ID, blendInto(d.ID), domain.Measurements{})
	exhausted := asError[domain.SequenceExhaustedError](t, err)
	if exhausted.Attempts != 3 || exhausted.Prefix != "BLEND-2026-" {
		t.Fatalf("error = %+v", exhausted)
	}
	if seq.Calls() != 4 {
		t.Fatalf("sequencer calls = %d, want 4", seq.Calls())
	}
	for _, id := range []string{c.ID, d.ID} {
		if got := f.getBatch(id); got.Phase != domain.PhaseFermenting || got.LotID != nil {
			t.Fatalf("batch %s mutated: %+v", got.Code, got)
		}
	}
}

func TestBlendVesselConflictLeavesLotCodeUnissued(t *testing.T) {
	seq := &scriptedSequencer{codes: []string{"BLEND-2026-0001", "BLEND-2026-0002"}}
	f := newBlendFixture(t, WithSequencer(seq))
	a, _ := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	bt := f.vessel("BT-1", 2500)
	if _, err := f.svc.SetVesselStatus(f.ctx, tenant, bt.ID, domain.VesselOutOfService); err != nil {
		t.Fatalf("set status: %v", err)
	}

	sc := blendInto(b.ID)
	sc.Allocations = []domain.VesselVolume{{VesselID: bt.ID, Volume: 2000}}
	_, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, sc, domain.Measurements{})
	asError[domain.ResourceConflictError](t, err)
	if seq.Calls() != 0 {
		t.Fatalf("sequencer calls = %d after vessel conflict", seq.Calls())
	}
	if lots := f.svc.Store().ListLots(tenant); len(lots) != 0 {
		t.Fatalf("lots created: %+v", lots)
	}

	res, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(b.ID), domain.Measurements{})
	if err != nil {
		t.Fatalf("blend in place: %v", err)
	}
	if res.Lot.Code != "BLEND-2026-0001" || seq.Calls() != 1 {
		t.Fatalf("lot code = %s after %d calls", res.Lot.Code, seq.Calls())
	}
}

func TestBlendAnchorCarriesMergedVolume(t *testing.T) {
	f := newBlendFixture(t)
	a, _ := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	bt := f.vessel("BT-1", 1500)

	sc := blendInto(b.ID)
	sc.Allocations = []domain.VesselVolume{{VesselID: bt.ID, Volume: 2000}}
	res, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, sc, domain.Measurements{})
	if err != nil {
		t.Fatalf("blend: %v", err)
	}
	if res.Batch.Volume != 2000 || f.getBatch(a.ID).Volume != 2000 {
		t.Fatalf("anchor volume = %g, want 2000", res.Batch.Volume)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "volume 2000 exceeds vessel BT-1 capacity 1500") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	f.expectOccupiedBy(bt.ID, a.ID)
}

func TestBlendInPlaceReopensAllocationForTargetPhase(t *testing.T) {
	f := newBlendFixture(t)
	a, fvA := f.fermenting("A1", f.paleAle)
	b, _ := f.fermenting("B1", f.paleAle)
	before := activeAllocation(t, f, a.ID)

	res, err := f.svc.TransferToConditioning(f.ctx, tenant, a.ID, blendInto(b.ID), domain.Measurements{})
	if err != nil {
		t.Fatalf("blend: %v", err)
	}
	f.expectOccupiedBy(fvA.ID, a.ID)
	after := activeAllocation(t, f, a.ID)
	if after.ID == before.ID || after.Phase != domain.PhaseConditioning || after.VesselID != fvA.ID {
		t.Fatalf("active allocation = %+v", after)
	}
	if res.Batch.Phase != after.Phase {
		t.Fatalf("batch phase %s, allocation phase %s", res.Batch.Phase, after.Phase)
	}
	if got := f.allocation(before.ID); got.Status != domain.AllocationCompleted {
		t.Fatalf("fermenting allocation = %s, want COMPLETED", got.Status)
	}

	// Without a vessel to stay in, the target phase needs an allocation.
	p1 := f.batch("P1", f.paleAle, 500)
	p2 := f.batch("P2", f.paleAle, 500)
	_, err = f.svc.StartFermentation(f.ctx, tenant, p1.ID, blendInto(p2.ID), domain.Measurements{})
	asError[domain.InvalidRequestError](t, err)
	if got := f.getBatch(p1.ID); got.Phase != domain.PhasePlanned || got.LotID != nil {
		t.Fatalf("anchor mutated: %+v", got)
	}
}

func activeAllocation(t *testing.T, f *blendFixture, batchID string) domain.Allocation {
	t.Helper()
	var active []domain.Allocation
	for _, a := range f.svc.Store().ListAllocations(tenant) {
		if a.BatchID == batchID && a.Status == domain.AllocationActive {
			active = append(active, a)
		}
	}
	if len(active) != 1 {
		t.Fatalf("batch %s holds %d active allocations", batchID, len(active))
	}
	return active[0]
}
