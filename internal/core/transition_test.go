package core

import (
	"cellarcore/pkg/domain"
	"net/http"
	"strings"
	"sync"
	"testing"
)

func TestSimpleLifecycleMovesThroughVessels(t *testing.T) {
	f := newFixture(t)
	fv := f.vessel("FV-1", 1200)
	bt := f.vessel("BT-1", 1200)
	b := f.batch("HA-1", f.recipe("House Ale", "Pale Ale", "WLP001"), 1000)

	res, err := f.svc.StartFermentation(f.ctx, tenant, b.ID, domain.Simple{VesselID: fv.ID}, domain.Measurements{OriginalGravity: floatPtr(1.052)})
	if err != nil {
		t.Fatalf("start fermentation: %v", err)
	}
	if res.Batch.Phase != domain.PhaseFermenting {
		t.Fatalf("phase = %s", res.Batch.Phase)
	}
	if res.Batch.FermentationStartedAt == nil || !res.Batch.FermentationStartedAt.Equal(fixedNow) {
		t.Fatalf("fermentation start not stamped: %v", res.Batch.FermentationStartedAt)
	}
	if !strings.HasPrefix(res.Batch.PhaseCode, "FRM-20260301-") {
		t.Fatalf("phase code = %q", res.Batch.PhaseCode)
	}
	if res.Batch.OriginalGravity == nil || *res.Batch.OriginalGravity != 1.052 {
		t.Fatalf("original gravity not recorded")
	}
	if len(res.Allocations) != 1 {
		t.Fatalf("expected one allocation, got %d", len(res.Allocations))
	}
	first := res.Allocations[0]
	if first.Status != domain.AllocationActive || first.Phase != domain.PhaseFermenting {
		t.Fatalf("unexpected allocation %+v", first)
	}
	if !first.PlannedStart.Equal(fixedNow) || !first.PlannedEnd.Equal(fixedNow.Add(DefaultPhaseDuration)) {
		t.Fatalf("default window not applied: %s", first.Window())
	}
	f.expectOccupiedBy(fv.ID, b.ID)
	if len(res.Secondary) != 2 || !res.SecondaryOK() {
		t.Fatalf("secondary outcomes = %+v", res.Secondary)
	}
	events := f.timeline.Events()
	if len(events) != 1 || events[0].Type != domain.TimelinePhaseTransition {
		t.Fatalf("timeline events = %+v", events)
	}
	if len(events[0].VesselIDs) != 1 || events[0].VesselIDs[0] != fv.ID {
		t.Fatalf("event vessels = %v", events[0].VesselIDs)
	}
	if f.mirror.Status(fv.ID) != domain.VesselOccupied {
		t.Fatalf("mirror saw %s", f.mirror.Status(fv.ID))
	}

	res, err = f.svc.TransferToConditioning(f.ctx, tenant, b.ID, domain.Simple{VesselID: bt.ID}, domain.Measurements{FinalGravity: floatPtr(1.012)})
	if err != nil {
		t.Fatalf("transfer to conditioning: %v", err)
	}
	if done := f.allocation(first.ID); done.Status != domain.AllocationCompleted || done.ActualEnd == nil {
		t.Fatalf("previous allocation not completed: %+v", done)
	}
	if len(res.Released) != 1 || res.Released[0].ID != first.ID {
		t.Fatalf("released = %+v", res.Released)
	}
	f.expectStatus(fv.ID, domain.VesselNeedsCleaning)
	f.expectOccupiedBy(bt.ID, b.ID)
	if f.mirror.Status(fv.ID) != domain.VesselNeedsCleaning {
		t.Fatalf("mirror not told about released vessel")
	}
	if res.Batch.OriginalGravity == nil || res.Batch.FinalGravity == nil || *res.Batch.FinalGravity != 1.012 {
		t.Fatalf("measurements lost: %+v", res.Batch)
	}
	if res.Batch.ConditioningStartedAt == nil || res.Batch.FermentationStartedAt == nil {
		t.Fatalf("phase timestamps missing: %+v", res.Batch)
	}

	res, err = f.svc.TransferToPackaging(f.ctx, tenant, b.ID, domain.Simple{}, domain.Measurements{})
	if err != nil {
		t.Fatalf("transfer to packaging: %v", err)
	}
	if res.Batch.Phase != domain.PhasePackaged || res.Batch.PackagedAt == nil {
		t.Fatalf("batch not packaged: %+v", res.Batch)
	}
	if len(res.Allocations) != 0 {
		t.Fatalf("packaging reserved %d vessels", len(res.Allocations))
	}
	f.expectStatus(bt.ID, domain.VesselNeedsCleaning)

	_, err = f.svc.Transition(f.ctx, domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: domain.PhaseCancelled, Scenario: domain.Simple{}})
	asError[domain.InvalidPhaseTransitionError](t, err)
}

func TestSimpleConflictReportsBlockingAllocation(t *testing.T) {
	f := newFixture(t)
	fv := f.vessel("FV-1", 1200)
	r := f.recipe("House Ale", "Pale Ale", "WLP001")
	a := f.batch("HA-1", r, 1000)
	b := f.batch("HA-2", r, 1000)

	held, err := f.svc.PlanAllocation(f.ctx, tenant, a.ID, fv.ID, domain.PhaseFermenting, domain.Interval{Start: at(10), End: at(12)})
	if err != nil {
		t.Fatalf("plan allocation: %v", err)
	}

	_, err = f.svc.StartFermentation(f.ctx, tenant, b.ID, domain.Simple{VesselID: fv.ID, Window: domain.Interval{Start: at(11), End: at(13)}}, domain.Measurements{})
	conflict := asError[domain.ResourceConflictError](t, err)
	if conflict.Reason != domain.ConflictAllocation || conflict.Conflict == nil || conflict.Conflict.ID != held.ID {
		t.Fatalf("conflict = %+v", conflict)
	}
	if domain.HTTPStatus(err) != http.StatusConflict {
		t.Fatalf("status = %d", domain.HTTPStatus(err))
	}
	if got := f.getBatch(b.ID); got.Phase != domain.PhasePlanned {
		t.Fatalf("rejected batch moved to %s", got.Phase)
	}
	f.expectStatus(fv.ID, domain.VesselAvailable)

	// Half-open intervals: [12,14) touches [10,12) without overlapping.
	if _, err := f.svc.StartFermentation(f.ctx, tenant, b.ID, domain.Simple{VesselID: fv.ID, Window: domain.Interval{Start: at(12), End: at(14)}}, domain.Measurements{}); err != nil {
		t.Fatalf("adjacent window rejected: %v", err)
	}
	f.expectOccupiedBy(fv.ID, b.ID)
}

func TestUnavailableVesselStatusConflicts(t *testing.T) {
	f := newFixture(t)
	fv := f.vessel("FV-1", 1200)
	b := f.batch("HA-1", f.recipe("House Ale", "Pale Ale", "WLP001"), 1000)
	if _, err := f.svc.SetVesselStatus(f.ctx, tenant, fv.ID, domain.VesselOutOfService); err != nil {
		t.Fatalf("set status: %v", err)
	}

	_, err := f.svc.StartFermentation(f.ctx, tenant, b.ID, domain.Simple{VesselID: fv.ID}, domain.Measurements{})
	conflict := asError[domain.ResourceConflictError](t, err)
	if conflict.Reason != domain.ConflictVesselStatus || conflict.Status != domain.VesselOutOfService {
		t.Fatalf("conflict = %+v", conflict)
	}
	if len(f.timeline.Events()) != 0 {
		t.Fatalf("failed transition emitted timeline events")
	}
}

func TestTransitionClaimsOwnPlannedAllocation(t *testing.T) {
	f := newFixture(t)
	fv := f.vessel("FV-1", 1200)
	r := f.recipe("House Ale", "Pale Ale", "WLP001")
	b := f.batch("HA-1", r, 1000)
	other := f.batch("HA-2", r, 1000)
	window := domain.Interval{Start: fixedNow, End: fixedNow.Add(DefaultPhaseDuration)}

	planned, err := f.svc.PlanAllocation(f.ctx, tenant, b.ID, fv.ID, domain.PhaseFermenting, window)
	if err != nil {
		t.Fatalf("plan allocation: %v", err)
	}
	if _, err := f.svc.StartFermentation(f.ctx, tenant, other.ID, domain.Simple{VesselID: fv.ID}, domain.Measurements{}); err == nil {
		t.Fatalf("another batch took the planned vessel")
	}

	res, err := f.svc.StartFermentation(f.ctx, tenant, b.ID, domain.Simple{VesselID: fv.ID}, domain.Measurements{})
	if err != nil {
		t.Fatalf("start fermentation into planned vessel: %v", err)
	}
	if got := f.allocation(planned.ID); got.Status != domain.AllocationCancelled {
		t.Fatalf("planned allocation status = %s", got.Status)
	}
	if len(res.Released) != 1 || res.Released[0].ID != planned.ID {
		t.Fatalf("released = %+v", res.Released)
	}
	f.expectOccupiedBy(fv.ID, b.ID)
}

func TestSimpleRequestValidation(t *testing.T) {
	f := newFixture(t)
	fv := f.vessel("FV-1", 1200)
	b := f.batch("HA-1", f.recipe("House Ale", "Pale Ale", "WLP001"), 1000)

	cases := []struct {
		name string
		req  domain.TransitionRequest
		want func(t *testing.T, err error)
	}{
		{"missing scenario", domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: domain.PhaseFermenting},
			func(t *testing.T, err error) { asError[domain.InvalidRequestError](t, err) }},
		{"unknown phase", domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: "AGING", Scenario: domain.Simple{VesselID: fv.ID}},
			func(t *testing.T, err error) { asError[domain.InvalidRequestError](t, err) }},
		{"missing vessel", domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: domain.PhaseFermenting, Scenario: domain.Simple{}},
			func(t *testing.T, err error) { asError[domain.InvalidRequestError](t, err) }},
		{"skipping a phase", domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: domain.PhaseConditioning, Scenario: domain.Simple{VesselID: fv.ID}},
			func(t *testing.T, err error) { asError[domain.InvalidPhaseTransitionError](t, err) }},
		{"vessel for packaging", domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: domain.PhaseCancelled, Scenario: domain.Simple{VesselID: fv.ID}},
			func(t *testing.T, err error) { asError[domain.InvalidRequestError](t, err) }},
		{"other tenant", domain.TransitionRequest{TenantID: "brewery-2", BatchID: b.ID, TargetPhase: domain.PhaseFermenting, Scenario: domain.Simple{VesselID: fv.ID}},
			func(t *testing.T, err error) { asError[domain.NotFoundError](t, err) }},
		{"inverted window", domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: domain.PhaseFermenting, Scenario: domain.Simple{VesselID: fv.ID, Window: domain.Interval{Start: at(12), End: at(10)}}},
			func(t *testing.T, err error) { asError[domain.InvalidRequestError](t, err) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Transition(f.ctx, tc.req)
			tc.want(t, err)
		})
	}
	if got := f.getBatch(b.ID); got.Phase != domain.PhasePlanned {
		t.Fatalf("rejected requests mutated batch: %s", got.Phase)
	}
	f.expectStatus(fv.ID, domain.VesselAvailable)
}

func TestCancelReleasesEverything(t *testing.T) {
	f := newFixture(t)
	fv := f.vessel("FV-1", 1200)
	bt := f.vessel("BT-1", 1200)
	b := f.batch("HA-1", f.recipe("House Ale", "Pale Ale", "WLP001"), 1000)
	f.ferment(b, fv.ID)
	planned, err := f.svc.PlanAllocation(f.ctx, tenant, b.ID, bt.ID, domain.PhaseConditioning, domain.Interval{Start: fixedNow.Add(DefaultPhaseDuration), End: fixedNow.Add(2 * DefaultPhaseDuration)})
	if err != nil {
		t.Fatalf("plan conditioning: %v", err)
	}

	res, err := f.svc.Transition(f.ctx, domain.TransitionRequest{TenantID: tenant, BatchID: b.ID, TargetPhase: domain.PhaseCancelled, Scenario: domain.Simple{}})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Batch.CancelledAt == nil || res.Batch.Phase != domain.PhaseCancelled {
		t.Fatalf("batch not cancelled: %+v", res.Batch)
	}
	if got := f.allocation(planned.ID); got.Status != domain.AllocationCancelled {
		t.Fatalf("planned allocation status = %s", got.Status)
	}
	if len(res.Released) != 2 {
		t.Fatalf("released = %+v", res.Released)
	}
	f.expectStatus(fv.ID, domain.VesselNeedsCleaning)
	f.expectStatus(bt.ID, domain.VesselAvailable)
}

func TestCapacityWarningDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	small := f.vessel("FV-S", 500)
	b := f.batch("HA-1", f.recipe("House Ale", "Pale Ale", "WLP001"), 1000)

	res := f.ferment(b, small.ID)
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "exceeds vessel FV-S capacity") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	f.expectOccupiedBy(small.ID, b.ID)
}

func TestConcurrentTransitionsIntoOneVessel(t *testing.T) {
	f := newFixture(t)
	fv := f.vessel("FV-1", 1200)
	r := f.recipe("House Ale", "Pale Ale", "WLP001")
	var batches []domain.Batch
	for _, code := range []string{"HA-1", "HA-2", "HA-3", "HA-4", "HA-5", "HA-6"} {
		batches = append(batches, f.batch(code, r, 1000))
	}

	errs := make([]error, len(batches))
	var wg sync.WaitGroup
	for i, b := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.StartFermentation(f.ctx, tenant, b.ID, domain.Simple{VesselID: fv.ID}, domain.Measurements{})
		}()
	}
	wg.Wait()

	winners := 0
	var winner string
	for i, err := range errs {
		if err == nil {
			winners++
			winner = batches[i].ID
			continue
		}
		asError[domain.ResourceConflictError](t, err)
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	f.expectOccupiedBy(fv.ID, winner)
	active := 0
	for _, a := range f.svc.Store().ListAllocations(tenant) {
		if a.Status == domain.AllocationActive {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected one active allocation, got %d", active)
	}
}
