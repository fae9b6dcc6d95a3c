package core

import (
	"cellarcore/internal/registry"
	"cellarcore/pkg/domain"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const tenant = "brewery-1"

var fixedNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.TimelineEvent
	err    error
}

func (s *recordingSink) Emit(_ context.Context, event domain.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []domain.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TimelineEvent(nil), s.events...)
}

type recordingMirror struct {
	mu      sync.Mutex
	vessels map[string]domain.Vessel
	panics  bool
}

func (m *recordingMirror) Mirror(_ context.Context, vessels []domain.Vessel) error {
	if m.panics {
		panic("mirror unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vessels == nil {
		m.vessels = make(map[string]domain.Vessel)
	}
	for _, v := range vessels {
		m.vessels[v.ID] = v
	}
	return nil
}

func (m *recordingMirror) Status(id string) domain.VesselStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vessels[id].Status
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	svc      *Service
	timeline *recordingSink
	mirror   *recordingMirror
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), timeline: &recordingSink{}, mirror: &recordingMirror{}}
	base := []Option{
		WithClock(ClockFunc(func() time.Time { return fixedNow })),
		WithTimeline(f.timeline),
		WithEquipmentMirror(f.mirror),
	}
	f.svc = NewInMemoryService(nil, append(base, opts...)...)
	return f
}

func (f *fixture) vessel(name string, capacity float64) domain.Vessel {
	f.t.Helper()
	v, err := f.svc.OnboardVessel(f.ctx, registry.OnboardInput{TenantID: tenant, Name: name, Capacity: capacity})
	if err != nil {
		f.t.Fatalf("onboard %s: %v", name, err)
	}
	return v
}

func (f *fixture) recipe(name, style, strain string) domain.Recipe {
	f.t.Helper()
	r, err := f.svc.CreateRecipe(f.ctx, domain.Recipe{Base: domain.Base{TenantID: tenant}, Name: name, Style: style, Strain: strain})
	if err != nil {
		f.t.Fatalf("create recipe %s: %v", name, err)
	}
	return r
}

func (f *fixture) batch(code string, recipe domain.Recipe, volume float64) domain.Batch {
	f.t.Helper()
	b, err := f.svc.PlanBatch(f.ctx, PlanBatchInput{TenantID: tenant, Code: code, RecipeID: recipe.ID, Volume: volume})
	if err != nil {
		f.t.Fatalf("plan batch %s: %v", code, err)
	}
	return b
}

// ferment moves a planned batch into vesselID.
func (f *fixture) ferment(batch domain.Batch, vesselID string) domain.TransitionResult {
	f.t.Helper()
	res, err := f.svc.StartFermentation(f.ctx, tenant, batch.ID, domain.Simple{VesselID: vesselID}, domain.Measurements{})
	if err != nil {
		f.t.Fatalf("start fermentation of %s: %v", batch.Code, err)
	}
	return res
}

func (f *fixture) getVessel(id string) domain.Vessel {
	f.t.Helper()
	v, err := f.svc.GetVessel(f.ctx, tenant, id)
	if err != nil {
		f.t.Fatalf("get vessel %s: %v", id, err)
	}
	return v
}

func (f *fixture) getBatch(id string) domain.Batch {
	f.t.Helper()
	b, err := f.svc.GetBatch(f.ctx, tenant, id)
	if err != nil {
		f.t.Fatalf("get batch %s: %v", id, err)
	}
	return b
}

func (f *fixture) allocation(id string) domain.Allocation {
	f.t.Helper()
	for _, a := range f.svc.Store().ListAllocations(tenant) {
		if a.ID == id {
			return a
		}
	}
	f.t.Fatalf("allocation %s not found", id)
	return domain.Allocation{}
}

func (f *fixture) expectOccupiedBy(vesselID, batchID string) {
	f.t.Helper()
	v := f.getVessel(vesselID)
	if v.Status != domain.VesselOccupied {
		f.t.Fatalf("vessel %s status = %s, want OCCUPIED", v.Name, v.Status)
	}
	if v.CurrentBatchID == nil || *v.CurrentBatchID != batchID {
		f.t.Fatalf("vessel %s holds %v, want batch %s", v.Name, v.CurrentBatchID, batchID)
	}
	if v.CurrentAllocationID == nil {
		f.t.Fatalf("vessel %s has no allocation pointer", v.Name)
	}
	if a := f.allocation(*v.CurrentAllocationID); a.Status != domain.AllocationActive || a.BatchID != batchID {
		f.t.Fatalf("vessel %s points at %+v", v.Name, a)
	}
}

func (f *fixture) expectStatus(vesselID string, want domain.VesselStatus) {
	f.t.Helper()
	v := f.getVessel(vesselID)
	if v.Status != want {
		f.t.Fatalf("vessel %s status = %s, want %s", v.Name, v.Status, want)
	}
	if want != domain.VesselOccupied && (v.CurrentBatchID != nil || v.CurrentAllocationID != nil) {
		f.t.Fatalf("vessel %s kept occupancy pointers while %s", v.Name, v.Status)
	}
}

func at(hour int) time.Time {
	return time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC)
}

func asError[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %v", target, err)
	}
	return target
}

func floatPtr(v float64) *float64 { return &v }
