// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by cellarcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityVessel identifies a physical production vessel.
	EntityVessel EntityType = "vessel"
	// EntityBatch identifies an in-process production batch.
	EntityBatch EntityType = "batch"
	// EntityAllocation identifies a time-ranged vessel reservation.
	EntityAllocation EntityType = "allocation"
	// EntityLot identifies a blended lot grouping.
	EntityLot EntityType = "lot"
	// EntityRecipe identifies a recipe record supplied by the recipe store.
	EntityRecipe EntityType = "recipe"
)

// VesselStatus enumerates the operational states of a vessel.
type VesselStatus string

// Canonical vessel statuses. Only VesselAvailable accepts new allocations.
const (
	VesselAvailable     VesselStatus = "AVAILABLE"
	VesselOccupied      VesselStatus = "OCCUPIED"
	VesselNeedsCleaning VesselStatus = "NEEDS_CLEANING"
	VesselMaintenance   VesselStatus = "MAINTENANCE"
	VesselOutOfService  VesselStatus = "OUT_OF_SERVICE"
)

// Valid reports whether the status is one of the canonical values.
func (s VesselStatus) Valid() bool {
	switch s {
	case VesselAvailable, VesselOccupied, VesselNeedsCleaning, VesselMaintenance, VesselOutOfService:
		return true
	}
	return false
}

// Allocatable reports whether a vessel in this status accepts new allocations.
func (s VesselStatus) Allocatable() bool {
	return s == VesselAvailable
}

// Phase represents a stage in a batch's production lifecycle.
type Phase string

// Canonical batch phases.
const (
	PhasePlanned      Phase = "PLANNED"
	PhaseFermenting   Phase = "FERMENTING"
	PhaseConditioning Phase = "CONDITIONING"
	PhasePackaged     Phase = "PACKAGED"
	PhaseCancelled    Phase = "CANCELLED"
)

// AllocationStatus enumerates allocation lifecycle states.
type AllocationStatus string

// Canonical allocation statuses. Planned and active allocations hold the vessel.
const (
	AllocationPlanned   AllocationStatus = "PLANNED"
	AllocationActive    AllocationStatus = "ACTIVE"
	AllocationCompleted AllocationStatus = "COMPLETED"
	AllocationCancelled AllocationStatus = "CANCELLED"
)

// Holding reports whether the allocation participates in overlap detection.
func (s AllocationStatus) Holding() bool {
	return s == AllocationPlanned || s == AllocationActive
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Version increments on every committed write and backs optimistic checks.
	Version int64 `json:"version"`
}

// Vessel is a physical, schedulable production resource.
type Vessel struct {
	Base
	Name     string       `json:"name"`
	Capacity float64      `json:"capacity"`
	Status   VesselStatus `json:"status"`
	// CurrentBatchID and CurrentAllocationID are the denormalized occupancy
	// pointers; both are set exactly when Status is VesselOccupied.
	CurrentBatchID      *string `json:"current_batch_id"`
	CurrentAllocationID *string `json:"current_allocation_id"`
}

// Measurements captures readings recorded at a phase boundary.
type Measurements struct {
	OriginalGravity *float64 `json:"original_gravity,omitempty"`
	FinalGravity    *float64 `json:"final_gravity,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

// Batch is a trackable unit of in-process production output.
type Batch struct {
	Base
	Code            string   `json:"code"`
	RecipeID        string   `json:"recipe_id"`
	Volume          float64  `json:"volume"`
	Phase           Phase    `json:"phase"`
	OriginalGravity *float64 `json:"original_gravity"`
	FinalGravity    *float64 `json:"final_gravity"`
	Temperature     *float64 `json:"temperature"`
	ParentBatchID   *string  `json:"parent_batch_id"`
	LotID           *string  `json:"lot_id"`
	// PhaseCode is the informational code issued on the latest phase entry.
	PhaseCode             string     `json:"phase_code,omitempty"`
	FermentationStartedAt *time.Time `json:"fermentation_started_at"`
	ConditioningStartedAt *time.Time `json:"conditioning_started_at"`
	PackagedAt            *time.Time `json:"packaged_at"`
	CancelledAt           *time.Time `json:"cancelled_at"`
}

// ApplyMeasurements copies any provided readings onto the batch.
func (b *Batch) ApplyMeasurements(m Measurements) {
	if m.OriginalGravity != nil {
		b.OriginalGravity = cloneFloat(m.OriginalGravity)
	}
	if m.FinalGravity != nil {
		b.FinalGravity = cloneFloat(m.FinalGravity)
	}
	if m.Temperature != nil {
		b.Temperature = cloneFloat(m.Temperature)
	}
}

// StampPhase records the entry timestamp for the supplied phase.
func (b *Batch) StampPhase(phase Phase, at time.Time) {
	ts := at
	switch phase {
	case PhaseFermenting:
		b.FermentationStartedAt = &ts
	case PhaseConditioning:
		b.ConditioningStartedAt = &ts
	case PhasePackaged:
		b.PackagedAt = &ts
	case PhaseCancelled:
		b.CancelledAt = &ts
	}
}

// Allocation reserves one vessel for one batch and phase over [PlannedStart, PlannedEnd).
type Allocation struct {
	Base
	VesselID     string           `json:"vessel_id"`
	BatchID      string           `json:"batch_id"`
	Phase        Phase            `json:"phase"`
	PlannedStart time.Time        `json:"planned_start"`
	PlannedEnd   time.Time        `json:"planned_end"`
	ActualStart  *time.Time       `json:"actual_start"`
	ActualEnd    *time.Time       `json:"actual_end"`
	Status       AllocationStatus `json:"status"`
}

// Window returns the planned interval of the allocation.
func (a Allocation) Window() Interval {
	return Interval{Start: a.PlannedStart, End: a.PlannedEnd}
}

// Lot groups the batches merged by a blend.
type Lot struct {
	Base
	Code     string   `json:"code"`
	BatchIDs []string `json:"batch_ids"`
}

// Contains reports whether the lot already references the batch.
func (l Lot) Contains(batchID string) bool {
	for _, id := range l.BatchIDs {
		if id == batchID {
			return true
		}
	}
	return false
}

// Recipe is the read-only recipe data consulted by blend validation.
type Recipe struct {
	Base
	Name   string `json:"name"`
	Style  string `json:"style"`
	Strain string `json:"strain"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// CloneString returns an independent copy of an optional string.
func CloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// CloneTime returns an independent copy of an optional timestamp.
func CloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// CloneVessel deep-copies a vessel record.
func CloneVessel(v Vessel) Vessel {
	cp := v
	cp.CurrentBatchID = CloneString(v.CurrentBatchID)
	cp.CurrentAllocationID = CloneString(v.CurrentAllocationID)
	return cp
}

// CloneBatch deep-copies a batch record.
func CloneBatch(b Batch) Batch {
	cp := b
	cp.OriginalGravity = cloneFloat(b.OriginalGravity)
	cp.FinalGravity = cloneFloat(b.FinalGravity)
	cp.Temperature = cloneFloat(b.Temperature)
	cp.ParentBatchID = CloneString(b.ParentBatchID)
	cp.LotID = CloneString(b.LotID)
	cp.FermentationStartedAt = CloneTime(b.FermentationStartedAt)
	cp.ConditioningStartedAt = CloneTime(b.ConditioningStartedAt)
	cp.PackagedAt = CloneTime(b.PackagedAt)
	cp.CancelledAt = CloneTime(b.CancelledAt)
	return cp
}

// CloneAllocation deep-copies an allocation record.
func CloneAllocation(a Allocation) Allocation {
	cp := a
	cp.ActualStart = CloneTime(a.ActualStart)
	cp.ActualEnd = CloneTime(a.ActualEnd)
	return cp
}

// CloneLot deep-copies a lot record.
func CloneLot(l Lot) Lot {
	cp := l
	if l.BatchIDs != nil {
		cp.BatchIDs = append(make([]string, 0, len(l.BatchIDs)), l.BatchIDs...)
	}
	return cp
}

// CloneFloat returns an independent copy of an optional reading.
func CloneFloat(v *float64) *float64 {
	return cloneFloat(v)
}
