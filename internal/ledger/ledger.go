// Package ledger records vessel reservations as time-ranged allocations and
// provides the overlap-detection primitive used by the lifecycle engine.
//
// Checks read from a domain.TransactionView and never write. Mutations take a
// domain.Transaction and keep the vessel's denormalized occupancy pointers in
// step with the allocation rows so a single vessel read answers "who is in
// this tank".
package ledger

import (
	"cellarcore/pkg/domain"
	"errors"
	"fmt"
	"time"
)

// Blocker explains why a vessel is unavailable for an interval.
type Blocker struct {
	Reason domain.ConflictReason
	// Status is the vessel status when Reason is domain.ConflictVesselStatus.
	Status domain.VesselStatus
	// Allocation is the conflicting reservation, when one exists.
	Allocation *domain.Allocation
}

// AvailabilityResult reports whether a vessel may be reserved for an interval.
type AvailabilityResult struct {
	VesselID  string
	Available bool
	Vessel    domain.Vessel
	Blocker   *Blocker
}

// Err converts an unavailable result into a domain.ResourceConflictError.
func (r AvailabilityResult) Err() error {
	if r.Available {
		return nil
	}
	conflict := domain.ResourceConflictError{VesselID: r.VesselID, Reason: domain.ConflictAllocation}
	if r.Blocker != nil {
		conflict.Reason = r.Blocker.Reason
		conflict.Status = r.Blocker.Status
		if r.Blocker.Allocation != nil {
			alloc := domain.CloneAllocation(*r.Blocker.Allocation)
			conflict.Conflict = &alloc
		}
	}
	return conflict
}

// CheckAvailability reports whether vesselID can hold a new reservation over
// window. excludeAllocationID names a reservation to ignore, used when a batch
// re-reserves the vessel it already occupies.
//
// Statuses other than AVAILABLE block regardless of intervals. An OCCUPIED
// vessel only admits its current occupant. Otherwise any PLANNED or ACTIVE
// allocation whose half-open interval overlaps window blocks.
func CheckAvailability(view domain.TransactionView, tenantID, vesselID string, window domain.Interval, excludeAllocationID string) (AvailabilityResult, error) {
	if err := window.Validate(); err != nil {
		return AvailabilityResult{}, err
	}
	vessel, err := lookupVessel(view, tenantID, vesselID)
	if err != nil {
		return AvailabilityResult{}, err
	}
	result := AvailabilityResult{VesselID: vesselID, Vessel: vessel}

	switch vessel.Status {
	case domain.VesselAvailable, domain.VesselOccupied:
	default:
		result.Blocker = &Blocker{Reason: domain.ConflictVesselStatus, Status: vessel.Status}
		return result, nil
	}

	for _, existing := range view.AllocationsForVessel(vesselID) {
		if existing.ID == excludeAllocationID || !existing.Status.Holding() {
			continue
		}
		if existing.Window().Overlaps(window) {
			alloc := existing
			result.Blocker = &Blocker{Reason: domain.ConflictAllocation, Allocation: &alloc}
			return result, nil
		}
	}

	if vessel.Status == domain.VesselOccupied && !occupiedBy(vessel, excludeAllocationID) {
		blocker := &Blocker{Reason: domain.ConflictVesselStatus, Status: vessel.Status}
		if vessel.CurrentAllocationID != nil {
			if current, ok := view.FindAllocation(*vessel.CurrentAllocationID); ok {
				blocker.Allocation = &current
			}
		}
		result.Blocker = blocker
		return result, nil
	}

	result.Available = true
	return result, nil
}

func occupiedBy(vessel domain.Vessel, allocationID string) bool {
	return allocationID != "" && vessel.CurrentAllocationID != nil && *vessel.CurrentAllocationID == allocationID
}

func lookupVessel(view domain.TransactionView, tenantID, vesselID string) (domain.Vessel, error) {
	vessel, ok := view.FindVessel(vesselID)
	if !ok || (tenantID != "" && vessel.TenantID != tenantID) {
		return domain.Vessel{}, domain.NotFoundError{Entity: domain.EntityVessel, ID: vesselID}
	}
	return vessel, nil
}

// MultiAvailability aggregates per-vessel checks for a split.
type MultiAvailability struct {
	AllAvailable bool
	PerVessel    map[string]AvailabilityResult
	// Order preserves the request order of vessel identifiers.
	Order []string
}

// FirstConflict returns the conflict for the first unavailable vessel in request order.
func (m MultiAvailability) FirstConflict() error {
	for _, id := range m.Order {
		if res := m.PerVessel[id]; !res.Available {
			return res.Err()
		}
	}
	return nil
}

// CheckMultiple runs CheckAvailability for every requested vessel over the
// same window. A vessel named twice conflicts with itself.
func CheckMultiple(view domain.TransactionView, tenantID string, requests []domain.VesselVolume, window domain.Interval, excludeAllocationID string) (MultiAvailability, error) {
	out := MultiAvailability{AllAvailable: true, PerVessel: make(map[string]AvailabilityResult, len(requests))}
	for _, req := range requests {
		if _, dup := out.PerVessel[req.VesselID]; dup {
			out.PerVessel[req.VesselID] = AvailabilityResult{
				VesselID: req.VesselID,
				Vessel:   out.PerVessel[req.VesselID].Vessel,
				Blocker:  &Blocker{Reason: domain.ConflictAllocation},
			}
			out.AllAvailable = false
			continue
		}
		res, err := CheckAvailability(view, tenantID, req.VesselID, window, excludeAllocationID)
		if err != nil {
			return MultiAvailability{}, err
		}
		out.PerVessel[req.VesselID] = res
		out.Order = append(out.Order, req.VesselID)
		if !res.Available {
			out.AllAvailable = false
		}
	}
	return out, nil
}

// ReserveInput describes a new allocation.
type ReserveInput struct {
	TenantID string
	VesselID string
	BatchID  string
	Phase    domain.Phase
	Window   domain.Interval
	// Status is AllocationActive when empty.
	Status domain.AllocationStatus
	Now    time.Time
}

// Reserve inserts an allocation. ACTIVE reservations occupy the vessel and
// set its occupancy pointers; PLANNED reservations leave the vessel untouched.
// The caller must have checked availability against the same transaction
// snapshot; concurrent overlaps are rejected by the store at commit.
func Reserve(tx domain.Transaction, in ReserveInput) (domain.Allocation, error) {
	if err := in.Window.Validate(); err != nil {
		return domain.Allocation{}, err
	}
	status := in.Status
	if status == "" {
		status = domain.AllocationActive
	}
	if !status.Holding() {
		return domain.Allocation{}, domain.InvalidRequestError{Field: "status", Reason: fmt.Sprintf("cannot reserve with status %s", status)}
	}
	alloc := domain.Allocation{
		Base:         domain.Base{TenantID: in.TenantID},
		VesselID:     in.VesselID,
		BatchID:      in.BatchID,
		Phase:        in.Phase,
		PlannedStart: in.Window.Start,
		PlannedEnd:   in.Window.End,
		Status:       status,
	}
	if status == domain.AllocationActive {
		started := in.Now
		alloc.ActualStart = &started
	}
	created, err := tx.CreateAllocation(alloc)
	if err != nil {
		return domain.Allocation{}, err
	}
	if status == domain.AllocationActive {
		if err := occupy(tx, created); err != nil {
			return domain.Allocation{}, err
		}
	}
	return created, nil
}

func occupy(tx domain.Transaction, alloc domain.Allocation) error {
	_, err := tx.UpdateVessel(alloc.VesselID, func(v *domain.Vessel) error {
		v.Status = domain.VesselOccupied
		batchID, allocID := alloc.BatchID, alloc.ID
		v.CurrentBatchID = &batchID
		v.CurrentAllocationID = &allocID
		return nil
	})
	return err
}

// release clears the occupancy pointers when they still point at allocationID.
func release(tx domain.Transaction, vesselID, allocationID string, next domain.VesselStatus) error {
	view := tx.Snapshot()
	vessel, ok := view.FindVessel(vesselID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityVessel, ID: vesselID}
	}
	if !occupiedBy(vessel, allocationID) {
		return nil
	}
	_, err := tx.UpdateVessel(vesselID, func(v *domain.Vessel) error {
		v.Status = next
		v.CurrentBatchID = nil
		v.CurrentAllocationID = nil
		return nil
	})
	return err
}

// Plan records a PLANNED reservation after checking availability inside the
// same transaction.
func Plan(tx domain.Transaction, in ReserveInput) (domain.Allocation, error) {
	res, err := CheckAvailability(tx.Snapshot(), in.TenantID, in.VesselID, in.Window, "")
	if err != nil {
		return domain.Allocation{}, err
	}
	if !res.Available {
		return domain.Allocation{}, res.Err()
	}
	in.Status = domain.AllocationPlanned
	return Reserve(tx, in)
}

// Activate promotes a PLANNED allocation to ACTIVE and occupies its vessel.
func Activate(tx domain.Transaction, allocationID string, at time.Time) (domain.Allocation, error) {
	view := tx.Snapshot()
	current, ok := view.FindAllocation(allocationID)
	if !ok {
		return domain.Allocation{}, domain.NotFoundError{Entity: domain.EntityAllocation, ID: allocationID}
	}
	if current.Status != domain.AllocationPlanned {
		return domain.Allocation{}, domain.InvalidRequestError{Field: "allocation", Reason: fmt.Sprintf("%s is %s, not PLANNED", allocationID, current.Status)}
	}
	batch, ok := view.FindBatch(current.BatchID)
	if !ok {
		return domain.Allocation{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: current.BatchID}
	}
	if !activatableFor(batch.Phase, current.Phase) {
		return domain.Allocation{}, domain.InvalidRequestError{
			Field:  "allocation",
			Reason: fmt.Sprintf("%s reserves %s but batch %s is %s; transition the batch instead", allocationID, current.Phase, batch.Code, batch.Phase),
		}
	}
	if held := ActiveFor(view, batch.ID); len(held) > 0 {
		return domain.Allocation{}, domain.InvalidRequestError{
			Field:  "allocation",
			Reason: fmt.Sprintf("batch %s already holds active allocation %s", batch.Code, held[0].ID),
		}
	}
	vessel, ok := view.FindVessel(current.VesselID)
	if !ok {
		return domain.Allocation{}, domain.NotFoundError{Entity: domain.EntityVessel, ID: current.VesselID}
	}
	if !vessel.Status.Allocatable() {
		return domain.Allocation{}, domain.ResourceConflictError{VesselID: vessel.ID, Reason: domain.ConflictVesselStatus, Status: vessel.Status}
	}
	updated, err := tx.UpdateAllocation(allocationID, func(a *domain.Allocation) error {
		a.Status = domain.AllocationActive
		started := at
		a.ActualStart = &started
		return nil
	})
	if err != nil {
		return domain.Allocation{}, err
	}
	if err := occupy(tx, updated); err != nil {
		return domain.Allocation{}, err
	}
	return updated, nil
}

// activatableFor reports whether a batch in phase may occupy a vessel
// reserved for allocPhase. A PLANNED batch may fill its fermenter ahead of
// pitching; every other batch only activates reservations for its own phase.
func activatableFor(phase, allocPhase domain.Phase) bool {
	if phase == allocPhase {
		return phase.NeedsVessel()
	}
	return phase == domain.PhasePlanned && allocPhase == domain.PhaseFermenting
}

// Complete closes an ACTIVE allocation. A vessel the allocation occupied moves
// to NEEDS_CLEANING.
func Complete(tx domain.Transaction, allocationID string, at time.Time) (domain.Allocation, error) {
	return closeAllocation(tx, allocationID, at, domain.AllocationCompleted, domain.VesselNeedsCleaning)
}

// Cancel supersedes a PLANNED or ACTIVE allocation. A vessel the allocation
// occupied becomes AVAILABLE again.
func Cancel(tx domain.Transaction, allocationID string, at time.Time) (domain.Allocation, error) {
	return closeAllocation(tx, allocationID, at, domain.AllocationCancelled, domain.VesselAvailable)
}

func closeAllocation(tx domain.Transaction, allocationID string, at time.Time, status domain.AllocationStatus, next domain.VesselStatus) (domain.Allocation, error) {
	current, ok := tx.Snapshot().FindAllocation(allocationID)
	if !ok {
		return domain.Allocation{}, domain.NotFoundError{Entity: domain.EntityAllocation, ID: allocationID}
	}
	switch {
	case status == domain.AllocationCompleted && current.Status != domain.AllocationActive,
		status == domain.AllocationCancelled && !current.Status.Holding():
		return domain.Allocation{}, domain.InvalidRequestError{Field: "allocation", Reason: fmt.Sprintf("%s is %s, cannot become %s", allocationID, current.Status, status)}
	}
	updated, err := tx.UpdateAllocation(allocationID, func(a *domain.Allocation) error {
		a.Status = status
		if a.ActualStart != nil {
			ended := at
			a.ActualEnd = &ended
		}
		return nil
	})
	if err != nil {
		return domain.Allocation{}, err
	}
	if err := release(tx, updated.VesselID, updated.ID, next); err != nil {
		return domain.Allocation{}, err
	}
	return updated, nil
}

// ActiveFor returns the batch's ACTIVE allocations ordered by planned start.
func ActiveFor(view domain.TransactionView, batchID string) []domain.Allocation {
	var out []domain.Allocation
	for _, a := range view.AllocationsForBatch(batchID) {
		if a.Status == domain.AllocationActive {
			out = append(out, a)
		}
	}
	return out
}

// Schedule lists every allocation on the vessel ordered by planned start.
func Schedule(view domain.TransactionView, tenantID, vesselID string) ([]domain.Allocation, error) {
	if _, err := lookupVessel(view, tenantID, vesselID); err != nil {
		return nil, err
	}
	return view.AllocationsForVessel(vesselID), nil
}

// TranslateCommitError maps storage-level commit failures onto
// domain.ResourceConflictError. Other errors pass through unchanged.
func TranslateCommitError(err error) error {
	var exclusion domain.ExclusionViolationError
	if errors.As(err, &exclusion) {
		existing := domain.CloneAllocation(exclusion.Existing)
		return domain.ResourceConflictError{
			VesselID: exclusion.VesselID,
			Reason:   domain.ConflictAllocation,
			Conflict: &existing,
			Cause:    err,
		}
	}
	var clash domain.WriteConflictError
	if errors.As(err, &clash) {
		conflict := domain.ResourceConflictError{Reason: domain.ConflictConcurrentWrite, Cause: err}
		if clash.Entity == domain.EntityVessel {
			conflict.VesselID = clash.ID
		}
		return conflict
	}
	return err
}
