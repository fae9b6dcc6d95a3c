package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// NotFoundError is returned when a batch, vessel, lot, or recipe reference
// does not resolve within the tenant.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// InvalidPhaseTransitionError reports a target phase that does not legally
// follow the batch's current phase.
type InvalidPhaseTransitionError struct {
	BatchID string
	From    Phase
	To      Phase
}

func (e InvalidPhaseTransitionError) Error() string {
	return fmt.Sprintf("batch %s cannot move from %s to %s", e.BatchID, e.From, e.To)
}

// ConflictReason distinguishes why a vessel cannot be allocated.
type ConflictReason string

// Conflict reasons carried by ResourceConflictError.
const (
	// ConflictVesselStatus means the vessel status forbids allocation.
	ConflictVesselStatus ConflictReason = "vessel_status"
	// ConflictAllocation means an overlapping planned or active allocation exists.
	ConflictAllocation ConflictReason = "conflicting_allocation"
	// ConflictConcurrentWrite means a concurrent transition committed first.
	ConflictConcurrentWrite ConflictReason = "concurrent_write"
)

// ResourceConflictError reports a vessel that is unavailable by status or by
// an overlapping allocation.
type ResourceConflictError struct {
	VesselID string
	Reason   ConflictReason
	// Status is set for ConflictVesselStatus.
	Status VesselStatus
	// Conflict is set for ConflictAllocation.
	Conflict *Allocation
	// Cause carries the storage failure for ConflictConcurrentWrite.
	Cause error
}

func (e ResourceConflictError) Error() string {
	switch e.Reason {
	case ConflictVesselStatus:
		return fmt.Sprintf("vessel %s unavailable: status %s forbids allocation", e.VesselID, e.Status)
	case ConflictAllocation:
		if e.Conflict != nil {
			return fmt.Sprintf("vessel %s unavailable: conflicts with allocation %s (%s %s, %s)",
				e.VesselID, e.Conflict.ID, e.Conflict.Phase, e.Conflict.Window(), e.Conflict.Status)
		}
		return fmt.Sprintf("vessel %s unavailable: conflicting allocation", e.VesselID)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("vessel %s unavailable: %v", e.VesselID, e.Cause)
		}
		return fmt.Sprintf("vessel %s unavailable: concurrent write", e.VesselID)
	}
}

func (e ResourceConflictError) Unwrap() error { return e.Cause }

// IncompatibleBlendError reports a hard-rule blend validation failure.
type IncompatibleBlendError struct {
	Attribute string
	Values    []string
}

func (e IncompatibleBlendError) Error() string {
	return fmt.Sprintf("incompatible blend: %s differs (%s)", e.Attribute, strings.Join(e.Values, ", "))
}

// SequenceExhaustedError is returned when lot code generation runs out of
// retry budget or of sequence space.
type SequenceExhaustedError struct {
	Prefix   string
	Attempts int
}

func (e SequenceExhaustedError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("sequence %s exhausted", e.Prefix)
	}
	return fmt.Sprintf("sequence %s exhausted after %d attempts", e.Prefix, e.Attempts)
}

// InvalidRequestError reports malformed scenario parameters.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UniqueViolationError is raised by stores at commit time when a uniqueness
// constraint (batch code, lot code) would be broken.
type UniqueViolationError struct {
	Constraint string
	Value      string
}

func (e UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint %s violated by %q", e.Constraint, e.Value)
}

// Constraint names enforced by persistent stores.
const (
	ConstraintBatchCode = "batch_code"
	ConstraintLotCode   = "lot_code"
)

// ExclusionViolationError is raised by stores at commit time when two holding
// allocations on one vessel would overlap.
type ExclusionViolationError struct {
	VesselID string
	Existing Allocation
	Incoming Allocation
}

func (e ExclusionViolationError) Error() string {
	return fmt.Sprintf("allocation %s overlaps %s on vessel %s", e.Incoming.ID, e.Existing.ID, e.VesselID)
}

// WriteConflictError is raised when a record read by the transaction was
// changed by a concurrent commit.
type WriteConflictError struct {
	Entity EntityType
	ID     string
}

func (e WriteConflictError) Error() string {
	return fmt.Sprintf("%s %s modified concurrently", e.Entity, e.ID)
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// HTTPStatus maps subsystem errors onto request-layer status codes.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var (
		notFound   NotFoundError
		phase      InvalidPhaseTransitionError
		conflict   ResourceConflictError
		blend      IncompatibleBlendError
		exhausted  SequenceExhaustedError
		invalid    InvalidRequestError
		rules      RuleViolationError
		unique     UniqueViolationError
		exclusion  ExclusionViolationError
		writeClash WriteConflictError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.As(err, &exhausted),
		errors.As(err, &unique), errors.As(err, &exclusion), errors.As(err, &writeClash):
		return http.StatusConflict
	case errors.As(err, &phase), errors.As(err, &blend), errors.As(err, &invalid), errors.As(err, &rules):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
