// Package registry holds the operational status and capacity of each vessel.
// It carries no scheduling logic; occupancy is owned by the ledger.
package registry

import (
	"cellarcore/pkg/domain"
	"context"
	"fmt"
	"strings"
)

// Registry reads and writes vessel records through a persistent store.
type Registry struct {
	store domain.PersistentStore
}

// New constructs a registry over store.
func New(store domain.PersistentStore) *Registry {
	return &Registry{store: store}
}

// OnboardInput describes a vessel entering service.
type OnboardInput struct {
	TenantID string
	Name     string
	Capacity float64
}

// Onboard registers a new AVAILABLE vessel.
func (r *Registry) Onboard(ctx context.Context, in OnboardInput) (domain.Vessel, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Vessel{}, domain.InvalidRequestError{Field: "name", Reason: "required"}
	}
	if in.Capacity <= 0 {
		return domain.Vessel{}, domain.InvalidRequestError{Field: "capacity", Reason: "must be positive"}
	}
	var created domain.Vessel
	_, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, existing := range tx.Snapshot().ListVessels(in.TenantID) {
			if existing.Name == name {
				return domain.InvalidRequestError{Field: "name", Reason: fmt.Sprintf("vessel %q already registered", name)}
			}
		}
		v, err := tx.CreateVessel(domain.Vessel{
			Base:     domain.Base{TenantID: in.TenantID},
			Name:     name,
			Capacity: in.Capacity,
			Status:   domain.VesselAvailable,
		})
		created = v
		return err
	})
	return created, err
}

// Get returns the tenant's vessel.
func (r *Registry) Get(ctx context.Context, tenantID, id string) (domain.Vessel, error) {
	var out domain.Vessel
	err := r.store.View(ctx, func(view domain.TransactionView) error {
		v, ok := view.FindVessel(id)
		if !ok || v.TenantID != tenantID {
			return domain.NotFoundError{Entity: domain.EntityVessel, ID: id}
		}
		out = v
		return nil
	})
	return out, err
}

// List returns the tenant's vessels ordered by name.
func (r *Registry) List(ctx context.Context, tenantID string) ([]domain.Vessel, error) {
	var out []domain.Vessel
	err := r.store.View(ctx, func(view domain.TransactionView) error {
		out = view.ListVessels(tenantID)
		return nil
	})
	return out, err
}

// SetStatus is the maintenance workflow entry point. OCCUPIED is never set
// directly and an occupied vessel keeps its status until the ledger
// releases it.
func (r *Registry) SetStatus(ctx context.Context, tenantID, id string, status domain.VesselStatus) (domain.Vessel, error) {
	if !status.Valid() {
		return domain.Vessel{}, domain.InvalidRequestError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	if status == domain.VesselOccupied {
		return domain.Vessel{}, domain.InvalidRequestError{Field: "status", Reason: "occupancy is set by allocation"}
	}
	var updated domain.Vessel
	_, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		current, ok := tx.Snapshot().FindVessel(id)
		if !ok || current.TenantID != tenantID {
			return domain.NotFoundError{Entity: domain.EntityVessel, ID: id}
		}
		if current.Status == domain.VesselOccupied {
			return domain.ResourceConflictError{VesselID: id, Reason: domain.ConflictVesselStatus, Status: current.Status}
		}
		v, err := tx.UpdateVessel(id, func(v *domain.Vessel) error {
			v.Status = status
			return nil
		})
		updated = v
		return err
	})
	return updated, err
}
