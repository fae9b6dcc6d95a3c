package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Records are never deleted: vessels and
// batches are retired through status and phase changes.
type Transaction interface {
	Snapshot() TransactionView
	CreateVessel(Vessel) (Vessel, error)
	UpdateVessel(id string, mutator func(*Vessel) error) (Vessel, error)
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	CreateAllocation(Allocation) (Allocation, error)
	UpdateAllocation(id string, mutator func(*Allocation) error) (Allocation, error)
	CreateLot(Lot) (Lot, error)
	UpdateLot(id string, mutator func(*Lot) error) (Lot, error)
	CreateRecipe(Recipe) (Recipe, error)
	UpdateRecipe(id string, mutator func(*Recipe) error) (Recipe, error)
}

// TransactionView provides read-only access to snapshot data for rules and
// precondition checks.
type TransactionView interface {
	FindVessel(id string) (Vessel, bool)
	ListVessels(tenantID string) []Vessel
	FindBatch(id string) (Batch, bool)
	ListBatches(tenantID string) []Batch
	FindAllocation(id string) (Allocation, bool)
	ListAllocations(tenantID string) []Allocation
	AllocationsForVessel(vesselID string) []Allocation
	AllocationsForBatch(batchID string) []Allocation
	FindLot(id string) (Lot, bool)
	ListLots(tenantID string) []Lot
	FindRecipe(id string) (Recipe, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetVessel(id string) (Vessel, bool)
	ListVessels(tenantID string) []Vessel
	GetBatch(id string) (Batch, bool)
	ListBatches(tenantID string) []Batch
	GetLot(id string) (Lot, bool)
	ListLots(tenantID string) []Lot
	ListAllocations(tenantID string) []Allocation
}
