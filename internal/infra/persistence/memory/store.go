// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments, and as the transactional
// engine behind the snapshotting SQL stores.
package memory

import (
	"cellarcore/pkg/domain"
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Vessel aliases domain.Vessel for in-memory persistence operations.
	Vessel = domain.Vessel
	// Batch aliases domain.Batch.
	Batch = domain.Batch
	// Allocation aliases domain.Allocation.
	Allocation = domain.Allocation
	// Lot aliases domain.Lot.
	Lot = domain.Lot
	// Recipe aliases domain.Recipe.
	Recipe = domain.Recipe
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	vessels     map[string]Vessel
	batches     map[string]Batch
	allocations map[string]Allocation
	lots        map[string]Lot
	recipes     map[string]Recipe
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Vessels     map[string]Vessel     `json:"vessels"`
	Batches     map[string]Batch      `json:"batches"`
	Allocations map[string]Allocation `json:"allocations"`
	Lots        map[string]Lot        `json:"lots"`
	Recipes     map[string]Recipe     `json:"recipes"`
}

func newMemoryState() memoryState {
	return memoryState{
		vessels:     make(map[string]Vessel),
		batches:     make(map[string]Batch),
		allocations: make(map[string]Allocation),
		lots:        make(map[string]Lot),
		recipes:     make(map[string]Recipe),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.vessels {
		cloned.vessels[k] = domain.CloneVessel(v)
	}
	for k, v := range s.batches {
		cloned.batches[k] = domain.CloneBatch(v)
	}
	for k, v := range s.allocations {
		cloned.allocations[k] = domain.CloneAllocation(v)
	}
	for k, v := range s.lots {
		cloned.lots[k] = domain.CloneLot(v)
	}
	for k, v := range s.recipes {
		cloned.recipes[k] = v
	}
	return cloned
}

// shallow copies the maps only. Committed values are replaced wholesale and
// never mutated in place, so sharing them between generations is safe.
func (s memoryState) shallow() memoryState {
	return memoryState{
		vessels:     maps.Clone(s.vessels),
		batches:     maps.Clone(s.batches),
		allocations: maps.Clone(s.allocations),
		lots:        maps.Clone(s.lots),
		recipes:     maps.Clone(s.recipes),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Vessels:     cloned.vessels,
		Batches:     cloned.batches,
		Allocations: cloned.allocations,
		Lots:        cloned.lots,
		Recipes:     cloned.recipes,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{
		vessels:     s.Vessels,
		batches:     s.Batches,
		allocations: s.Allocations,
		lots:        s.Lots,
		recipes:     s.Recipes,
	}.clone()
}

// migrateSnapshot normalises snapshots written by older builds.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Vessels == nil {
		snapshot.Vessels = map[string]Vessel{}
	}
	if snapshot.Batches == nil {
		snapshot.Batches = map[string]Batch{}
	}
	if snapshot.Allocations == nil {
		snapshot.Allocations = map[string]Allocation{}
	}
	if snapshot.Lots == nil {
		snapshot.Lots = map[string]Lot{}
	}
	if snapshot.Recipes == nil {
		snapshot.Recipes = map[string]Recipe{}
	}
	for id, vessel := range snapshot.Vessels {
		if !vessel.Status.Valid() {
			vessel.Status = domain.VesselOutOfService
		}
		if vessel.Status != domain.VesselOccupied {
			vessel.CurrentBatchID = nil
			vessel.CurrentAllocationID = nil
		}
		snapshot.Vessels[id] = vessel
	}
	for id, lot := range snapshot.Lots {
		if lot.BatchIDs == nil {
			lot.BatchIDs = []string{}
		}
		snapshot.Lots[id] = lot
	}
	return snapshot
}

// Store provides an in-memory transactional store for the core domain.
//
// Transactions run against a private clone of the committed state and never
// hold the store lock while the caller's function executes. Commit takes the
// lock briefly to validate record versions (first committer wins) and the
// storage constraints: unique batch and lot codes per tenant and the
// per-vessel exclusion over holding allocation intervals.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	// beforeCommit is a test hook invoked after fn returns and before commit validation.
	beforeCommit func()
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the record timestamp source.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

// SetBeforeCommitHook installs a function run between a transaction body and
// its commit. Tests use it to interleave concurrent writers deterministically.
func (s *Store) SetBeforeCommitHook(fn func()) {
	s.mu.Lock()
	s.beforeCommit = fn
	s.mu.Unlock()
}

type recordKey struct {
	entity domain.EntityType
	id     string
}

// transaction represents a mutation set applied to a private state clone.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
	// reads holds the committed version each written record was based on;
	// zero marks a record created by this transaction.
	reads map[recordKey]int64
	order []recordKey
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.RLock()
	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
		reads: make(map[recordKey]int64),
	}
	engine := s.engine
	hook := s.beforeCommit
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if engine != nil {
		res, err := engine.Evaluate(ctx, newTransactionView(&tx.state), tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if len(tx.order) == 0 {
		return result, nil
	}
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	merged, err := s.merge(tx)
	if err != nil {
		return result, err
	}
	if err := checkConstraints(merged, tx); err != nil {
		return result, err
	}
	s.state = merged
	return result, nil
}

// merge validates versions against the committed state and overlays the
// transaction's writes onto a new generation of it.
func (s *Store) merge(tx *transaction) (memoryState, error) {
	merged := s.state.shallow()
	for _, key := range tx.order {
		readVersion := tx.reads[key]
		committed, exists := committedVersion(s.state, key)
		if readVersion == 0 && exists {
			return memoryState{}, domain.WriteConflictError{Entity: key.entity, ID: key.id}
		}
		if readVersion != 0 && (!exists || committed != readVersion) {
			return memoryState{}, domain.WriteConflictError{Entity: key.entity, ID: key.id}
		}
		switch key.entity {
		case domain.EntityVessel:
			merged.vessels[key.id] = domain.CloneVessel(tx.state.vessels[key.id])
		case domain.EntityBatch:
			merged.batches[key.id] = domain.CloneBatch(tx.state.batches[key.id])
		case domain.EntityAllocation:
			merged.allocations[key.id] = domain.CloneAllocation(tx.state.allocations[key.id])
		case domain.EntityLot:
			merged.lots[key.id] = domain.CloneLot(tx.state.lots[key.id])
		case domain.EntityRecipe:
			merged.recipes[key.id] = tx.state.recipes[key.id]
		}
	}
	return merged, nil
}

func committedVersion(state memoryState, key recordKey) (int64, bool) {
	switch key.entity {
	case domain.EntityVessel:
		v, ok := state.vessels[key.id]
		return v.Version, ok
	case domain.EntityBatch:
		b, ok := state.batches[key.id]
		return b.Version, ok
	case domain.EntityAllocation:
		a, ok := state.allocations[key.id]
		return a.Version, ok
	case domain.EntityLot:
		l, ok := state.lots[key.id]
		return l.Version, ok
	case domain.EntityRecipe:
		r, ok := state.recipes[key.id]
		return r.Version, ok
	}
	return 0, false
}

// checkConstraints enforces the storage-level constraints for every record
// the transaction wrote.
func checkConstraints(merged memoryState, tx *transaction) error {
	for _, key := range tx.order {
		switch key.entity {
		case domain.EntityBatch:
			batch := merged.batches[key.id]
			for id, other := range merged.batches {
				if id != batch.ID && other.TenantID == batch.TenantID && other.Code == batch.Code {
					return domain.UniqueViolationError{Constraint: domain.ConstraintBatchCode, Value: batch.Code}
				}
			}
		case domain.EntityLot:
			lot := merged.lots[key.id]
			for id, other := range merged.lots {
				if id != lot.ID && other.TenantID == lot.TenantID && other.Code == lot.Code {
					return domain.UniqueViolationError{Constraint: domain.ConstraintLotCode, Value: lot.Code}
				}
			}
		case domain.EntityAllocation:
			incoming := merged.allocations[key.id]
			if !incoming.Status.Holding() {
				continue
			}
			for id, existing := range merged.allocations {
				if id == incoming.ID || existing.VesselID != incoming.VesselID || !existing.Status.Holding() {
					continue
				}
				if existing.Window().Overlaps(incoming.Window()) {
					return domain.ExclusionViolationError{
						VesselID: incoming.VesselID,
						Existing: domain.CloneAllocation(existing),
						Incoming: domain.CloneAllocation(incoming),
					}
				}
			}
		}
	}
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.shallow()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// track remembers the version a written record was read at and returns the
// version the record carries after this transaction.
func (tx *transaction) track(entity domain.EntityType, id string, current int64, created bool) int64 {
	key := recordKey{entity: entity, id: id}
	base, seen := tx.reads[key]
	if !seen {
		if created {
			base = 0
		} else {
			base = current
		}
		tx.reads[key] = base
		tx.order = append(tx.order, key)
	}
	return base + 1
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateVessel stores a new vessel within the transaction.
func (tx *transaction) CreateVessel(v Vessel) (Vessel, error) {
	if v.ID == "" {
		v.ID = tx.store.newID()
	}
	if _, exists := tx.state.vessels[v.ID]; exists {
		return Vessel{}, fmt.Errorf("vessel %q already exists", v.ID)
	}
	if v.Status == "" {
		v.Status = domain.VesselAvailable
	}
	v.CreatedAt = tx.now
	v.UpdatedAt = tx.now
	v.Version = tx.track(domain.EntityVessel, v.ID, 0, true)
	tx.state.vessels[v.ID] = domain.CloneVessel(v)
	tx.recordChange(Change{Entity: domain.EntityVessel, Action: domain.ActionCreate, After: domain.CloneVessel(v)})
	return domain.CloneVessel(v), nil
}

// UpdateVessel mutates a vessel using the provided mutator function.
func (tx *transaction) UpdateVessel(id string, mutator func(*Vessel) error) (Vessel, error) {
	current, ok := tx.state.vessels[id]
	if !ok {
		return Vessel{}, domain.NotFoundError{Entity: domain.EntityVessel, ID: id}
	}
	before := domain.CloneVessel(current)
	if err := mutator(&current); err != nil {
		return Vessel{}, err
	}
	current.ID = id
	current.TenantID = before.TenantID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = tx.track(domain.EntityVessel, id, before.Version, false)
	tx.state.vessels[id] = domain.CloneVessel(current)
	tx.recordChange(Change{Entity: domain.EntityVessel, Action: domain.ActionUpdate, Before: before, After: domain.CloneVessel(current)})
	return domain.CloneVessel(current), nil
}

// CreateBatch stores a new batch within the transaction.
func (tx *transaction) CreateBatch(b Batch) (Batch, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	if b.Phase == "" {
		b.Phase = domain.PhasePlanned
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	b.Version = tx.track(domain.EntityBatch, b.ID, 0, true)
	tx.state.batches[b.ID] = domain.CloneBatch(b)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: domain.CloneBatch(b)})
	return domain.CloneBatch(b), nil
}

// UpdateBatch mutates a batch using the provided mutator function.
func (tx *transaction) UpdateBatch(id string, mutator func(*Batch) error) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	before := domain.CloneBatch(current)
	if err := mutator(&current); err != nil {
		return Batch{}, err
	}
	current.ID = id
	current.TenantID = before.TenantID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = tx.track(domain.EntityBatch, id, before.Version, false)
	tx.state.batches[id] = domain.CloneBatch(current)
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, Before: before, After: domain.CloneBatch(current)})
	return domain.CloneBatch(current), nil
}

// CreateAllocation stores a new allocation within the transaction.
func (tx *transaction) CreateAllocation(a Allocation) (Allocation, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.allocations[a.ID]; exists {
		return Allocation{}, fmt.Errorf("allocation %q already exists", a.ID)
	}
	if _, ok := tx.state.vessels[a.VesselID]; !ok {
		return Allocation{}, domain.NotFoundError{Entity: domain.EntityVessel, ID: a.VesselID}
	}
	if _, ok := tx.state.batches[a.BatchID]; !ok {
		return Allocation{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: a.BatchID}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	a.Version = tx.track(domain.EntityAllocation, a.ID, 0, true)
	tx.state.allocations[a.ID] = domain.CloneAllocation(a)
	tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionCreate, After: domain.CloneAllocation(a)})
	return domain.CloneAllocation(a), nil
}

// UpdateAllocation mutates an allocation using the provided mutator function.
func (tx *transaction) UpdateAllocation(id string, mutator func(*Allocation) error) (Allocation, error) {
	current, ok := tx.state.allocations[id]
	if !ok {
		return Allocation{}, domain.NotFoundError{Entity: domain.EntityAllocation, ID: id}
	}
	before := domain.CloneAllocation(current)
	if err := mutator(&current); err != nil {
		return Allocation{}, err
	}
	current.ID = id
	current.TenantID = before.TenantID
	current.VesselID = before.VesselID
	current.BatchID = before.BatchID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = tx.track(domain.EntityAllocation, id, before.Version, false)
	tx.state.allocations[id] = domain.CloneAllocation(current)
	tx.recordChange(Change{Entity: domain.EntityAllocation, Action: domain.ActionUpdate, Before: before, After: domain.CloneAllocation(current)})
	return domain.CloneAllocation(current), nil
}

// CreateLot stores a new lot within the transaction.
func (tx *transaction) CreateLot(l Lot) (Lot, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.lots[l.ID]; exists {
		return Lot{}, fmt.Errorf("lot %q already exists", l.ID)
	}
	if l.BatchIDs == nil {
		l.BatchIDs = []string{}
	}
	l.CreatedAt = tx.now
	l.UpdatedAt = tx.now
	l.Version = tx.track(domain.EntityLot, l.ID, 0, true)
	tx.state.lots[l.ID] = domain.CloneLot(l)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionCreate, After: domain.CloneLot(l)})
	return domain.CloneLot(l), nil
}

// UpdateLot mutates a lot using the provided mutator function. The lot code
// is immutable once created.
func (tx *transaction) UpdateLot(id string, mutator func(*Lot) error) (Lot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return Lot{}, domain.NotFoundError{Entity: domain.EntityLot, ID: id}
	}
	before := domain.CloneLot(current)
	if err := mutator(&current); err != nil {
		return Lot{}, err
	}
	current.ID = id
	current.TenantID = before.TenantID
	current.Code = before.Code
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = tx.track(domain.EntityLot, id, before.Version, false)
	tx.state.lots[id] = domain.CloneLot(current)
	tx.recordChange(Change{Entity: domain.EntityLot, Action: domain.ActionUpdate, Before: before, After: domain.CloneLot(current)})
	return domain.CloneLot(current), nil
}

// CreateRecipe stores a recipe record mirrored from the recipe store.
func (tx *transaction) CreateRecipe(r Recipe) (Recipe, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.recipes[r.ID]; exists {
		return Recipe{}, fmt.Errorf("recipe %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	r.Version = tx.track(domain.EntityRecipe, r.ID, 0, true)
	tx.state.recipes[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionCreate, After: r})
	return r, nil
}

// UpdateRecipe mutates a recipe using the provided mutator function.
func (tx *transaction) UpdateRecipe(id string, mutator func(*Recipe) error) (Recipe, error) {
	current, ok := tx.state.recipes[id]
	if !ok {
		return Recipe{}, domain.NotFoundError{Entity: domain.EntityRecipe, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Recipe{}, err
	}
	current.ID = id
	current.TenantID = before.TenantID
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	current.Version = tx.track(domain.EntityRecipe, id, before.Version, false)
	tx.state.recipes[id] = current
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func inTenant(tenantID, recordTenant string) bool {
	return tenantID == "" || tenantID == recordTenant
}

// FindVessel retrieves a vessel by ID from the snapshot.
func (v transactionView) FindVessel(id string) (Vessel, bool) {
	vessel, ok := v.state.vessels[id]
	if !ok {
		return Vessel{}, false
	}
	return domain.CloneVessel(vessel), true
}

// ListVessels returns the tenant's vessels ordered by name. An empty tenant lists all.
func (v transactionView) ListVessels(tenantID string) []Vessel {
	return listVessels(v.state, tenantID)
}

func listVessels(state *memoryState, tenantID string) []Vessel {
	out := make([]Vessel, 0, len(state.vessels))
	for _, vessel := range state.vessels {
		if inTenant(tenantID, vessel.TenantID) {
			out = append(out, domain.CloneVessel(vessel))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindBatch retrieves a batch by ID from the snapshot.
func (v transactionView) FindBatch(id string) (Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return domain.CloneBatch(b), true
}

// ListBatches returns the tenant's batches ordered by code.
func (v transactionView) ListBatches(tenantID string) []Batch {
	return listBatches(v.state, tenantID)
}

func listBatches(state *memoryState, tenantID string) []Batch {
	out := make([]Batch, 0, len(state.batches))
	for _, b := range state.batches {
		if inTenant(tenantID, b.TenantID) {
			out = append(out, domain.CloneBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindAllocation retrieves an allocation by ID from the snapshot.
func (v transactionView) FindAllocation(id string) (Allocation, bool) {
	a, ok := v.state.allocations[id]
	if !ok {
		return Allocation{}, false
	}
	return domain.CloneAllocation(a), true
}

// ListAllocations returns the tenant's allocations ordered by planned start.
func (v transactionView) ListAllocations(tenantID string) []Allocation {
	return filterAllocations(v.state, func(a Allocation) bool { return inTenant(tenantID, a.TenantID) })
}

// AllocationsForVessel returns every allocation recorded against the vessel.
func (v transactionView) AllocationsForVessel(vesselID string) []Allocation {
	return filterAllocations(v.state, func(a Allocation) bool { return a.VesselID == vesselID })
}

// AllocationsForBatch returns every allocation held by the batch.
func (v transactionView) AllocationsForBatch(batchID string) []Allocation {
	return filterAllocations(v.state, func(a Allocation) bool { return a.BatchID == batchID })
}

func filterAllocations(state *memoryState, keep func(Allocation) bool) []Allocation {
	out := make([]Allocation, 0)
	for _, a := range state.allocations {
		if keep(a) {
			out = append(out, domain.CloneAllocation(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlannedStart.Equal(out[j].PlannedStart) {
			return out[i].PlannedStart.Before(out[j].PlannedStart)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindLot retrieves a lot by ID from the snapshot.
func (v transactionView) FindLot(id string) (Lot, bool) {
	l, ok := v.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return domain.CloneLot(l), true
}

// ListLots returns the tenant's lots ordered by code.
func (v transactionView) ListLots(tenantID string) []Lot {
	return listLots(v.state, tenantID)
}

func listLots(state *memoryState, tenantID string) []Lot {
	out := make([]Lot, 0, len(state.lots))
	for _, l := range state.lots {
		if inTenant(tenantID, l.TenantID) {
			out = append(out, domain.CloneLot(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// FindRecipe retrieves a recipe by ID from the snapshot.
func (v transactionView) FindRecipe(id string) (Recipe, bool) {
	r, ok := v.state.recipes[id]
	return r, ok
}

// GetVessel retrieves a committed vessel by ID.
func (s *Store) GetVessel(id string) (Vessel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.vessels[id]
	if !ok {
		return Vessel{}, false
	}
	return domain.CloneVessel(v), true
}

// ListVessels returns the tenant's committed vessels.
func (s *Store) ListVessels(tenantID string) []Vessel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listVessels(&s.state, tenantID)
}

// GetBatch retrieves a committed batch by ID.
func (s *Store) GetBatch(id string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return domain.CloneBatch(b), true
}

// ListBatches returns the tenant's committed batches.
func (s *Store) ListBatches(tenantID string) []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBatches(&s.state, tenantID)
}

// GetLot retrieves a committed lot by ID.
func (s *Store) GetLot(id string) (Lot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lots[id]
	if !ok {
		return Lot{}, false
	}
	return domain.CloneLot(l), true
}

// ListLots returns the tenant's committed lots.
func (s *Store) ListLots(tenantID string) []Lot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLots(&s.state, tenantID)
}

// ListAllocations returns the tenant's committed allocations.
func (s *Store) ListAllocations(tenantID string) []Allocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterAllocations(&s.state, func(a Allocation) bool { return inTenant(tenantID, a.TenantID) })
}
