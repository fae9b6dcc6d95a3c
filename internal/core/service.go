// Package core hosts the batch lifecycle engine and the service facade that
// wraps every operation with logging, metrics, tracing and auditing.
package core

import (
	"cellarcore/internal/blend"
	"cellarcore/internal/codes"
	"cellarcore/internal/infra/persistence/memory"
	"cellarcore/internal/ledger"
	"cellarcore/internal/registry"
	"cellarcore/pkg/domain"
	"context"
	"strings"
	"time"
)

// DefaultMaxCodeAttempts bounds how often a transition is recomputed after a
// lot code collision.
const DefaultMaxCodeAttempts = 5

// DefaultPhaseDuration is the planned length of an allocation when the
// request gives no end time.
const DefaultPhaseDuration = 14 * 24 * time.Hour

// Service coordinates the registry, ledger, identifier generator, blend
// validator and lifecycle engine over one persistent store.
type Service struct {
	store           domain.PersistentStore
	registry        *registry.Registry
	sequencer       codes.Sequencer
	timeline        TimelineSink
	mirror          EquipmentMirror
	logger          Logger
	clock           Clock
	metrics         MetricsRecorder
	tracer          Tracer
	audit           AuditRecorder
	maxCodeAttempts int
	phaseDuration   time.Duration
	effectTimeout   time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for phase timestamps.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithTimeline sets the best-effort timeline sink.
func WithTimeline(sink TimelineSink) Option {
	return func(s *Service) { s.timeline = sink }
}

// WithEquipmentMirror sets the best-effort equipment status mirror.
func WithEquipmentMirror(mirror EquipmentMirror) Option {
	return func(s *Service) { s.mirror = mirror }
}

// WithSequencer replaces the scanning lot code sequencer.
func WithSequencer(seq codes.Sequencer) Option {
	return func(s *Service) {
		if seq != nil {
			s.sequencer = seq
		}
	}
}

// WithMaxCodeAttempts bounds lot code collision retries.
func WithMaxCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxCodeAttempts = n
		}
	}
}

// WithPhaseDuration sets the default planned allocation length.
func WithPhaseDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.phaseDuration = d
		}
	}
}

// WithEffectTimeout bounds the secondary writes run after each commit.
func WithEffectTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.effectTimeout = d
		}
	}
}

// NewService constructs a service over store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:           store,
		registry:        registry.New(store),
		sequencer:       codes.ScanSequencer{},
		logger:          noopLogger{},
		clock:           ClockFunc(func() time.Time { return time.Now().UTC() }),
		metrics:         noopMetricsRecorder{},
		tracer:          noopTracer{},
		audit:           noopAuditRecorder{},
		maxCodeAttempts: DefaultMaxCodeAttempts,
		phaseDuration:   DefaultPhaseDuration,
		effectTimeout:   defaultEffectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService builds a service over a fresh memory store.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store exposes the backing store.
func (s *Service) Store() domain.PersistentStore { return s.store }

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

// run wraps an operation with tracing, metrics, logging and auditing. fn
// returns the affected entity identifier for the audit log.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	entityID, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err, "duration", duration)
		s.recordAudit(ctx, op, entityID, duration, err)
		return err
	}
	s.logger.Debug("operation succeeded", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAudit(ctx, op, entityID, duration, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := operationCatalog[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// OnboardVessel registers a new AVAILABLE vessel.
func (s *Service) OnboardVessel(ctx context.Context, in registry.OnboardInput) (domain.Vessel, error) {
	var out domain.Vessel
	err := s.run(ctx, opOnboardVessel, func(ctx context.Context) (string, error) {
		v, err := s.registry.Onboard(ctx, in)
		out = v
		return v.ID, err
	})
	return out, err
}

// SetVesselStatus changes a vessel's maintenance status.
func (s *Service) SetVesselStatus(ctx context.Context, tenantID, vesselID string, status domain.VesselStatus) (domain.Vessel, error) {
	var out domain.Vessel
	err := s.run(ctx, opSetVesselStatus, func(ctx context.Context) (string, error) {
		v, err := s.registry.SetStatus(ctx, tenantID, vesselID, status)
		out = v
		return vesselID, err
	})
	return out, err
}

// GetVessel returns a tenant vessel.
func (s *Service) GetVessel(ctx context.Context, tenantID, vesselID string) (domain.Vessel, error) {
	return s.registry.Get(ctx, tenantID, vesselID)
}

// ListVessels returns the tenant's vessels.
func (s *Service) ListVessels(ctx context.Context, tenantID string) ([]domain.Vessel, error) {
	return s.registry.List(ctx, tenantID)
}

// CreateRecipe mirrors a recipe record from the recipe store.
func (s *Service) CreateRecipe(ctx context.Context, recipe domain.Recipe) (domain.Recipe, error) {
	var out domain.Recipe
	err := s.run(ctx, opCreateRecipe, func(ctx context.Context) (string, error) {
		if strings.TrimSpace(recipe.Strain) == "" {
			return "", domain.InvalidRequestError{Field: "strain", Reason: "required"}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			r, err := tx.CreateRecipe(recipe)
			out = r
			return err
		})
		return out.ID, err
	})
	return out, err
}

// PlanBatchInput describes a batch entering production planning.
type PlanBatchInput struct {
	TenantID string
	Code     string
	RecipeID string
	Volume   float64
}

// PlanBatch creates a PLANNED batch.
func (s *Service) PlanBatch(ctx context.Context, in PlanBatchInput) (domain.Batch, error) {
	var out domain.Batch
	err := s.run(ctx, opPlanBatch, func(ctx context.Context) (string, error) {
		if strings.TrimSpace(in.Code) == "" {
			return "", domain.InvalidRequestError{Field: "code", Reason: "required"}
		}
		if in.Volume <= 0 {
			return "", domain.InvalidRequestError{Field: "volume", Reason: "must be positive"}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if r, ok := tx.Snapshot().FindRecipe(in.RecipeID); !ok || r.TenantID != in.TenantID {
				return domain.NotFoundError{Entity: domain.EntityRecipe, ID: in.RecipeID}
			}
			b, err := tx.CreateBatch(domain.Batch{
				Base:     domain.Base{TenantID: in.TenantID},
				Code:     strings.TrimSpace(in.Code),
				RecipeID: in.RecipeID,
				Volume:   in.Volume,
				Phase:    domain.PhasePlanned,
			})
			out = b
			return err
		})
		return out.ID, err
	})
	return out, err
}

// GetBatch returns a tenant batch.
func (s *Service) GetBatch(ctx context.Context, tenantID, batchID string) (domain.Batch, error) {
	var out domain.Batch
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		b, err := findBatch(view, tenantID, batchID)
		out = b
		return err
	})
	return out, err
}

// ListBatches returns the tenant's batches.
func (s *Service) ListBatches(ctx context.Context, tenantID string) ([]domain.Batch, error) {
	return s.store.ListBatches(tenantID), nil
}

// ListLots returns the tenant's lots.
func (s *Service) ListLots(ctx context.Context, tenantID string) ([]domain.Lot, error) {
	return s.store.ListLots(tenantID), nil
}

// CheckAvailability runs the ledger check against committed state.
func (s *Service) CheckAvailability(ctx context.Context, tenantID, vesselID string, window domain.Interval) (ledger.AvailabilityResult, error) {
	var out ledger.AvailabilityResult
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		res, err := ledger.CheckAvailability(view, tenantID, vesselID, window, "")
		out = res
		return err
	})
	return out, err
}

// Schedule lists a vessel's allocations.
func (s *Service) Schedule(ctx context.Context, tenantID, vesselID string) ([]domain.Allocation, error) {
	var out []domain.Allocation
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		allocs, err := ledger.Schedule(view, tenantID, vesselID)
		out = allocs
		return err
	})
	return out, err
}

// ValidateBlend reports blend compatibility without writing.
func (s *Service) ValidateBlend(ctx context.Context, tenantID string, batchIDs []string) (blend.Report, error) {
	var out blend.Report
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		r, err := blend.ValidateBlend(view, tenantID, batchIDs)
		out = r
		return err
	})
	return out, err
}

// PlanAllocation reserves a vessel for a future phase without occupying it.
func (s *Service) PlanAllocation(ctx context.Context, tenantID, batchID, vesselID string, phase domain.Phase, window domain.Interval) (domain.Allocation, error) {
	var out domain.Allocation
	err := s.run(ctx, opPlanAllocation, func(ctx context.Context) (string, error) {
		if !phase.NeedsVessel() {
			return "", domain.InvalidRequestError{Field: "phase", Reason: string(phase) + " does not hold a vessel"}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			batch, err := findBatch(tx.Snapshot(), tenantID, batchID)
			if err != nil {
				return err
			}
			if batch.Phase.Terminal() {
				return domain.InvalidPhaseTransitionError{BatchID: batchID, From: batch.Phase, To: phase}
			}
			a, err := ledger.Plan(tx, ledger.ReserveInput{
				TenantID: tenantID, VesselID: vesselID, BatchID: batchID, Phase: phase, Window: window, Now: s.now(),
			})
			out = a
			return err
		})
		return out.ID, ledger.TranslateCommitError(err)
	})
	return out, err
}

// ActivateAllocation promotes a PLANNED allocation and occupies its vessel.
func (s *Service) ActivateAllocation(ctx context.Context, tenantID, allocationID string) (domain.Allocation, error) {
	return s.closeOrActivate(ctx, opActivate, tenantID, allocationID, ledger.Activate)
}

// CancelAllocation supersedes a PLANNED or ACTIVE allocation.
func (s *Service) CancelAllocation(ctx context.Context, tenantID, allocationID string) (domain.Allocation, error) {
	return s.closeOrActivate(ctx, opCancelAllocation, tenantID, allocationID, ledger.Cancel)
}

func (s *Service) closeOrActivate(ctx context.Context, op, tenantID, allocationID string, fn func(domain.Transaction, string, time.Time) (domain.Allocation, error)) (domain.Allocation, error) {
	var out domain.Allocation
	err := s.run(ctx, op, func(ctx context.Context) (string, error) {
		_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			current, ok := tx.Snapshot().FindAllocation(allocationID)
			if !ok || current.TenantID != tenantID {
				return domain.NotFoundError{Entity: domain.EntityAllocation, ID: allocationID}
			}
			a, err := fn(tx, allocationID, s.now())
			out = a
			return err
		})
		return allocationID, ledger.TranslateCommitError(err)
	})
	return out, err
}

func findBatch(view domain.TransactionView, tenantID, batchID string) (domain.Batch, error) {
	b, ok := view.FindBatch(batchID)
	if !ok || b.TenantID != tenantID {
		return domain.Batch{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: batchID}
	}
	return b, nil
}
