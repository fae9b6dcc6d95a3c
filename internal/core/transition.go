package core

import (
	"cellarcore/internal/blend"
	"cellarcore/internal/codes"
	"cellarcore/internal/ledger"
	"cellarcore/pkg/domain"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StartFermentation moves a PLANNED batch into FERMENTING.
func (s *Service) StartFermentation(ctx context.Context, tenantID, batchID string, scenario domain.Scenario, m domain.Measurements) (domain.TransitionResult, error) {
	return s.Transition(ctx, domain.TransitionRequest{TenantID: tenantID, BatchID: batchID, TargetPhase: domain.PhaseFermenting, Scenario: scenario, Measurements: m})
}

// TransferToConditioning moves a fermenting batch into CONDITIONING.
func (s *Service) TransferToConditioning(ctx context.Context, tenantID, batchID string, scenario domain.Scenario, m domain.Measurements) (domain.TransitionResult, error) {
	return s.Transition(ctx, domain.TransitionRequest{TenantID: tenantID, BatchID: batchID, TargetPhase: domain.PhaseConditioning, Scenario: scenario, Measurements: m})
}

// TransferToPackaging moves a batch into PACKAGED.
func (s *Service) TransferToPackaging(ctx context.Context, tenantID, batchID string, scenario domain.Scenario, m domain.Measurements) (domain.TransitionResult, error) {
	return s.Transition(ctx, domain.TransitionRequest{TenantID: tenantID, BatchID: batchID, TargetPhase: domain.PhasePackaged, Scenario: scenario, Measurements: m})
}

// Transition moves a batch into req.TargetPhase following req.Scenario. All
// primary writes commit in one transaction or not at all. Lot code
// collisions recompute the whole transaction up to the configured attempt
// budget; vessel conflicts are returned without retry.
func (s *Service) Transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	var out domain.TransitionResult
	err := s.run(ctx, opTransition, func(ctx context.Context) (string, error) {
		res, err := s.transition(ctx, req)
		out = res
		return req.BatchID, err
	})
	return out, err
}

func (s *Service) transition(ctx context.Context, req domain.TransitionRequest) (domain.TransitionResult, error) {
	if req.Scenario == nil {
		return domain.TransitionResult{}, domain.InvalidRequestError{Field: "scenario", Reason: "required"}
	}
	if !req.TargetPhase.Valid() {
		return domain.TransitionResult{}, domain.InvalidRequestError{Field: "target_phase", Reason: fmt.Sprintf("unknown phase %q", req.TargetPhase)}
	}

	now := s.now()
	var (
		result domain.TransitionResult
		err    error
	)
	for attempt := 1; attempt <= s.maxCodeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.TransitionResult{}, err
		}
		result, err = s.transitionOnce(ctx, req, now)
		if !isLotCodeCollision(err) {
			break
		}
		s.logger.Debug("lot code collision, recomputing transition", "batch_id", req.BatchID, "attempt", attempt)
		if attempt == s.maxCodeAttempts {
			return domain.TransitionResult{}, domain.SequenceExhaustedError{Prefix: codes.LotPrefix(now.Year()), Attempts: attempt}
		}
	}
	if err != nil {
		return domain.TransitionResult{}, ledger.TranslateCommitError(err)
	}

	result.Secondary = s.dispatchEffects(ctx, s.transitionEffects(s.timelineEvent(req, result, now), s.vesselsAfter(result)))
	return result, nil
}

func isLotCodeCollision(err error) bool {
	var unique domain.UniqueViolationError
	return errors.As(err, &unique) && unique.Constraint == domain.ConstraintLotCode
}

func (s *Service) transitionOnce(ctx context.Context, req domain.TransitionRequest, now time.Time) (domain.TransitionResult, error) {
	var result domain.TransitionResult
	rules, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		result = domain.TransitionResult{}
		m := &mover{ctx: ctx, s: s, tx: tx, req: req, now: now, result: &result}
		return m.apply()
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}
	result.Warnings = append(result.Warnings, rules.Warnings()...)
	return result, nil
}

// mover carries one attempt of a transition inside its transaction.
type mover struct {
	ctx    context.Context
	s      *Service
	tx     domain.Transaction
	req    domain.TransitionRequest
	now    time.Time
	result *domain.TransitionResult
}

func (m *mover) apply() error {
	batch, err := findBatch(m.tx.Snapshot(), m.req.TenantID, m.req.BatchID)
	if err != nil {
		return err
	}
	if err := domain.CheckTransition(batch.ID, batch.Phase, m.req.TargetPhase); err != nil {
		return err
	}
	switch sc := m.req.Scenario.(type) {
	case domain.Simple:
		return m.simple(batch, sc.VesselID, sc.Window)
	case domain.Split:
		return m.split(batch, sc.Allocations, sc.Window, nil)
	case domain.Blend:
		return m.blend(batch, sc)
	default:
		return domain.InvalidRequestError{Field: "scenario", Reason: fmt.Sprintf("unsupported scenario %T", sc)}
	}
}

// window fills a zero start with now and a zero end with the default phase
// duration.
func (m *mover) window(w domain.Interval) domain.Interval {
	if w.Start.IsZero() {
		w.Start = m.now
	}
	if w.End.IsZero() {
		w.End = w.Start.Add(m.s.phaseDuration)
	}
	return w
}

func (m *mover) simple(batch domain.Batch, vesselID string, window domain.Interval) error {
	target := m.req.TargetPhase
	if !target.NeedsVessel() {
		if vesselID != "" {
			return domain.InvalidRequestError{Field: "vessel_id", Reason: fmt.Sprintf("%s does not hold a vessel", target)}
		}
		if err := m.releaseAll(batch.ID); err != nil {
			return err
		}
		updated, err := m.advance(batch.ID, nil, true)
		if err != nil {
			return err
		}
		m.result.Batch = updated
		return nil
	}
	if vesselID == "" {
		return domain.InvalidRequestError{Field: "vessel_id", Reason: fmt.Sprintf("required to enter %s", target)}
	}
	allocs, err := m.moveInto(batch, []domain.VesselVolume{{VesselID: vesselID, Volume: batch.Volume}}, m.window(window))
	if err != nil {
		return err
	}
	updated, err := m.advance(batch.ID, nil, true)
	if err != nil {
		return err
	}
	m.result.Batch = updated
	m.result.Allocations = append(m.result.Allocations, allocs...)
	return nil
}

// split moves batch into the first vessel and creates one sibling per
// remaining entry. Siblings join lotID when one is given, else the parent's
// lot. A caller passing lotID records the lot membership itself.
func (m *mover) split(batch domain.Batch, entries []domain.VesselVolume, window domain.Interval, lotID *string) error {
	target := m.req.TargetPhase
	if !target.NeedsVessel() {
		return domain.InvalidRequestError{Field: "allocations", Reason: fmt.Sprintf("%s does not hold a vessel", target)}
	}
	if err := checkSplitEntries(batch, entries); err != nil {
		return err
	}
	existing := childCount(m.tx.Snapshot(), m.req.TenantID, batch.ID)
	w := m.window(window)
	if err := m.claimPlanned(batch.ID, entries); err != nil {
		return err
	}
	view := m.tx.Snapshot()
	multi, err := ledger.CheckMultiple(view, m.req.TenantID, entries, w, currentAllocationID(view, batch.ID))
	if err != nil {
		return err
	}
	if !multi.AllAvailable {
		return multi.FirstConflict()
	}
	if err := m.completeActive(batch.ID); err != nil {
		return err
	}

	joinParent := lotID == nil
	if joinParent {
		lotID = domain.CloneString(batch.LotID)
	}
	parentVolume := entries[0].Volume
	first, err := m.reserve(batch.ID, entries[0].VesselID, w)
	if err != nil {
		return err
	}
	updated, err := m.advance(batch.ID, func(b *domain.Batch) {
		b.Volume = parentVolume
		b.LotID = domain.CloneString(lotID)
	}, true)
	if err != nil {
		return err
	}
	m.result.Batch = updated
	m.result.Allocations = append(m.result.Allocations, first)

	var siblingIDs []string
	for i, entry := range entries[1:] {
		sibling, err := m.tx.CreateBatch(m.sibling(updated, codes.SiblingCode(batch.Code, existing+i+1), entry.Volume, lotID))
		if err != nil {
			return err
		}
		alloc, err := m.reserve(sibling.ID, entry.VesselID, w)
		if err != nil {
			return err
		}
		m.result.Siblings = append(m.result.Siblings, sibling)
		m.result.Allocations = append(m.result.Allocations, alloc)
		siblingIDs = append(siblingIDs, sibling.ID)
	}
	if joinParent && lotID != nil && len(siblingIDs) > 0 {
		lot, err := m.tx.UpdateLot(*lotID, func(l *domain.Lot) error {
			for _, id := range siblingIDs {
				if !l.Contains(id) {
					l.BatchIDs = append(l.BatchIDs, id)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.result.Lot = &lot
	}
	return nil
}

func checkSplitEntries(batch domain.Batch, entries []domain.VesselVolume) error {
	if len(entries) < 2 {
		return domain.InvalidRequestError{Field: "allocations", Reason: "split needs at least two vessels"}
	}
	seen := make(map[string]struct{}, len(entries))
	var total float64
	for i, entry := range entries {
		if strings.TrimSpace(entry.VesselID) == "" {
			return domain.InvalidRequestError{Field: fmt.Sprintf("allocations[%d].vessel_id", i), Reason: "required"}
		}
		if _, dup := seen[entry.VesselID]; dup {
			return domain.InvalidRequestError{Field: fmt.Sprintf("allocations[%d].vessel_id", i), Reason: fmt.Sprintf("vessel %s listed twice", entry.VesselID)}
		}
		seen[entry.VesselID] = struct{}{}
		if entry.Volume <= 0 {
			return domain.InvalidRequestError{Field: fmt.Sprintf("allocations[%d].volume", i), Reason: "must be positive"}
		}
		total += entry.Volume
	}
	if total > batch.Volume {
		return domain.InvalidRequestError{Field: "allocations", Reason: fmt.Sprintf("volumes sum to %g, batch holds %g", total, batch.Volume)}
	}
	return nil
}

func (m *mover) sibling(parent domain.Batch, code string, volume float64, lotID *string) domain.Batch {
	parentID := parent.ID
	return domain.Batch{
		Base:                  domain.Base{TenantID: parent.TenantID},
		Code:                  code,
		RecipeID:              parent.RecipeID,
		Volume:                volume,
		Phase:                 parent.Phase,
		OriginalGravity:       domain.CloneFloat(parent.OriginalGravity),
		FinalGravity:          domain.CloneFloat(parent.FinalGravity),
		Temperature:           domain.CloneFloat(parent.Temperature),
		ParentBatchID:         &parentID,
		LotID:                 domain.CloneString(lotID),
		PhaseCode:             codes.NextPhaseLotCode(parent.Phase, m.now),
		FermentationStartedAt: domain.CloneTime(parent.FermentationStartedAt),
		ConditioningStartedAt: domain.CloneTime(parent.ConditioningStartedAt),
	}
}

func (m *mover) blend(anchor domain.Batch, sc domain.Blend) error {
	target := m.req.TargetPhase
	if target == domain.PhaseCancelled {
		return domain.InvalidRequestError{Field: "target_phase", Reason: "cannot blend into CANCELLED"}
	}
	view := m.tx.Snapshot()

	sources, err := m.blendSources(view, anchor, sc.Sources)
	if err != nil {
		return err
	}
	var lot *domain.Lot
	if sc.TargetLotID != nil {
		existing, ok := view.FindLot(*sc.TargetLotID)
		if !ok || existing.TenantID != m.req.TenantID {
			return domain.NotFoundError{Entity: domain.EntityLot, ID: *sc.TargetLotID}
		}
		lot = &existing
	}
	members := append([]domain.Batch{anchor}, sources...)
	for _, b := range members {
		if b.LotID == nil || (lot != nil && *b.LotID == lot.ID) {
			continue
		}
		return domain.InvalidRequestError{Field: "target_lot_id", Reason: fmt.Sprintf("batch %s already belongs to lot %s", b.Code, *b.LotID)}
	}

	ids := make([]string, 0, len(members))
	for _, b := range members {
		ids = append(ids, b.ID)
	}
	checked := ids
	if lot != nil {
		for _, id := range lot.BatchIDs {
			if !containsString(checked, id) {
				checked = append(checked, id)
			}
		}
	}
	report, err := blend.ValidateBlend(view, m.req.TenantID, checked)
	if err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return err
	}
	m.result.Warnings = append(m.result.Warnings, report.WarningMessages()...)

	// Vessel work runs before a new lot code is issued so that a conflict
	// does not consume a code.
	lotID := uuid.NewString()
	if lot != nil {
		lotID = lot.ID
	}
	merged := anchor.Volume
	for _, src := range sources {
		merged += src.Volume
		if err := m.releaseAll(src.ID); err != nil {
			return err
		}
		updated, err := m.advance(src.ID, func(b *domain.Batch) {
			b.LotID = &lotID
		}, false)
		if err != nil {
			return err
		}
		m.result.Sources = append(m.result.Sources, updated)
	}
	anchor.Volume = merged

	switch len(sc.Allocations) {
	case 0:
		if err := m.stay(anchor, sc.Window); err != nil {
			return err
		}
		updated, err := m.advance(anchor.ID, func(b *domain.Batch) {
			b.Volume = merged
			b.LotID = &lotID
		}, true)
		if err != nil {
			return err
		}
		m.result.Batch = updated
	case 1:
		if err := m.simple(anchor, sc.Allocations[0].VesselID, sc.Window); err != nil {
			return err
		}
		updated, err := m.tx.UpdateBatch(anchor.ID, func(b *domain.Batch) error {
			b.Volume = merged
			b.LotID = &lotID
			return nil
		})
		if err != nil {
			return err
		}
		m.result.Batch = updated
	default:
		if err := m.split(anchor, sc.Allocations, sc.Window, &lotID); err != nil {
			return err
		}
		for _, sib := range m.result.Siblings {
			ids = append(ids, sib.ID)
		}
	}

	saved, err := m.joinLot(lot, lotID, ids)
	if err != nil {
		return err
	}
	m.result.Lot = &saved
	return nil
}

// stay keeps a blend anchor without new allocations in the vessel it
// occupies. An ACTIVE allocation held for an earlier phase is closed and
// reopened in the same vessel for the target phase.
func (m *mover) stay(anchor domain.Batch, window domain.Interval) error {
	target := m.req.TargetPhase
	if !target.NeedsVessel() {
		return m.releaseAll(anchor.ID)
	}
	active := ledger.ActiveFor(m.tx.Snapshot(), anchor.ID)
	if len(active) == 0 {
		return domain.InvalidRequestError{Field: "allocations", Reason: fmt.Sprintf("required to enter %s", target)}
	}
	if active[0].Phase == target {
		return nil
	}
	allocs, err := m.moveInto(anchor, []domain.VesselVolume{{VesselID: active[0].VesselID, Volume: anchor.Volume}}, m.window(window))
	if err != nil {
		return err
	}
	m.result.Allocations = append(m.result.Allocations, allocs...)
	return nil
}

// blendSources resolves and checks the batches merged into the anchor.
// Sources may already be in the target phase.
func (m *mover) blendSources(view domain.TransactionView, anchor domain.Batch, ids []string) ([]domain.Batch, error) {
	var out []domain.Batch
	seen := map[string]struct{}{anchor.ID: {}}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			if id == anchor.ID {
				return nil, domain.InvalidRequestError{Field: "blend_sources", Reason: "anchor batch cannot be its own source"}
			}
			continue
		}
		seen[id] = struct{}{}
		src, err := findBatch(view, m.req.TenantID, id)
		if err != nil {
			return nil, err
		}
		if src.Phase != m.req.TargetPhase {
			if err := domain.CheckTransition(src.ID, src.Phase, m.req.TargetPhase); err != nil {
				return nil, err
			}
		}
		out = append(out, src)
	}
	return out, nil
}

// joinLot appends ids to an existing lot or creates lotID with the next lot
// code.
func (m *mover) joinLot(lot *domain.Lot, lotID string, ids []string) (domain.Lot, error) {
	if lot != nil {
		return m.tx.UpdateLot(lot.ID, func(l *domain.Lot) error {
			for _, id := range ids {
				if !l.Contains(id) {
					l.BatchIDs = append(l.BatchIDs, id)
				}
			}
			return nil
		})
	}
	code, err := m.s.sequencer.NextLotCode(m.ctx, m.tx.Snapshot(), m.req.TenantID, m.now)
	if err != nil {
		return domain.Lot{}, err
	}
	return m.tx.CreateLot(domain.Lot{
		Base:     domain.Base{ID: lotID, TenantID: m.req.TenantID},
		Code:     code,
		BatchIDs: append([]string(nil), ids...),
	})
}

// moveInto checks availability for every entry, closes the batch's previous
// occupancy and reserves the new vessels. Only single-entry moves go through
// here; splits create siblings and call reserve directly.
func (m *mover) moveInto(batch domain.Batch, entries []domain.VesselVolume, w domain.Interval) ([]domain.Allocation, error) {
	if err := m.claimPlanned(batch.ID, entries); err != nil {
		return nil, err
	}
	view := m.tx.Snapshot()
	res, err := ledger.CheckAvailability(view, m.req.TenantID, entries[0].VesselID, w, currentAllocationID(view, batch.ID))
	if err != nil {
		return nil, err
	}
	if !res.Available {
		return nil, res.Err()
	}
	if err := m.completeActive(batch.ID); err != nil {
		return nil, err
	}
	alloc, err := m.reserve(batch.ID, entries[0].VesselID, w)
	if err != nil {
		return nil, err
	}
	return []domain.Allocation{alloc}, nil
}

func (m *mover) reserve(batchID, vesselID string, w domain.Interval) (domain.Allocation, error) {
	return ledger.Reserve(m.tx, ledger.ReserveInput{
		TenantID: m.req.TenantID,
		VesselID: vesselID,
		BatchID:  batchID,
		Phase:    m.req.TargetPhase,
		Window:   w,
		Status:   domain.AllocationActive,
		Now:      m.now,
	})
}

// claimPlanned cancels the batch's PLANNED reservations for the target phase
// on the vessels it is about to enter; the ACTIVE reservation supersedes them.
func (m *mover) claimPlanned(batchID string, entries []domain.VesselVolume) error {
	vessels := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		vessels[e.VesselID] = struct{}{}
	}
	for _, a := range m.tx.Snapshot().AllocationsForBatch(batchID) {
		if a.Status != domain.AllocationPlanned || a.Phase != m.req.TargetPhase {
			continue
		}
		if _, ok := vessels[a.VesselID]; !ok {
			continue
		}
		cancelled, err := ledger.Cancel(m.tx, a.ID, m.now)
		if err != nil {
			return err
		}
		m.result.Released = append(m.result.Released, cancelled)
	}
	return nil
}

// completeActive closes the batch's ACTIVE allocations.
func (m *mover) completeActive(batchID string) error {
	for _, a := range ledger.ActiveFor(m.tx.Snapshot(), batchID) {
		done, err := ledger.Complete(m.tx, a.ID, m.now)
		if err != nil {
			return err
		}
		m.result.Released = append(m.result.Released, done)
	}
	return nil
}

// releaseAll completes ACTIVE allocations and cancels PLANNED ones for a
// batch leaving the vessel pool.
func (m *mover) releaseAll(batchID string) error {
	if err := m.completeActive(batchID); err != nil {
		return err
	}
	if !m.req.TargetPhase.Terminal() {
		return nil
	}
	for _, a := range m.tx.Snapshot().AllocationsForBatch(batchID) {
		if a.Status != domain.AllocationPlanned {
			continue
		}
		cancelled, err := ledger.Cancel(m.tx, a.ID, m.now)
		if err != nil {
			return err
		}
		m.result.Released = append(m.result.Released, cancelled)
	}
	return nil
}

// advance sets the target phase on a batch. Phase entry is stamped only when
// the phase changes; measurements apply to the transitioning batch only.
func (m *mover) advance(batchID string, mutate func(*domain.Batch), measured bool) (domain.Batch, error) {
	target := m.req.TargetPhase
	return m.tx.UpdateBatch(batchID, func(b *domain.Batch) error {
		if b.Phase != target {
			b.Phase = target
			b.StampPhase(target, m.now)
			b.PhaseCode = codes.NextPhaseLotCode(target, m.now)
		}
		if measured {
			b.ApplyMeasurements(m.req.Measurements)
		}
		if mutate != nil {
			mutate(b)
		}
		return nil
	})
}

func currentAllocationID(view domain.TransactionView, batchID string) string {
	active := ledger.ActiveFor(view, batchID)
	if len(active) == 0 {
		return ""
	}
	return active[0].ID
}

func childCount(view domain.TransactionView, tenantID, parentID string) int {
	n := 0
	for _, b := range view.ListBatches(tenantID) {
		if b.ParentBatchID != nil && *b.ParentBatchID == parentID {
			n++
		}
	}
	return n
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Service) timelineEvent(req domain.TransitionRequest, res domain.TransitionResult, at time.Time) domain.TimelineEvent {
	eventType := domain.TimelinePhaseTransition
	payload := map[string]any{
		"scenario":     string(req.Scenario.Kind()),
		"target_phase": string(req.TargetPhase),
		"phase_code":   res.Batch.PhaseCode,
	}
	description := fmt.Sprintf("batch %s entered %s", res.Batch.Code, req.TargetPhase)
	switch req.Scenario.Kind() {
	case domain.ScenarioSplit:
		eventType = domain.TimelineSplit
		siblings := make([]string, 0, len(res.Siblings))
		for _, b := range res.Siblings {
			siblings = append(siblings, b.Code)
		}
		payload["siblings"] = siblings
		description = fmt.Sprintf("batch %s split into %d vessels for %s", res.Batch.Code, len(res.Allocations), req.TargetPhase)
	case domain.ScenarioBlend:
		eventType = domain.TimelineBlend
		sources := make([]string, 0, len(res.Sources))
		for _, b := range res.Sources {
			sources = append(sources, b.Code)
		}
		payload["sources"] = sources
		if res.Lot != nil {
			payload["lot_code"] = res.Lot.Code
			description = fmt.Sprintf("batch %s blended into lot %s for %s", res.Batch.Code, res.Lot.Code, req.TargetPhase)
		}
	}
	allocIDs := make([]string, 0, len(res.Allocations))
	for _, a := range res.Allocations {
		allocIDs = append(allocIDs, a.ID)
	}
	payload["allocations"] = allocIDs
	if len(res.Warnings) > 0 {
		payload["warnings"] = res.Warnings
	}
	vessels := res.VesselIDs()
	sort.Strings(vessels)
	return domain.TimelineEvent{
		ID:          uuid.NewString(),
		TenantID:    req.TenantID,
		Type:        eventType,
		Description: description,
		BatchID:     res.Batch.ID,
		VesselIDs:   vessels,
		Payload:     payload,
		OccurredAt:  at,
	}
}

// vesselsAfter reads the committed state of every vessel the transition touched.
func (s *Service) vesselsAfter(res domain.TransitionResult) []domain.Vessel {
	var out []domain.Vessel
	for _, id := range res.VesselIDs() {
		if v, ok := s.store.GetVessel(id); ok {
			out = append(out, v)
		}
	}
	return out
}
