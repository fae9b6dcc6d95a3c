package domain

// ScenarioKind names the shape of a phase transition.
type ScenarioKind string

// Supported transition scenarios.
const (
	ScenarioSimple ScenarioKind = "simple"
	ScenarioSplit  ScenarioKind = "split"
	ScenarioBlend  ScenarioKind = "blend"
)

// Scenario is the tagged variant handed to the lifecycle engine. It is built
// once at the boundary and never re-derived from optional fields.
type Scenario interface {
	Kind() ScenarioKind
	isScenario()
}

// VesselVolume assigns part of a batch's volume to a vessel.
type VesselVolume struct {
	VesselID string  `json:"vessel_id"`
	Volume   float64 `json:"volume"`
}

// Simple moves one batch into one vessel. An empty VesselID is only accepted
// when the target phase does not need a vessel and releases the current one.
type Simple struct {
	VesselID string
	Window   Interval
}

// Split distributes one batch across two or more vessels. The first
// allocation stays with the original batch.
type Split struct {
	Allocations []VesselVolume
	Window      Interval
}

// Blend merges the transitioning batch with Sources into a lot. TargetLotID
// joins an existing lot; nil forms a new one. Allocations follow the simple
// rules for zero or one entries and split the anchor for more.
type Blend struct {
	Sources     []string
	TargetLotID *string
	Allocations []VesselVolume
	Window      Interval
}

func (Simple) Kind() ScenarioKind { return ScenarioSimple }
func (Split) Kind() ScenarioKind  { return ScenarioSplit }
func (Blend) Kind() ScenarioKind  { return ScenarioBlend }

func (Simple) isScenario() {}
func (Split) isScenario()  {}
func (Blend) isScenario()  {}

// ScenarioRequest is the loosely populated shape the request layer receives.
type ScenarioRequest struct {
	Allocations  []VesselVolume
	BlendSources []string
	TargetLotID  string
	Window       Interval
}

// BuildScenario resolves a request into exactly one scenario. Blend intent
// (sources or a target lot) always wins; otherwise more than one allocation
// means split; otherwise simple.
func BuildScenario(req ScenarioRequest) Scenario {
	allocations := append([]VesselVolume(nil), req.Allocations...)
	if len(req.BlendSources) > 0 || req.TargetLotID != "" {
		blend := Blend{
			Sources:     append([]string(nil), req.BlendSources...),
			Allocations: allocations,
			Window:      req.Window,
		}
		if req.TargetLotID != "" {
			target := req.TargetLotID
			blend.TargetLotID = &target
		}
		return blend
	}
	if len(allocations) > 1 {
		return Split{Allocations: allocations, Window: req.Window}
	}
	simple := Simple{Window: req.Window}
	if len(allocations) == 1 {
		simple.VesselID = allocations[0].VesselID
	}
	return simple
}

// TransitionRequest asks the engine to move one batch into TargetPhase.
type TransitionRequest struct {
	TenantID     string
	BatchID      string
	TargetPhase  Phase
	Scenario     Scenario
	Measurements Measurements
}

// EffectOutcome reports a best-effort secondary write executed after commit.
type EffectOutcome struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// TransitionResult separates the committed primary outcome from the
// best-effort secondary outcomes.
type TransitionResult struct {
	Batch       Batch           `json:"batch"`
	Siblings    []Batch         `json:"siblings,omitempty"`
	Sources     []Batch         `json:"sources,omitempty"`
	Lot         *Lot            `json:"lot,omitempty"`
	Allocations []Allocation    `json:"allocations,omitempty"`
	Released    []Allocation    `json:"released,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
	Secondary   []EffectOutcome `json:"secondary,omitempty"`
}

// SecondaryOK reports whether every secondary effect succeeded.
func (r TransitionResult) SecondaryOK() bool {
	for _, outcome := range r.Secondary {
		if !outcome.OK {
			return false
		}
	}
	return true
}

// VesselIDs returns the vessels touched by the transition's new allocations.
func (r TransitionResult) VesselIDs() []string {
	out := make([]string, 0, len(r.Allocations)+len(r.Released))
	seen := make(map[string]struct{})
	for _, list := range [][]Allocation{r.Allocations, r.Released} {
		for _, a := range list {
			if _, ok := seen[a.VesselID]; ok {
				continue
			}
			seen[a.VesselID] = struct{}{}
			out = append(out, a.VesselID)
		}
	}
	return out
}
