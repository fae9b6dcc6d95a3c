package domain

// phaseGraph lists the phases each phase may legally advance to. Cancellation
// is handled separately because it is reachable from every non-terminal phase.
var phaseGraph = map[Phase][]Phase{
	PhasePlanned:      {PhaseFermenting},
	PhaseFermenting:   {PhaseConditioning, PhasePackaged},
	PhaseConditioning: {PhasePackaged},
}

var phasePrefixes = map[Phase]string{
	PhasePlanned:      "PLN",
	PhaseFermenting:   "FRM",
	PhaseConditioning: "CND",
	PhasePackaged:     "PKG",
	PhaseCancelled:    "CXL",
}

// Valid reports whether the phase is one of the canonical values.
func (p Phase) Valid() bool {
	_, ok := phasePrefixes[p]
	return ok
}

// Terminal reports whether no further transitions may leave the phase.
func (p Phase) Terminal() bool {
	return p == PhasePackaged || p == PhaseCancelled
}

// Prefix returns the short code prefix used for phase lot codes.
func (p Phase) Prefix() string {
	if prefix, ok := phasePrefixes[p]; ok {
		return prefix
	}
	return "UNK"
}

// CanTransition reports whether a batch in phase from may enter phase to.
func CanTransition(from, to Phase) bool {
	if from.Terminal() || !from.Valid() {
		return false
	}
	if to == PhaseCancelled {
		return true
	}
	for _, next := range phaseGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns InvalidPhaseTransitionError when the move is illegal.
func CheckTransition(batchID string, from, to Phase) error {
	if CanTransition(from, to) {
		return nil
	}
	return InvalidPhaseTransitionError{BatchID: batchID, From: from, To: to}
}

// NeedsVessel reports whether entering the phase requires a vessel reservation.
// Packaging may move straight out of the tank.
func (p Phase) NeedsVessel() bool {
	return p == PhaseFermenting || p == PhaseConditioning
}
