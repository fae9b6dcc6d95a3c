package domain

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Phase
		want     bool
	}{
		{PhasePlanned, PhaseFermenting, true},
		{PhasePlanned, PhaseConditioning, false},
		{PhasePlanned, PhasePackaged, false},
		{PhaseFermenting, PhaseConditioning, true},
		{PhaseFermenting, PhasePackaged, true},
		{PhaseFermenting, PhasePlanned, false},
		{PhaseConditioning, PhasePackaged, true},
		{PhaseConditioning, PhaseFermenting, false},
		{PhaseFermenting, PhaseFermenting, false},
		{PhaseConditioning, PhaseCancelled, true},
		{PhasePackaged, PhaseCancelled, false},
		{PhaseCancelled, PhaseFermenting, false},
		{Phase("BREWING"), PhaseFermenting, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCheckTransitionReturnsTypedError(t *testing.T) {
	err := CheckTransition("b1", PhasePackaged, PhaseConditioning)
	var invalid InvalidPhaseTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPhaseTransitionError, got %v", err)
	}
	if invalid.From != PhasePackaged || invalid.To != PhaseConditioning || invalid.BatchID != "b1" {
		t.Fatalf("unexpected error detail: %+v", invalid)
	}
}

func TestPhasePrefixAndVesselNeeds(t *testing.T) {
	if PhaseFermenting.Prefix() != "FRM" || PhasePackaged.Prefix() != "PKG" {
		t.Fatalf("unexpected prefixes")
	}
	if Phase("nope").Prefix() != "UNK" {
		t.Fatalf("expected fallback prefix")
	}
	if !PhaseConditioning.NeedsVessel() || PhasePackaged.NeedsVessel() {
		t.Fatalf("unexpected vessel requirement")
	}
}
