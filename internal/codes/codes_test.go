package codes

import (
	"cellarcore/internal/infra/persistence/memory"
	"cellarcore/pkg/domain"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"
)

var now = time.Date(2026, 6, 15, 9, 30, 0, 0, time.UTC)

func storeWithLots(t *testing.T, tenant string, codes ...string) *memory.Store {
	t.Helper()
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, code := range codes {
			if _, err := tx.CreateLot(domain.Lot{Base: domain.Base{TenantID: tenant}, Code: code}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed lots: %v", err)
	}
	return store
}

func nextCode(t *testing.T, store *memory.Store, tenant string, at time.Time) (string, error) {
	t.Helper()
	var code string
	var err error
	_ = store.View(context.Background(), func(view domain.TransactionView) error {
		code, err = NextBatchLotCode(view, tenant, at)
		return nil
	})
	return code, err
}

func TestNextBatchLotCode(t *testing.T) {
	cases := []struct {
		name     string
		existing []string
		want     string
	}{
		{"first of year", nil, "BLEND-2026-0001"},
		{"increments greatest", []string{"BLEND-2026-0001", "BLEND-2026-0007", "BLEND-2026-0003"}, "BLEND-2026-0008"},
		{"other years ignored", []string{"BLEND-2025-0042"}, "BLEND-2026-0001"},
		{"malformed suffix ignored", []string{"BLEND-2026-00x9", "BLEND-2026-0002"}, "BLEND-2026-0003"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := storeWithLots(t, "t1", tc.existing...)
			got, err := nextCode(t, store, "t1", now)
			if err != nil {
				t.Fatalf("next code: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNextBatchLotCodeTenantScoped(t *testing.T) {
	store := storeWithLots(t, "t2", "BLEND-2026-0005")
	got, err := nextCode(t, store, "t1", now)
	if err != nil || got != "BLEND-2026-0001" {
		t.Fatalf("expected tenant-scoped first code, got %s %v", got, err)
	}
}

func TestNextBatchLotCodeSequentialNoGaps(t *testing.T) {
	store := memory.NewStore(nil)
	want := []string{"BLEND-2026-0001", "BLEND-2026-0002", "BLEND-2026-0003", "BLEND-2026-0004", "BLEND-2026-0005"}
	for i, expected := range want {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			code, err := NextBatchLotCode(tx.Snapshot(), "t1", now)
			if err != nil {
				return err
			}
			if code != expected {
				t.Fatalf("call %d: expected %s, got %s", i, expected, code)
			}
			_, err = tx.CreateLot(domain.Lot{Base: domain.Base{TenantID: "t1"}, Code: code})
			return err
		})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestNextBatchLotCodeExhausted(t *testing.T) {
	store := storeWithLots(t, "t1", "BLEND-2026-9999")
	_, err := nextCode(t, store, "t1", now)
	var exhausted domain.SequenceExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Prefix != "BLEND-2026-" {
		t.Fatalf("expected exhausted sequence, got %v", err)
	}
}

func TestNextPhaseLotCode(t *testing.T) {
	pattern := regexp.MustCompile(`^FRM-20260615-[0-9A-F]{6}$`)
	seen := map[string]struct{}{}
	for i := 0; i < 20; i++ {
		code := NextPhaseLotCode(domain.PhaseFermenting, now)
		if !pattern.MatchString(code) {
			t.Fatalf("unexpected phase code %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected random suffixes to vary")
	}
	if code := NextPhaseLotCode(domain.PhasePackaged, now); code[:4] != "PKG-" {
		t.Fatalf("expected packaging prefix, got %s", code)
	}
}

func TestSiblingCode(t *testing.T) {
	cases := map[int]string{1: "B-001B", 2: "B-001C", 25: "B-001Z", 26: "B-001AA", 27: "B-001AB"}
	for ordinal, want := range cases {
		if got := SiblingCode("B-001", ordinal); got != want {
			t.Fatalf("ordinal %d: expected %s, got %s", ordinal, want, got)
		}
	}
}
