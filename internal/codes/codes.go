// Package codes generates the human-readable identifiers issued by the
// lifecycle engine: sequential blend lot codes, informational phase codes and
// split sibling codes.
package codes

import (
	"cellarcore/pkg/domain"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	lotCodeRoot   = "BLEND"
	lotCodeDigits = 4
	// MaxLotSequence is the largest sequence a four digit suffix can carry.
	MaxLotSequence = 9999
)

// LotPrefix returns the per-year lot code prefix, e.g. "BLEND-2026-".
func LotPrefix(year int) string {
	return fmt.Sprintf("%s-%d-", lotCodeRoot, year)
}

// FormatLotCode renders seq under prefix, zero padded to four digits.
func FormatLotCode(prefix string, seq int) (string, error) {
	if seq < 1 || seq > MaxLotSequence {
		return "", domain.SequenceExhaustedError{Prefix: prefix}
	}
	return fmt.Sprintf("%s%0*d", prefix, lotCodeDigits, seq), nil
}

// maxLotSequence returns the suffix of the lexicographically greatest lot
// code for the tenant under prefix, or zero when none exists. Codes whose
// suffix is not numeric are ignored.
func maxLotSequence(view domain.TransactionView, tenantID, prefix string) int {
	greatest := ""
	for _, lot := range view.ListLots(tenantID) {
		suffix, ok := strings.CutPrefix(lot.Code, prefix)
		if !ok || !numeric(suffix) {
			continue
		}
		if lot.Code > greatest {
			greatest = lot.Code
		}
	}
	if greatest == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(greatest, prefix))
	if err != nil {
		return 0
	}
	return n
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NextBatchLotCode computes the next BLEND-<year>-<NNNN> code for the tenant
// from the lots visible in view. Two writers reading the same snapshot get
// the same code; the store's unique lot code constraint rejects the loser,
// which recomputes against a fresh snapshot.
func NextBatchLotCode(view domain.TransactionView, tenantID string, now time.Time) (string, error) {
	prefix := LotPrefix(now.Year())
	return FormatLotCode(prefix, maxLotSequence(view, tenantID, prefix)+1)
}

// Sequencer issues blend lot codes.
type Sequencer interface {
	NextLotCode(ctx context.Context, view domain.TransactionView, tenantID string, now time.Time) (string, error)
}

// ScanSequencer derives the next code by scanning the tenant's lots.
type ScanSequencer struct{}

// NextLotCode implements Sequencer.
func (ScanSequencer) NextLotCode(_ context.Context, view domain.TransactionView, tenantID string, now time.Time) (string, error) {
	return NextBatchLotCode(view, tenantID, now)
}

// NextPhaseLotCode returns an informational <PREFIX>-<YYYYMMDD>-<hex> code for
// a phase entry. Uniqueness is probabilistic.
func NextPhaseLotCode(phase domain.Phase, date time.Time) string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s-%s-%s", phase.Prefix(), date.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}

// SiblingCode derives a split sibling's code from its parent. Ordinal 1 is
// the first sibling and receives "B", since the parent itself holds the
// first vessel. Past "Z" the suffix continues "AA", "AB", and so on.
func SiblingCode(parentCode string, ordinal int) string {
	return parentCode + letters(ordinal)
}

// letters renders n (0 = "A") in bijective base 26.
func letters(n int) string {
	var out []byte
	for n++; n > 0; n = (n - 1) / 26 {
		out = append([]byte{byte('A' + (n-1)%26)}, out...)
	}
	return string(out)
}
