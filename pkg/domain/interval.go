package domain

import (
	"fmt"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate requires End to be strictly after Start.
func (i Interval) Validate() error {
	if i.Start.IsZero() || i.End.IsZero() {
		return InvalidRequestError{Field: "interval", Reason: "start and end are required"}
	}
	if !i.End.After(i.Start) {
		return InvalidRequestError{Field: "interval", Reason: fmt.Sprintf("end %s must be after start %s", i.End.Format(time.RFC3339), i.Start.Format(time.RFC3339))}
	}
	return nil
}

// Overlaps reports whether two half-open intervals intersect.
// Adjacent intervals ([10,12) and [12,14)) do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}
