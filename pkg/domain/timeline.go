package domain

import "time"

// TimelineEventType classifies a timeline entry.
type TimelineEventType string

// Timeline event types emitted after a committed transition.
const (
	TimelinePhaseTransition TimelineEventType = "phase_transition"
	TimelineSplit           TimelineEventType = "split"
	TimelineBlend           TimelineEventType = "blend"
)

// TimelineEvent is the best-effort record handed to the audit/timeline sink.
type TimelineEvent struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	Type        TimelineEventType `json:"type"`
	Description string            `json:"description"`
	BatchID     string            `json:"batch_id"`
	VesselIDs   []string          `json:"vessel_ids,omitempty"`
	Payload     map[string]any    `json:"payload,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
