// Package timeline delivers the event recorded after each committed batch
// transition. Sinks are best-effort: the lifecycle engine reports their
// failures but never rolls back on them.
package timeline

import (
	"cellarcore/pkg/domain"
	"context"
	"log/slog"
	"sync"
)

// Sink receives timeline events.
type Sink interface {
	Emit(ctx context.Context, event domain.TimelineEvent) error
}

// Reader is implemented by sinks that can replay what they stored.
type Reader interface {
	// Recent returns up to limit events for the tenant, newest first.
	Recent(ctx context.Context, tenantID string, limit int) ([]domain.TimelineEvent, error)
}

const defaultRecent = 20

// LogSink writes each event as a structured log record.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink logging through logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, event domain.TimelineEvent) error {
	s.logger.InfoContext(ctx, event.Description,
		"event_id", event.ID,
		"tenant_id", event.TenantID,
		"type", string(event.Type),
		"batch_id", event.BatchID,
		"vessel_ids", event.VesselIDs,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

// MemorySink keeps events in process, mostly for tests and single-run CLIs.
type MemorySink struct {
	mu     sync.Mutex
	events []domain.TimelineEvent
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Emit implements Sink.
func (s *MemorySink) Emit(_ context.Context, event domain.TimelineEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns every event in emission order.
func (s *MemorySink) Events() []domain.TimelineEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TimelineEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Recent implements Reader.
func (s *MemorySink) Recent(_ context.Context, tenantID string, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TimelineEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].TenantID == tenantID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}
