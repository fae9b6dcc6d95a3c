package redisx

import (
	"cellarcore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStreamMaxLen caps each tenant timeline stream.
const DefaultStreamMaxLen = 10000

// TimelineStream appends timeline events to {ns}:{tenant}:timeline with XADD.
type TimelineStream struct {
	client *Client
	maxLen int64
}

// NewTimelineStream returns a stream sink. maxLen <= 0 uses DefaultStreamMaxLen.
func NewTimelineStream(client *Client, maxLen int64) *TimelineStream {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &TimelineStream{client: client, maxLen: maxLen}
}

// StreamKey returns the tenant's stream key.
func (s *TimelineStream) StreamKey(tenantID string) string {
	return s.client.Key(tenantID, "timeline")
}

// Emit appends the event as a JSON "event" field alongside its type and batch.
func (s *TimelineStream) Emit(ctx context.Context, event domain.TimelineEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal timeline event: %w", err)
	}
	err = s.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.StreamKey(event.TenantID),
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"id":       event.ID,
			"type":     string(event.Type),
			"batch_id": event.BatchID,
			"event":    string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for the tenant, newest first.
func (s *TimelineStream) Recent(ctx context.Context, tenantID string, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	msgs, err := s.client.rdb.XRevRangeN(ctx, s.StreamKey(tenantID), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}
	out := make([]domain.TimelineEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			continue
		}
		var event domain.TimelineEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			return nil, fmt.Errorf("decode timeline entry %s: %w", msg.ID, err)
		}
		out = append(out, event)
	}
	return out, nil
}
