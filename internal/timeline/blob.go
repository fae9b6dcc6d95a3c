package timeline

import (
	"bytes"
	"cellarcore/internal/infra/blob"
	"cellarcore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// BlobSink archives each event as a JSON object under
// {prefix}{tenant}/{yyyy}/{mm}/{dd}/{hhmmss.nnnnnnnnn}-{id}.json so that key
// order is emission order within a tenant.
type BlobSink struct {
	store  blob.Store
	prefix string
}

// NewBlobSink writes into store under prefix. A non-empty prefix gains a
// trailing slash.
func NewBlobSink(store blob.Store, prefix string) *BlobSink {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BlobSink{store: store, prefix: prefix}
}

// Key returns the object key for event.
func (s *BlobSink) Key(event domain.TimelineEvent) string {
	at := event.OccurredAt.UTC()
	return fmt.Sprintf("%s%s/%s/%s-%s.json",
		s.prefix, event.TenantID, at.Format("2006/01/02"), at.Format("150405.000000000"), event.ID)
}

// Emit implements Sink. Re-emitting the same event fails with blob.ErrExists.
func (s *BlobSink) Emit(ctx context.Context, event domain.TimelineEvent) error {
	if event.TenantID == "" || event.ID == "" {
		return fmt.Errorf("timeline event needs tenant and id")
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal timeline event: %w", err)
	}
	_, err = s.store.Put(ctx, s.Key(event), bytes.NewReader(raw), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"event-type": string(event.Type),
			"batch-id":   event.BatchID,
		},
	})
	if err != nil {
		return fmt.Errorf("archive timeline event %s: %w", event.ID, err)
	}
	return nil
}

// Recent implements Reader by listing the tenant prefix.
func (s *BlobSink) Recent(ctx context.Context, tenantID string, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	infos, err := s.store.List(ctx, s.prefix+tenantID+"/")
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	out := make([]domain.TimelineEvent, 0, min(limit, len(infos)))
	for i := len(infos) - 1; i >= 0 && len(out) < limit; i-- {
		event, err := s.read(ctx, infos[i].Key)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func (s *BlobSink) read(ctx context.Context, key string) (domain.TimelineEvent, error) {
	_, rc, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("read timeline object %s: %w", key, err)
	}
	defer rc.Close()
	var event domain.TimelineEvent
	if err := json.NewDecoder(rc).Decode(&event); err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("decode timeline object %s: %w", key, err)
	}
	return event, nil
}
