package redisx

import (
	"cellarcore/pkg/domain"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// EquipmentMirror copies vessel status into one Redis hash per vessel at
// {ns}:{tenant}:vessel:{id} and publishes each change on
// {ns}:{tenant}:equipment_events.
type EquipmentMirror struct {
	client *Client
}

// NewEquipmentMirror returns a mirror writing through client.
func NewEquipmentMirror(client *Client) *EquipmentMirror {
	return &EquipmentMirror{client: client}
}

// VesselKey returns the hash key for a vessel.
func (m *EquipmentMirror) VesselKey(tenantID, vesselID string) string {
	return m.client.Key(tenantID, "vessel", vesselID)
}

// EventsChannel returns the tenant's equipment event channel.
func (m *EquipmentMirror) EventsChannel(tenantID string) string {
	return m.client.Key(tenantID, "equipment_events")
}

// VesselHash flattens a vessel into hash fields. Empty occupancy pointers
// are written as empty strings so stale values are overwritten.
func VesselHash(v domain.Vessel) map[string]any {
	return map[string]any{
		"id":                    v.ID,
		"name":                  v.Name,
		"capacity":              strconv.FormatFloat(v.Capacity, 'f', -1, 64),
		"status":                string(v.Status),
		"current_batch_id":      deref(v.CurrentBatchID),
		"current_allocation_id": deref(v.CurrentAllocationID),
		"version":               v.Version,
		"updated_at":            v.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Mirror writes every vessel in one MULTI/EXEC and then publishes the
// changes.
func (m *EquipmentMirror) Mirror(ctx context.Context, vessels []domain.Vessel) error {
	if len(vessels) == 0 {
		return nil
	}
	_, err := m.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, v := range vessels {
			pipe.HSet(ctx, m.VesselKey(v.TenantID, v.ID), VesselHash(v))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror vessels: %w", err)
	}
	for _, v := range vessels {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal vessel %s: %w", v.ID, err)
		}
		if err := m.client.rdb.Publish(ctx, m.EventsChannel(v.TenantID), payload).Err(); err != nil {
			return fmt.Errorf("publish vessel %s: %w", v.ID, err)
		}
	}
	return nil
}

// Status reads a mirrored vessel hash. It returns redis.Nil when the vessel
// was never mirrored.
func (m *EquipmentMirror) Status(ctx context.Context, tenantID, vesselID string) (map[string]string, error) {
	fields, err := m.client.rdb.HGetAll(ctx, m.VesselKey(tenantID, vesselID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read vessel %s: %w", vesselID, err)
	}
	if len(fields) == 0 {
		return nil, redis.Nil
	}
	return fields, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
