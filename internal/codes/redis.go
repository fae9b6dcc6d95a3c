package codes

import (
	"cellarcore/internal/infra/redisx"
	"cellarcore/pkg/domain"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// nextSequenceScript increments a per-tenant, per-year counter atomically.
// The counter never falls below the floor observed in the store, so a fresh
// Redis instance picks up where the persisted lots left off.
// KEYS[1] = counter key
// ARGV[1] = floor (greatest persisted sequence)
var nextSequenceScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if current < floor then
    current = floor
end
current = current + 1
redis.call("SET", KEYS[1], current)
return current
`)

// RedisSequencer issues lot codes from a dedicated atomic counter, so
// concurrent writers never compute the same sequence value.
type RedisSequencer struct {
	client *redisx.Client
}

// NewRedisSequencer constructs a sequencer over the namespaced client.
func NewRedisSequencer(client *redisx.Client) *RedisSequencer {
	return &RedisSequencer{client: client}
}

// Key returns the counter key for a tenant and year.
func (s *RedisSequencer) Key(tenantID string, year int) string {
	return s.client.Key(tenantID, "lotseq", strconv.Itoa(year))
}

// NextLotCode implements Sequencer.
func (s *RedisSequencer) NextLotCode(ctx context.Context, view domain.TransactionView, tenantID string, now time.Time) (string, error) {
	prefix := LotPrefix(now.Year())
	floor := maxLotSequence(view, tenantID, prefix)
	seq, err := nextSequenceScript.Run(ctx, s.client.Redis(), []string{s.Key(tenantID, now.Year())}, floor).Int()
	if err != nil {
		return "", fmt.Errorf("next lot sequence: %w", err)
	}
	return FormatLotCode(prefix, seq)
}
