package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// TickCache mirrors the latest tick per instrument into Redis so dashboards
// and out-of-process tooling can read prices without touching the engine.
type TickCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTickCache wraps a Redis client. Entries expire after ttl so a stalled
// feed never serves stale prices as live.
func NewTickCache(client *redis.Client, ttl time.Duration) *TickCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &TickCache{client: client, ttl: ttl}
}

func tickKey(instrumentID uint32) string {
	return fmt.Sprintf("tick:latest:%d", instrumentID)
}

// SetLatest stores the latest tick for its instrument.
func (c *TickCache) SetLatest(ctx context.Context, tick schema.MarketTick) error {
	raw, err := sonic.ConfigStd.Marshal(tick)
	if err != nil {
		return errors.Wrap(err, "marshal tick")
	}
	if err := c.client.Set(ctx, tickKey(tick.InstrumentID), raw, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "set latest tick").With("instrument", tick.InstrumentID)
	}
	return nil
}

// Latest returns the cached tick for an instrument. The second return is
// false when no entry exists or it has expired.
func (c *TickCache) Latest(ctx context.Context, instrumentID uint32) (schema.MarketTick, bool, error) {
	raw, err := c.client.Get(ctx, tickKey(instrumentID)).Result()
	if err != nil {
		if err == redis.Nil {
			return schema.MarketTick{}, false, nil
		}
		return schema.MarketTick{}, false, errors.Wrap(err, "get latest tick").With("instrument", instrumentID)
	}
	var tick schema.MarketTick
	if err := sonic.ConfigStd.Unmarshal([]byte(raw), &tick); err != nil {
		return schema.MarketTick{}, false, errors.Wrap(err, "unmarshal tick")
	}
	return tick, true, nil
}

// Ping checks the Redis connection.
func (c *TickCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
