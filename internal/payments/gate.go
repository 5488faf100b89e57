package payments

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Gate rate-limits out-of-band verification per order id.
type Gate interface {
	// Allow reports whether a provider re-query for orderID may proceed now.
	// Once granted, further calls for the same order id are denied until the
	// gate TTL elapses.
	Allow(ctx context.Context, orderID string) bool
}

// RedisGate implements Gate with SET NX + TTL, so the limit holds across
// service instances.
type RedisGate struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Gate = (*RedisGate)(nil)

// NewRedisGate creates a verification gate with the given minimum interval.
func NewRedisGate(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisGate{client: client, ttl: ttl, logger: logger}
}

// Allow acquires the per-order slot. A Redis failure allows the query through:
// verification is an escape hatch for users stuck on PENDING, so availability
// wins over strict rate limiting here.
func (g *RedisGate) Allow(ctx context.Context, orderID string) bool {
	ok, err := g.client.SetNX(ctx, "verify:gate:"+orderID, 1, g.ttl).Result()
	if err != nil {
		g.logger.Warn("verify gate unavailable, allowing query", zap.String("order_id", orderID), zap.Error(err))
		return true
	}
	return ok
}
