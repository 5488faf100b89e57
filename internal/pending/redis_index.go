package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/atlaspay/backend/internal/models"
)

const redisKeyPrefix = "pending:order:"

// RedisIndex is the multi-instance Index: entries are JSON values with a
// native Redis TTL, visible to every service instance. Redis expiry only
// drops the entry; the PENDING to TIMEOUT demotion for this backend is done by
// the worker's timeout sweeper, which scans the payment store directly.
type RedisIndex struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ Index = (*RedisIndex)(nil)

// NewRedisIndex creates a Redis-backed pending index.
func NewRedisIndex(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisIndex{client: client, ttl: ttl, logger: logger}
}

// Put stores the entry under its key with the index TTL.
func (idx *RedisIndex) Put(ctx context.Context, key, orderID string, timeSlots json.RawMessage) error {
	entry := models.PendingOrder{OrderID: orderID, TimeSlots: timeSlots, CreatedAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal pending entry: %w", err)
	}
	if err := idx.client.Set(ctx, redisKeyPrefix+key, raw, idx.ttl).Err(); err != nil {
		return fmt.Errorf("set pending entry: %w", err)
	}
	return nil
}

// Get returns the entry if its key has not expired.
func (idx *RedisIndex) Get(ctx context.Context, key string) (*models.PendingOrder, error) {
	raw, err := idx.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending entry: %w", err)
	}
	return decodeEntry(raw, idx.logger)
}

// Resolve consumes the entry with GETDEL so concurrent reconcilers see it at
// most once.
func (idx *RedisIndex) Resolve(ctx context.Context, key string) (*models.PendingOrder, error) {
	raw, err := idx.client.GetDel(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getdel pending entry: %w", err)
	}
	return decodeEntry(raw, idx.logger)
}

func decodeEntry(raw []byte, logger *zap.Logger) (*models.PendingOrder, error) {
	var entry models.PendingOrder
	if err := json.Unmarshal(raw, &entry); err != nil {
		logger.Warn("corrupt pending entry dropped", zap.Error(err))
		return nil, nil
	}
	return &entry, nil
}
