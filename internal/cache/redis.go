package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 5 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  redis.UniversalClient
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, orderID uuid.UUID) (*domain.OrderTracking, error) {
	data, err := r.client.Get(ctx, cacheKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get failed")
	}

	var tracking domain.OrderTracking
	if err := json.Unmarshal(data, &tracking); err != nil {
		return nil, errors.Wrap(err, "unmarshal tracking failed")
	}
	return &tracking, nil
}

// Set stores the view with a jittered TTL so entries written together do not
// expire together.
func (r *RedisCache) Set(ctx context.Context, tracking *domain.OrderTracking) error {
	data, err := json.Marshal(tracking)
	if err != nil {
		return errors.Wrap(err, "marshal tracking failed")
	}

	jitter := time.Duration(rand.Int63n(int64(r.baseTTL/5) + 1))
	if err := r.client.Set(ctx, cacheKey(tracking.OrderID), data, r.baseTTL+jitter).Err(); err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, orderID uuid.UUID) error {
	if err := r.client.Del(ctx, cacheKey(orderID)).Err(); err != nil {
		return errors.Wrap(err, "redis delete failed")
	}
	return nil
}

func cacheKey(orderID uuid.UUID) string {
	return fmt.Sprintf("order-tracking:%s", orderID)
}
