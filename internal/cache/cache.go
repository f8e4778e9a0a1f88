package cache

import (
	"context"

	"github.com/fjod/go_cart/orders-service/internal/domain"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type TrackingCache interface {
	Get(ctx context.Context, orderID uuid.UUID) (*domain.OrderTracking, error)
	Set(ctx context.Context, tracking *domain.OrderTracking) error
	Delete(ctx context.Context, orderID uuid.UUID) error
}

var ErrCacheMiss = errors.New("cache miss")

// NoopCache always misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, uuid.UUID) (*domain.OrderTracking, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Set(context.Context, *domain.OrderTracking) error { return nil }

func (NoopCache) Delete(context.Context, uuid.UUID) error { return nil }
