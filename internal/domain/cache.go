package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache holds indicative USD prices shared across requests.
type PriceCache interface {
	SetPrice(ctx context.Context, assetAddr string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, assetAddr string) (decimal.Decimal, time.Time, error)
}

// AssetCache holds resolved asset metadata.
type AssetCache interface {
	Set(ctx context.Context, asset Asset) error
	Get(ctx context.Context, address string) (Asset, error)
	GetBySymbol(ctx context.Context, symbol string) (Asset, error)
	Invalidate(ctx context.Context, address string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
