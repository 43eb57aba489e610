package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// PriceCache implements domain.PriceCache. Each asset is a hash at
// "price:{address}" with fields "usd" and "ts" (unix nanoseconds). Keys
// expire after the configured TTL so stale prices do not linger.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A zero ttl keeps keys forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(addr string) string {
	return "price:" + strings.ToLower(addr)
}

// SetPrice stores the latest USD price of an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, addr string, price decimal.Decimal, ts time.Time) error {
	key := priceKey(addr)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"usd": price.String(),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", addr, err)
	}
	return nil
}

// GetPrice returns domain.ErrNotFound when nothing is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, addr string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(addr)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", addr, err)
	}
	return decodePrice(addr, vals)
}

func decodePrice(addr string, vals map[string]string) (decimal.Decimal, time.Time, error) {
	usd, ok := vals["usd"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(usd)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse price %s: %w", addr, err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", addr, err)
	}
	return price, time.Unix(0, tsNano), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
