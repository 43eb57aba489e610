package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultAssetTTL = time.Hour

// AssetCache implements domain.AssetCache.
//
// Key schema:
//
//	asset:{address}        - hash with field "data" holding the JSON asset
//	asset:symbol:{SYMBOL}  - string value of the address
type AssetCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAssetCache creates an AssetCache. A zero ttl uses one hour.
func NewAssetCache(c *Client, ttl time.Duration) *AssetCache {
	if ttl <= 0 {
		ttl = defaultAssetTTL
	}
	return &AssetCache{rdb: c.Underlying(), ttl: ttl}
}

func assetKey(addr string) string     { return "asset:" + strings.ToLower(addr) }
func assetSymbolKey(sym string) string { return "asset:symbol:" + strings.ToUpper(sym) }

// Set stores asset and indexes it by symbol.
func (ac *AssetCache) Set(ctx context.Context, asset domain.Asset) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("redis: marshal asset %s: %w", asset.Address, err)
	}
	key := assetKey(asset.Address)

	pipe := ac.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ac.ttl)
	if asset.Symbol != "" {
		pipe.Set(ctx, assetSymbolKey(asset.Symbol), asset.Address, ac.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set asset %s: %w", asset.Address, err)
	}
	return nil
}

// Get returns domain.ErrNotFound on a miss.
func (ac *AssetCache) Get(ctx context.Context, addr string) (domain.Asset, error) {
	data, err := ac.rdb.HGet(ctx, assetKey(addr), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Asset{}, domain.ErrNotFound
		}
		return domain.Asset{}, fmt.Errorf("redis: get asset %s: %w", addr, err)
	}
	var asset domain.Asset
	if err := json.Unmarshal(data, &asset); err != nil {
		return domain.Asset{}, fmt.Errorf("redis: unmarshal asset %s: %w", addr, err)
	}
	return asset, nil
}

// GetBySymbol resolves a ticker through the symbol index.
func (ac *AssetCache) GetBySymbol(ctx context.Context, symbol string) (domain.Asset, error) {
	addr, err := ac.rdb.Get(ctx, assetSymbolKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Asset{}, domain.ErrNotFound
		}
		return domain.Asset{}, fmt.Errorf("redis: get asset by symbol %s: %w", symbol, err)
	}
	return ac.Get(ctx, addr)
}

// Invalidate drops an asset and its symbol index entry.
func (ac *AssetCache) Invalidate(ctx context.Context, addr string) error {
	asset, err := ac.Get(ctx, addr)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("redis: invalidate asset %s: %w", addr, err)
	}

	pipe := ac.rdb.TxPipeline()
	pipe.Del(ctx, assetKey(addr))
	if err == nil && asset.Symbol != "" {
		pipe.Del(ctx, assetSymbolKey(asset.Symbol))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate asset %s: %w", addr, err)
	}
	return nil
}

var _ domain.AssetCache = (*AssetCache)(nil)
