// Package oracle answers balance and USD price questions for the swap engine.
// The Oracle is shared by the process; a Session is private to one request.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/resilience"
	"github.com/shopspring/decimal"
)

// Config tunes lookups.
type Config struct {
	// Bridge is the asset creator-curve prices are quoted in.
	Bridge domain.Asset
	// PriceTTL bounds how old a shared cached price may be.
	PriceTTL   time.Duration
	Attempts   int
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

// Oracle reads balances from the chain and prices from market data, the
// creator index and a shared indicative cache.
type Oracle struct {
	chain   domain.ChainReader
	market  domain.MarketData
	index   domain.CreatorIndex
	prices  domain.PriceCache // optional
	assets  domain.AssetCache // optional
	cfg     Config
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates an Oracle. prices and assets may be nil.
func New(
	chain domain.ChainReader,
	market domain.MarketData,
	index domain.CreatorIndex,
	prices domain.PriceCache,
	assets domain.AssetCache,
	cfg Config,
	logger *slog.Logger,
) *Oracle {
	if cfg.Attempts < 1 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		chain:   chain,
		market:  market,
		index:   index,
		prices:  prices,
		assets:  assets,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "oracle")),
		nowFunc: time.Now,
	}
}

// Bridge returns the configured bridge asset.
func (o *Oracle) Bridge() domain.Asset { return o.cfg.Bridge }

func retryable(err error) bool {
	return !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled)
}

func (o *Oracle) upstream(op string, subject string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.WrapError(domain.KindValidation, "oracle: "+op, fmt.Sprintf("%s is unknown", subject), err)
	}
	return domain.WrapError(domain.KindUpstreamError, "oracle: "+op, fmt.Sprintf("lookup for %s failed", subject), err)
}

// BalanceOf reads owner's balance of asset from the chain.
func (o *Oracle) BalanceOf(ctx context.Context, asset domain.Asset, owner string) (*big.Int, error) {
	bal, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context, _ int) (*big.Int, error) {
		return o.chain.BalanceOf(ctx, asset, owner)
	}, o.cfg.Attempts, o.cfg.RetryDelay, resilience.WithMaxDelay(o.cfg.MaxDelay), resilience.RetryIf(retryable))
	if err != nil {
		return nil, o.upstream("balance", asset.String(), err)
	}
	if bal == nil {
		bal = new(big.Int)
	}
	return bal, nil
}

// PriceUSD returns an indicative USD price for one whole unit of asset. The
// shared cache is only a fallback: a live price is always tried first, and a
// cached one younger than PriceTTL is served when the live read fails.
func (o *Oracle) PriceUSD(ctx context.Context, asset domain.Asset) (decimal.Decimal, error) {
	key := strings.ToLower(asset.Address)

	var (
		price decimal.Decimal
		err   error
	)
	if asset.OnCurve() {
		price, err = o.creatorPriceUSD(ctx, asset)
	} else {
		price, err = o.marketPriceUSD(ctx, asset)
	}
	if err == nil && !price.IsPositive() {
		err = domain.NewError(domain.KindUpstreamError, "oracle: price",
			fmt.Sprintf("no usable price for %s", asset))
	}
	if err != nil {
		if cached, ok := o.cachedPrice(ctx, key, asset); ok {
			o.logger.WarnContext(ctx, "live price unavailable, using cached price",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
			return cached, nil
		}
		return decimal.Zero, err
	}

	if o.prices != nil {
		if cerr := o.prices.SetPrice(ctx, key, price, o.nowFunc()); cerr != nil {
			o.logger.WarnContext(ctx, "price cache write failed",
				slog.String("asset", asset.String()),
				slog.String("error", cerr.Error()),
			)
		}
	}
	return price, nil
}

func (o *Oracle) cachedPrice(ctx context.Context, key string, asset domain.Asset) (decimal.Decimal, bool) {
	if o.prices == nil || o.cfg.PriceTTL <= 0 {
		return decimal.Zero, false
	}
	p, ts, err := o.prices.GetPrice(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.WarnContext(ctx, "price cache read failed",
				slog.String("asset", asset.String()),
				slog.String("error", err.Error()),
			)
		}
		return decimal.Zero, false
	}
	if o.nowFunc().Sub(ts) > o.cfg.PriceTTL || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

func (o *Oracle) marketPriceUSD(ctx context.Context, asset domain.Asset) (decimal.Decimal, error) {
	p, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context, _ int) (decimal.Decimal, error) {
		return o.market.PriceUSD(ctx, asset)
	}, o.cfg.Attempts, o.cfg.RetryDelay, resilience.WithMaxDelay(o.cfg.MaxDelay), resilience.RetryIf(retryable))
	if err != nil {
		return decimal.Zero, o.upstream("price", asset.String(), err)
	}
	return p, nil
}

// creatorPriceUSD converts the curve price, quoted in bridge units, to USD.
func (o *Oracle) creatorPriceUSD(ctx context.Context, asset domain.Asset) (decimal.Decimal, error) {
	info, err := o.creatorInfo(ctx, asset.Address)
	if err != nil {
		return decimal.Zero, err
	}
	bridgeUSD, err := o.PriceUSD(ctx, o.cfg.Bridge)
	if err != nil {
		return decimal.Zero, err
	}
	return info.PriceInBridge.Mul(bridgeUSD), nil
}

func (o *Oracle) creatorInfo(ctx context.Context, token string) (domain.CreatorInfo, error) {
	info, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context, _ int) (domain.CreatorInfo, error) {
		return o.index.CreatorAsset(ctx, token)
	}, o.cfg.Attempts, o.cfg.RetryDelay, resilience.WithMaxDelay(o.cfg.MaxDelay), resilience.RetryIf(retryable))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CreatorInfo{}, err
		}
		return domain.CreatorInfo{}, o.upstream("creator index", token, err)
	}
	return info, nil
}

// ResolveAsset fills in decimals, kind and curve data for a partially known
// asset. Results are cached in the asset cache when one is configured.
func (o *Oracle) ResolveAsset(ctx context.Context, a domain.Asset) (domain.Asset, error) {
	if strings.EqualFold(a.Address, domain.NativeAddress) {
		a.Kind = domain.AssetKindNative
		if a.Decimals == 0 {
			a.Decimals = 18
		}
		return a, nil
	}
	if a.Address == "" && a.Symbol != "" && o.assets != nil {
		cached, err := o.assets.GetBySymbol(ctx, a.Symbol)
		if err == nil {
			return cached, nil
		}
	}
	if a.Address == "" {
		return domain.Asset{}, domain.NewError(domain.KindValidation, "oracle: resolve asset",
			fmt.Sprintf("asset %q has no address", a.Symbol))
	}
	if o.assets != nil {
		if cached, err := o.assets.Get(ctx, a.Address); err == nil {
			return cached, nil
		}
	}

	info, err := o.creatorInfo(ctx, a.Address)
	switch {
	case err == nil:
		a.Kind = domain.AssetKindCreator
		a.Subject = info.Subject
		a.Graduated = info.Graduated
		if a.Symbol == "" {
			a.Symbol = info.Symbol
		}
		if info.Decimals > 0 {
			a.Decimals = info.Decimals
		}
	case errors.Is(err, domain.ErrNotFound):
		if a.Kind == "" || a.Kind == domain.AssetKindCreator {
			a.Kind = domain.AssetKindToken
		}
	default:
		return domain.Asset{}, err
	}

	if a.Decimals == 0 {
		dec, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context, _ int) (int32, error) {
			return o.chain.Decimals(ctx, a.Address)
		}, o.cfg.Attempts, o.cfg.RetryDelay, resilience.WithMaxDelay(o.cfg.MaxDelay))
		if err != nil {
			return domain.Asset{}, o.upstream("decimals", a.String(), err)
		}
		a.Decimals = dec
	}

	if o.assets != nil {
		if err := o.assets.Set(ctx, a); err != nil {
			o.logger.WarnContext(ctx, "asset cache write failed",
				slog.String("asset", a.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return a, nil
}
