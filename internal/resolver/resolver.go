// Package resolver turns an ambiguous trade quantity into exact base-unit
// amounts for both legs.
package resolver

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// divPrecision is the number of decimal places kept in price ratios.
const divPrecision = 36

// percentScale is the integer grid percentages are truncated onto (1e-7 %).
var (
	percentScale = decimal.New(1, 7)
	percentDenom = big.NewInt(1_000_000_000) // 100 * 1e7
)

// NativeMaxPercent caps a full-balance sale of the gas asset so fees can
// still be paid.
var NativeMaxPercent = decimal.NewFromInt(99)

// Prices is the read surface the resolver needs.
type Prices interface {
	Balance(ctx context.Context, asset domain.Asset) (*big.Int, error)
	PriceUSD(ctx context.Context, asset domain.Asset) (decimal.Decimal, error)
}

type reads struct {
	sellPrice, buyPrice decimal.Decimal
	sellErr, buyErr     error
	balance             *big.Int
}

// Resolve computes both legs once. Price lookups are issued concurrently
// and joined before any arithmetic.
func Resolve(ctx context.Context, req domain.TradeRequest, prices Prices) (domain.ResolvedAmounts, error) {
	if err := validate(req); err != nil {
		return domain.ResolvedAmounts{}, err
	}

	var r reads
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.sellPrice, r.sellErr = prices.PriceUSD(gctx, req.Sell)
		if r.sellErr != nil && sellPriceRequired(req.Mode) {
			return r.sellErr
		}
		return nil
	})
	g.Go(func() error {
		r.buyPrice, r.buyErr = prices.PriceUSD(gctx, req.Buy)
		if r.buyErr != nil && buyPriceRequired(req.Mode) {
			return r.buyErr
		}
		return nil
	})
	if req.Mode == domain.AmountModeBalancePercent {
		g.Go(func() error {
			b, err := prices.Balance(gctx, req.Sell)
			if err != nil {
				return err
			}
			r.balance = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ResolvedAmounts{}, err
	}

	switch req.Mode {
	case domain.AmountModeSellQty:
		return fromSellQty(req, r)
	case domain.AmountModeBuyQty:
		return fromBuyQty(req, r)
	case domain.AmountModeUSDValue:
		return fromUSDValue(req, r)
	default:
		return fromBalancePercent(req, r)
	}
}

func sellPriceRequired(m domain.AmountMode) bool {
	return m != domain.AmountModeBalancePercent
}

func buyPriceRequired(m domain.AmountMode) bool {
	return m == domain.AmountModeSellQty || m == domain.AmountModeBuyQty
}

func validate(req domain.TradeRequest) error {
	const op = "resolver: validate"
	if !req.Mode.Valid() {
		return domain.NewError(domain.KindValidation, op, fmt.Sprintf("unknown amount mode %q", req.Mode))
	}
	if !req.Sell.Resolved() {
		return domain.NewError(domain.KindValidation, op, fmt.Sprintf("sell asset %s is not resolved", req.Sell))
	}
	if !req.Buy.Resolved() {
		return domain.NewError(domain.KindValidation, op, fmt.Sprintf("buy asset %s is not resolved", req.Buy))
	}
	if !req.Value.IsPositive() {
		return domain.NewError(domain.KindValidation, op, "quantity must be positive")
	}
	return nil
}

// ratio is the value of one sell unit expressed in buy units.
func ratio(r reads) decimal.Decimal {
	return r.sellPrice.DivRound(r.buyPrice, divPrecision)
}

func checkPrices(req domain.TradeRequest, r reads) error {
	if !r.sellPrice.IsPositive() {
		return domain.NewError(domain.KindUpstreamError, "resolver", fmt.Sprintf("no price for %s", req.Sell))
	}
	if !r.buyPrice.IsPositive() {
		return domain.NewError(domain.KindUpstreamError, "resolver", fmt.Sprintf("no price for %s", req.Buy))
	}
	return nil
}

func fromSellQty(req domain.TradeRequest, r reads) (domain.ResolvedAmounts, error) {
	if err := checkPrices(req, r); err != nil {
		return domain.ResolvedAmounts{}, err
	}
	sell := domain.ToBaseUnits(req.Value, req.Sell.Decimals)
	buy := domain.ToBaseUnits(req.Value.Mul(ratio(r)), req.Buy.Decimals)
	return finish(sell, buy)
}

func fromBuyQty(req domain.TradeRequest, r reads) (domain.ResolvedAmounts, error) {
	if err := checkPrices(req, r); err != nil {
		return domain.ResolvedAmounts{}, err
	}
	buy := domain.ToBaseUnits(req.Value, req.Buy.Decimals)
	sell := domain.ToBaseUnits(req.Value.DivRound(ratio(r), divPrecision), req.Sell.Decimals)
	return finish(sell, buy)
}

func fromUSDValue(req domain.TradeRequest, r reads) (domain.ResolvedAmounts, error) {
	if !r.sellPrice.IsPositive() {
		return domain.ResolvedAmounts{}, domain.NewError(domain.KindUpstreamError, "resolver",
			fmt.Sprintf("no price for %s", req.Sell))
	}
	sell := domain.ToBaseUnits(req.Value.DivRound(r.sellPrice, divPrecision), req.Sell.Decimals)
	buy := new(big.Int)
	if r.buyErr == nil && r.buyPrice.IsPositive() {
		buy = domain.ToBaseUnits(req.Value.DivRound(r.buyPrice, divPrecision), req.Buy.Decimals)
	}
	return finish(sell, buy)
}

func fromBalancePercent(req domain.TradeRequest, r reads) (domain.ResolvedAmounts, error) {
	const op = "resolver: balance percent"
	pct := req.Value
	if !pct.IsPositive() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return domain.ResolvedAmounts{}, domain.NewError(domain.KindValidation, op,
			fmt.Sprintf("percentage must be in (0, 100], got %s", pct))
	}
	if req.Sell.IsNative() && pct.GreaterThan(NativeMaxPercent) {
		pct = NativeMaxPercent
	}
	if r.balance == nil || r.balance.Sign() <= 0 {
		return domain.ResolvedAmounts{}, &domain.Error{
			Kind:      domain.KindInsufficientFunds,
			Op:        op,
			Message:   fmt.Sprintf("no %s balance to sell", req.Sell),
			Shortfall: &domain.Shortfall{Asset: req.Sell, Available: new(big.Int)},
		}
	}

	basis := pct.Mul(percentScale).Truncate(0).BigInt()
	sell := new(big.Int).Mul(r.balance, basis)
	sell.Quo(sell, percentDenom)

	buy := new(big.Int)
	if r.sellErr == nil && r.buyErr == nil && r.sellPrice.IsPositive() && r.buyPrice.IsPositive() {
		human := domain.FromBaseUnits(sell, req.Sell.Decimals)
		buy = domain.ToBaseUnits(human.Mul(ratio(r)), req.Buy.Decimals)
	}
	return finish(sell, buy)
}

func finish(sell, buy *big.Int) (domain.ResolvedAmounts, error) {
	if sell.Sign() <= 0 {
		return domain.ResolvedAmounts{}, domain.NewError(domain.KindValidation, "resolver",
			"quantity rounds to zero base units")
	}
	return domain.ResolvedAmounts{Sell: sell, Buy: buy}, nil
}
