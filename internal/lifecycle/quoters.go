package lifecycle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/swapbot/internal/chain"
	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/google/uuid"
)

// Quoter prices one hop and returns the transaction that executes it.
type Quoter interface {
	Quote(ctx context.Context, rc *domain.RequestContext, hop domain.Hop) (domain.Quote, error)
}

// AggregatorQuoter delegates to the external quote service.
type AggregatorQuoter struct {
	svc domain.QuoteService
}

func NewAggregatorQuoter(svc domain.QuoteService) *AggregatorQuoter {
	return &AggregatorQuoter{svc: svc}
}

func (q *AggregatorQuoter) Quote(ctx context.Context, rc *domain.RequestContext, hop domain.Hop) (domain.Quote, error) {
	return q.svc.GetQuote(ctx, domain.QuoteRequest{
		Sell:       hop.Sell,
		Buy:        hop.Buy,
		SellAmount: hop.SellAmount,
		Taker:      rc.Wallet(),
	})
}

// CurveQuoter prices creator-asset hops against the bonding curve and checks
// the curve's allowance itself, since no external service reports it.
type CurveQuoter struct {
	curve       domain.BondingCurve
	chain       domain.ChainReader
	slippageBps int64
	referrer    string
}

// NewCurveQuoter creates a CurveQuoter. slippageBps bounds the minimum
// return encoded into the transaction.
func NewCurveQuoter(curve domain.BondingCurve, chain domain.ChainReader, slippageBps int64, referrer string) *CurveQuoter {
	if referrer == "" {
		referrer = "0x0000000000000000000000000000000000000000"
	}
	return &CurveQuoter{curve: curve, chain: chain, slippageBps: slippageBps, referrer: referrer}
}

func (q *CurveQuoter) Quote(ctx context.Context, rc *domain.RequestContext, hop domain.Hop) (domain.Quote, error) {
	var (
		out     *big.Int
		err     error
		subject string
	)
	switch hop.Venue {
	case domain.VenueCurveBuy:
		subject = hop.Buy.Subject
		out, err = q.curve.CalculateTokensForBuy(ctx, subject, hop.SellAmount)
	case domain.VenueCurveSell:
		subject = hop.Sell.Subject
		out, err = q.curve.CalculateTokensForSell(ctx, subject, hop.SellAmount)
	default:
		return domain.Quote{}, fmt.Errorf("lifecycle: curve quoter cannot price venue %s", hop.Venue)
	}
	if err != nil {
		return domain.Quote{}, domain.WrapError(domain.KindUpstreamError, "lifecycle: curve quote", "bonding curve read failed", err)
	}

	quote := domain.Quote{ID: uuid.NewString()}
	if out == nil || out.Sign() <= 0 {
		return quote, nil
	}
	quote.LiquidityAvailable = true
	quote.BuyAmount = out
	quote.MinBuyAmount = applySlippage(out, q.slippageBps)

	var data []byte
	if hop.Venue == domain.VenueCurveBuy {
		data, err = q.curve.BuySharesV2(subject, hop.SellAmount, quote.MinBuyAmount, q.referrer)
	} else {
		data, err = q.curve.SellSharesV2(subject, hop.SellAmount, quote.MinBuyAmount, q.referrer)
	}
	if err != nil {
		return domain.Quote{}, domain.WrapError(domain.KindUpstreamError, "lifecycle: curve quote", "encode curve call", err)
	}
	quote.Tx = domain.TxPayload{To: q.curve.Address(), Data: data, Value: new(big.Int)}

	allowance, err := q.chain.Allowance(ctx, hop.Sell.Address, rc.Wallet(), q.curve.Address())
	if err != nil {
		return domain.Quote{}, domain.WrapError(domain.KindUpstreamError, "lifecycle: curve quote", "allowance read failed", err)
	}
	if allowance.Cmp(hop.SellAmount) < 0 {
		quote.AllowanceIssue = &domain.AllowanceIssue{Token: hop.Sell.Address, Spender: q.curve.Address(), Actual: allowance}
	}
	return quote, nil
}

// WrapQuoter builds the fixed 1:1 deposit into the wrapped native token.
type WrapQuoter struct {
	wrapped domain.Asset
}

func NewWrapQuoter(wrapped domain.Asset) *WrapQuoter {
	return &WrapQuoter{wrapped: wrapped}
}

func (q *WrapQuoter) Quote(_ context.Context, _ *domain.RequestContext, hop domain.Hop) (domain.Quote, error) {
	amt := new(big.Int).Set(hop.SellAmount)
	return domain.Quote{
		ID:                 uuid.NewString(),
		LiquidityAvailable: true,
		BuyAmount:          amt,
		MinBuyAmount:       amt,
		Tx: domain.TxPayload{
			To:    q.wrapped.Address,
			Data:  chain.DepositCalldata(),
			Value: new(big.Int).Set(hop.SellAmount),
		},
	}, nil
}

func applySlippage(amount *big.Int, bps int64) *big.Int {
	if bps <= 0 {
		return new(big.Int).Set(amount)
	}
	if bps >= 10_000 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(10_000-bps))
	return out.Quo(out, big.NewInt(10_000))
}
