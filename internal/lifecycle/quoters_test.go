package lifecycle

import (
	"context"
	"math/big"
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCurve struct {
	buyOut, sellOut *big.Int
}

func (f fakeCurve) Address() string { return "0x00000000000000000000000000000000000c0e0e" }
func (f fakeCurve) CalculateTokensForBuy(context.Context, string, *big.Int) (*big.Int, error) {
	return f.buyOut, nil
}
func (f fakeCurve) CalculateTokensForSell(context.Context, string, *big.Int) (*big.Int, error) {
	return f.sellOut, nil
}
func (f fakeCurve) BuySharesV2(string, *big.Int, *big.Int, string) ([]byte, error) {
	return []byte{0xb0}, nil
}
func (f fakeCurve) SellSharesV2(string, *big.Int, *big.Int, string) ([]byte, error) {
	return []byte{0x5e}, nil
}

var creator = domain.Asset{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Symbol: "ALICE", Decimals: 18, Kind: domain.AssetKindCreator, Subject: "0x01"}

func TestCurveQuoterBuy(t *testing.T) {
	h := newHarness()
	q := NewCurveQuoter(fakeCurve{buyOut: big.NewInt(10_000)}, h.chain, 100, "")

	quote, err := q.Quote(context.Background(), h.rc, domain.Hop{Sell: weth, Buy: creator, Venue: domain.VenueCurveBuy, SellAmount: big.NewInt(50)})
	require.NoError(t, err)
	assert.True(t, quote.LiquidityAvailable)
	assert.Equal(t, int64(10_000), quote.BuyAmount.Int64())
	assert.Equal(t, int64(9_900), quote.MinBuyAmount.Int64())
	assert.Equal(t, []byte{0xb0}, quote.Tx.Data)
	require.NotNil(t, quote.AllowanceIssue)
	assert.Equal(t, weth.Address, quote.AllowanceIssue.Token)
}

func TestCurveQuoterZeroOutputHasNoLiquidity(t *testing.T) {
	h := newHarness()
	q := NewCurveQuoter(fakeCurve{sellOut: big.NewInt(0)}, h.chain, 100, "")

	quote, err := q.Quote(context.Background(), h.rc, domain.Hop{Sell: creator, Buy: weth, Venue: domain.VenueCurveSell, SellAmount: big.NewInt(50)})
	require.NoError(t, err)
	assert.False(t, quote.LiquidityAvailable)
}

func TestApplySlippage(t *testing.T) {
	assert.Equal(t, int64(995), applySlippage(big.NewInt(1000), 50).Int64())
	assert.Equal(t, int64(1000), applySlippage(big.NewInt(1000), 0).Int64())
	assert.Equal(t, int64(0), applySlippage(big.NewInt(1000), 10_000).Int64())
}
