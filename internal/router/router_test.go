package router

import (
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	eth    = domain.Asset{Address: domain.NativeAddress, Symbol: "ETH", Decimals: 18, Kind: domain.AssetKindNative}
	weth   = domain.Asset{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18, Kind: domain.AssetKindToken}
	usdc   = domain.Asset{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6, Kind: domain.AssetKindToken}
	alice  = domain.Asset{Address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Symbol: "ALICE", Decimals: 18, Kind: domain.AssetKindCreator, Subject: "0x01"}
	bob    = domain.Asset{Address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Symbol: "BOB", Decimals: 18, Kind: domain.AssetKindCreator, Subject: "0x02"}
	gradut = domain.Asset{Address: "0xcccccccccccccccccccccccccccccccccccccccc", Symbol: "GRAD", Decimals: 18, Kind: domain.AssetKindCreator, Graduated: true}
)

func venues(p domain.HopPlan) []domain.Venue {
	out := make([]domain.Venue, 0, len(p.Hops))
	for _, h := range p.Hops {
		out = append(out, h.Venue)
	}
	return out
}

func TestPlanOrdinaryPairIsSingleHop(t *testing.T) {
	r := New(weth, weth)
	p, err := r.Plan("req", usdc, weth)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteDirect, p.Kind)
	assert.Equal(t, 1, p.Len())
	assert.Nil(t, p.Bridge)
	assert.Equal(t, []domain.Venue{domain.VenueAggregator}, venues(p))
}

func TestPlanGraduatedCreatorIsLiquid(t *testing.T) {
	p, err := New(weth, weth).Plan("req", usdc, gradut)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteDirect, p.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueAggregator}, venues(p))
}

func TestPlanCreatorToCreatorUsesBridge(t *testing.T) {
	p, err := New(weth, weth).Plan("req", alice, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteViaBridge, p.Kind)
	require.Equal(t, 2, p.Len())
	require.NotNil(t, p.Bridge)
	assert.True(t, p.Hops[0].Buy.Equal(weth))
	assert.True(t, p.Hops[1].Sell.Equal(weth))
	assert.Equal(t, []domain.Venue{domain.VenueCurveSell, domain.VenueCurveBuy}, venues(p))
	assert.Equal(t, 1, p.Hops[1].Index)
}

func TestPlanBridgeAndCreatorIsDirect(t *testing.T) {
	r := New(weth, weth)

	buy, err := r.Plan("req", weth, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteDirect, buy.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueCurveBuy}, venues(buy))

	sell, err := r.Plan("req", alice, weth)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteDirect, sell.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueCurveSell}, venues(sell))
}

func TestPlanTokenAndCreator(t *testing.T) {
	r := New(weth, weth)

	in, err := r.Plan("req", usdc, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteViaBridge, in.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueAggregator, domain.VenueCurveBuy}, venues(in))

	out, err := r.Plan("req", alice, usdc)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteViaBridge, out.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueCurveSell, domain.VenueAggregator}, venues(out))
}

func TestPlanNativeWrap(t *testing.T) {
	r := New(weth, weth)

	wrap, err := r.Plan("req", eth, weth)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteWrapThenDirect, wrap.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueWrap}, venues(wrap))

	curve, err := r.Plan("req", eth, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteWrapThenDirect, curve.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueWrap, domain.VenueCurveBuy}, venues(curve))
}

func TestPlanNativeToCreatorWithTokenBridge(t *testing.T) {
	p, err := New(usdc, weth).Plan("req", eth, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.RouteViaBridge, p.Kind)
	assert.Equal(t, []domain.Venue{domain.VenueAggregator, domain.VenueCurveBuy}, venues(p))
}

func TestPlanSameAssetRejected(t *testing.T) {
	upper := usdc
	upper.Address = "0x833589FCD6EDB6E08F4C7C32D4F71B54BDA02913"
	_, err := New(weth, weth).Plan("req", usdc, upper)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
