package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind classifies how an asset trades.
type AssetKind string

const (
	AssetKindToken   AssetKind = "token"   // ordinary ERC20 with general liquidity
	AssetKindNative  AssetKind = "native"  // gas-paying asset, no contract
	AssetKindCreator AssetKind = "creator" // creator/staked asset issued on a bonding curve
)

// NativeAddress is the placeholder address used for the chain's gas asset.
const NativeAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// Asset is a token resolved once per request.
type Asset struct {
	Address  string    `json:"address"`
	Symbol   string    `json:"symbol"`
	Decimals int32     `json:"decimals"`
	Kind     AssetKind `json:"kind"`

	// Subject is the bonding-curve subject for creator assets.
	Subject string `json:"subject,omitempty"`
	// Graduated is true once a creator asset trades on general liquidity.
	Graduated bool `json:"graduated,omitempty"`
}

// Equal reports whether a and b refer to the same on-chain asset.
func (a Asset) Equal(b Asset) bool {
	return a.Address != "" && strings.EqualFold(a.Address, b.Address)
}

// IsNative reports whether a is the chain's gas asset.
func (a Asset) IsNative() bool {
	return a.Kind == AssetKindNative
}

// OnCurve reports whether a must be traded through its bonding curve.
func (a Asset) OnCurve() bool {
	return a.Kind == AssetKindCreator && !a.Graduated
}

// Hex returns the checksummed contract address.
func (a Asset) Hex() common.Address {
	return common.HexToAddress(a.Address)
}

// String returns the symbol, falling back to the address.
func (a Asset) String() string {
	if a.Symbol != "" {
		return a.Symbol
	}
	return a.Address
}

// Resolved reports whether the asset carries enough data to trade.
func (a Asset) Resolved() bool {
	return common.IsHexAddress(a.Address) && a.Decimals >= 0 && a.Decimals <= 36
}
