package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountMode selects how TradeRequest.Value is interpreted.
type AmountMode string

const (
	AmountModeSellQty        AmountMode = "sell_qty"
	AmountModeBuyQty         AmountMode = "buy_qty"
	AmountModeUSDValue       AmountMode = "usd_value"
	AmountModeBalancePercent AmountMode = "balance_percent"
)

// Valid reports whether m is a known mode.
func (m AmountMode) Valid() bool {
	switch m {
	case AmountModeSellQty, AmountModeBuyQty, AmountModeUSDValue, AmountModeBalancePercent:
		return true
	}
	return false
}

// TradeSide is the direction the user phrased the trade in.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeRequest is the structured form of one trading intent. It is never
// mutated after construction.
type TradeRequest struct {
	ID     string          `json:"id"`
	Caller string          `json:"caller"`
	Side   TradeSide       `json:"side"`
	Sell   Asset           `json:"sell"`
	Buy    Asset           `json:"buy"`
	Mode   AmountMode      `json:"mode"`
	Value  decimal.Decimal `json:"value"`
}

// ResolvedAmounts holds both legs in base units.
type ResolvedAmounts struct {
	Sell *big.Int `json:"sell"`
	Buy  *big.Int `json:"buy"`
}

// ToBaseUnits truncates a human amount onto the integer grid of an asset with
// the given decimals. Negative amounts clamp to zero.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	if !amount.IsPositive() {
		return new(big.Int)
	}
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromBaseUnits converts base units back to a human amount.
func FromBaseUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}
