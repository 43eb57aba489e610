package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSpecKind selects how a limit price was phrased.
type PriceSpecKind string

const (
	PriceSpecAbsolute      PriceSpecKind = "absolute"
	PriceSpecPercentOffset PriceSpecKind = "percent_offset"
	PriceSpecMultiplier    PriceSpecKind = "multiplier"
	PriceSpecChained       PriceSpecKind = "chained"
)

// PriceSpec describes a trigger relative to the current price of the sell
// asset (Side sell) or the buy asset (Side buy).
type PriceSpec struct {
	Kind PriceSpecKind `json:"kind"`
	Side TradeSide     `json:"side"`
	// Value is an absolute USD price, a signed percentage, or a multiplier.
	Value decimal.Decimal `json:"value"`
	// Discount and ProfitFromEntry are used by chained specs, in percent.
	Discount        decimal.Decimal `json:"discount"`
	ProfitFromEntry decimal.Decimal `json:"profit_from_entry"`
}

// ExpiryUnit is the unit of an explicit expiry.
type ExpiryUnit string

const (
	ExpiryHours ExpiryUnit = "hours"
	ExpiryDays  ExpiryUnit = "days"
)

// ExpirySpec is an optional explicit expiry.
type ExpirySpec struct {
	Amount int64      `json:"amount"`
	Unit   ExpiryUnit `json:"unit"`
}

// LimitOrderRequest is a deferred trade.
type LimitOrderRequest struct {
	Trade             TradeRequest `json:"trade"`
	Price             PriceSpec    `json:"price"`
	Expiry            *ExpirySpec  `json:"expiry,omitempty"`
	PartiallyFillable bool         `json:"partially_fillable"`
}

// LimitOrderStatus tracks a persisted order.
type LimitOrderStatus string

const (
	LimitOrderOpen      LimitOrderStatus = "open"
	LimitOrderTriggered LimitOrderStatus = "triggered"
	LimitOrderCancelled LimitOrderStatus = "cancelled"
	LimitOrderExpired   LimitOrderStatus = "expired"
)

// LimitOrder is handed to the external trigger watcher.
type LimitOrder struct {
	ID                string           `json:"id"`
	RequestID         string           `json:"request_id"`
	Caller            string           `json:"caller"`
	Wallet            string           `json:"wallet"`
	Sell              Asset            `json:"sell"`
	Buy               Asset            `json:"buy"`
	SellAmount        *big.Int         `json:"sell_amount"`
	BuyAmount         *big.Int         `json:"buy_amount"`
	TriggerAsset      string           `json:"trigger_asset"`
	TriggerSide       TradeSide        `json:"trigger_side"`
	TriggerPriceUSD   decimal.Decimal  `json:"trigger_price_usd"`
	ExpiresAt         time.Time        `json:"expires_at"`
	PartiallyFillable bool             `json:"partially_fillable"`
	Status            LimitOrderStatus `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
}
