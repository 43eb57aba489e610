// Package limitorder computes trigger prices for deferred trades and hands
// the resulting orders to the external trigger watcher.
package limitorder

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultExpiry applies when the request names none.
const DefaultExpiry = 7 * 24 * time.Hour

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// OffsetPercent converts a relative spec into a signed percentage offset
// from the current price.
func OffsetPercent(spec domain.PriceSpec) (decimal.Decimal, error) {
	switch spec.Kind {
	case domain.PriceSpecPercentOffset:
		return spec.Value, nil
	case domain.PriceSpecMultiplier:
		if !spec.Value.IsPositive() {
			return decimal.Zero, domain.NewError(domain.KindValidation, "limitorder", "multiplier must be positive")
		}
		return spec.Value.Sub(one).Mul(hundred), nil
	case domain.PriceSpecChained:
		discount := one.Sub(spec.Discount.Div(hundred))
		profit := one.Add(spec.ProfitFromEntry.Div(hundred))
		return discount.Mul(profit).Sub(one).Mul(hundred), nil
	default:
		return decimal.Zero, domain.NewError(domain.KindValidation, "limitorder",
			fmt.Sprintf("price spec %q has no offset", spec.Kind))
	}
}

// ComputeTrigger returns the USD trigger price for spec given the current
// USD price of the trigger asset.
func ComputeTrigger(current decimal.Decimal, spec domain.PriceSpec) (decimal.Decimal, error) {
	var trigger decimal.Decimal
	if spec.Kind == domain.PriceSpecAbsolute {
		trigger = spec.Value
	} else {
		if !current.IsPositive() {
			return decimal.Zero, domain.NewError(domain.KindValidation, "limitorder",
				"current price is required for a relative trigger")
		}
		pct, err := OffsetPercent(spec)
		if err != nil {
			return decimal.Zero, err
		}
		trigger = current.Mul(one.Add(pct.Div(hundred)))
	}
	if !trigger.IsPositive() {
		return decimal.Zero, domain.NewError(domain.KindValidation, "limitorder",
			fmt.Sprintf("trigger price must be positive, got %s", trigger))
	}
	return trigger, nil
}

// ExpiresAt returns the absolute expiry for spec, defaulting to seven days.
func ExpiresAt(now time.Time, spec *domain.ExpirySpec) (time.Time, error) {
	if spec == nil {
		return now.Add(DefaultExpiry), nil
	}
	if spec.Amount <= 0 {
		return time.Time{}, domain.NewError(domain.KindValidation, "limitorder", "expiry must be positive")
	}
	switch spec.Unit {
	case domain.ExpiryHours:
		return now.Add(time.Duration(spec.Amount) * time.Hour), nil
	case domain.ExpiryDays:
		return now.AddDate(0, 0, int(spec.Amount)), nil
	default:
		return time.Time{}, domain.NewError(domain.KindValidation, "limitorder",
			fmt.Sprintf("unknown expiry unit %q", spec.Unit))
	}
}
