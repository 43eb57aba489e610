package service

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Summarize renders the one-paragraph text shown to the user when a swap
// finishes. The wording depends on how it ended.
func Summarize(o domain.SwapOutcome, err error) string {
	sell, buy := o.Request.Sell, o.Request.Buy
	res := o.Result

	if err == nil {
		if res == nil {
			return "Nothing was executed."
		}
		text := fmt.Sprintf("Swapped %s for %s.", human(amountSell(o), sell), human(res.FinalBuy, buy))
		if res.Plan.Bridge != nil && res.Plan.Len() > 1 {
			text = fmt.Sprintf("Swapped %s for %s via %s.", human(amountSell(o), sell), human(res.FinalBuy, buy), res.Plan.Bridge)
		}
		return text
	}

	if errors.Is(err, domain.ErrRateLimited) {
		return "Too many swap requests. Wait a moment and try again."
	}

	var prefix string
	if res != nil && res.FailedHop > 0 {
		prev := res.Hops[res.FailedHop-1]
		prefix = fmt.Sprintf("Step %d of %d failed after earlier steps completed; you now hold %s. ",
			res.FailedHop+1, res.Plan.Len(), human(prev.RealizedBuy, prev.Hop.Buy))
	}

	hash := lastHash(res)
	switch domain.KindOf(err) {
	case domain.KindDecodeError:
		if res != nil && res.Degraded {
			return fmt.Sprintf("Swap of %s for %s confirmed in %s, but the amount received could not be read. Check the transaction for the final balance.",
				human(amountSell(o), sell), buy, hash)
		}
		return prefix + "The swap result could not be read: " + message(err)
	case domain.KindValidation:
		return prefix + "Request rejected: " + message(err)
	case domain.KindNoLiquidity:
		return prefix + fmt.Sprintf("No route with enough liquidity to swap %s for %s right now.", sell, buy)
	case domain.KindInsufficientFunds:
		if adv := domain.AdviceOf(err); adv != nil && adv.Message != "" {
			return prefix + adv.Message
		}
		return prefix + fmt.Sprintf("Not enough %s to cover this swap.", sell)
	case domain.KindConfirmationTimeout:
		return prefix + fmt.Sprintf("Transaction %s was submitted but not confirmed in time. It may still land; check the explorer before retrying.", hash)
	case domain.KindTransactionReverted:
		return prefix + fmt.Sprintf("Transaction %s reverted on-chain; nothing was swapped in that step.", hash)
	case domain.KindAllowanceFailure:
		return prefix + "Token approval failed: " + message(err)
	case domain.KindSigningFailure:
		return prefix + "Signing failed: " + message(err)
	case domain.KindSubmissionFailure:
		return prefix + "The transaction could not be submitted: " + message(err)
	case domain.KindUpstreamError:
		return prefix + "A pricing or routing service is unavailable: " + message(err)
	default:
		return prefix + "Swap failed: " + err.Error()
	}
}

func amountSell(o domain.SwapOutcome) *big.Int {
	if o.Amounts == nil {
		return nil
	}
	return o.Amounts.Sell
}

func message(err error) string {
	var e *domain.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
