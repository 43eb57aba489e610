// Package advisor explains balance shortfalls and proposes other holdings
// the caller could swap from.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/shopspring/decimal"
)

// Config tunes candidate selection.
type Config struct {
	// MinUSD drops holdings worth less than this.
	MinUSD decimal.Decimal
	// TopN caps the number of candidates.
	TopN int
}

// Advisor builds ShortfallAdvice from a fresh portfolio snapshot.
type Advisor struct {
	portfolio domain.PortfolioService
	cfg       Config
}

// New creates an Advisor.
func New(portfolio domain.PortfolioService, cfg Config) *Advisor {
	if cfg.TopN <= 0 {
		cfg.TopN = 3
	}
	return &Advisor{portfolio: portfolio, cfg: cfg}
}

// Advise never caches the snapshot. When the portfolio read fails the
// returned advice still describes the shortfall, alongside the error.
func (a *Advisor) Advise(ctx context.Context, rc *domain.RequestContext, s domain.Shortfall) (domain.ShortfallAdvice, error) {
	advice := domain.ShortfallAdvice{
		Asset:     s.Asset,
		Required:  s.Required,
		Available: s.Available,
		Missing:   s.Missing(),
	}

	snap, err := a.portfolio.Snapshot(ctx, rc.Wallet())
	if err != nil {
		advice.Message = message(advice)
		rc.Logger("advisor").WarnContext(ctx, "portfolio snapshot failed",
			slog.String("error", err.Error()),
		)
		return advice, fmt.Errorf("advisor: snapshot: %w", err)
	}

	advice.Candidates = a.candidates(snap, s.Asset)
	advice.Message = message(advice)
	return advice, nil
}

func (a *Advisor) candidates(snap domain.PortfolioSnapshot, short domain.Asset) []domain.Holding {
	var out []domain.Holding
	for _, h := range snap.Holdings {
		if h.Asset.Equal(short) || (h.Asset.IsNative() && short.IsNative()) {
			continue
		}
		if h.BalanceUSD.LessThan(a.cfg.MinUSD) || !h.BalanceUSD.IsPositive() {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BalanceUSD.GreaterThan(out[j].BalanceUSD)
	})
	if len(out) > a.cfg.TopN {
		out = out[:a.cfg.TopN]
	}
	return out
}

func message(adv domain.ShortfallAdvice) string {
	dec := adv.Asset.Decimals
	var b strings.Builder
	if adv.Required == nil || adv.Required.Sign() == 0 {
		// A percentage of an empty balance has no required amount.
		fmt.Fprintf(&b, "You hold no %s.", adv.Asset)
	} else {
		fmt.Fprintf(&b, "Not enough %s: need %s, have %s (missing %s).",
			adv.Asset,
			domain.FromBaseUnits(adv.Required, dec).String(),
			domain.FromBaseUnits(adv.Available, dec).String(),
			domain.FromBaseUnits(adv.Missing, dec).String(),
		)
	}
	if len(adv.Candidates) == 0 {
		fmt.Fprintf(&b, " No other holdings are large enough to cover it; deposit more %s.", adv.Asset)
		return b.String()
	}
	b.WriteString(" You could swap from: ")
	for i, h := range adv.Candidates {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s ($%s)", h.Asset, h.BalanceUSD.StringFixed(2))
	}
	b.WriteString(".")
	return b.String()
}
