package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Holding is one asset position in a snapshot.
type Holding struct {
	Asset      Asset           `json:"asset"`
	Balance    *big.Int        `json:"balance"`
	BalanceUSD decimal.Decimal `json:"balance_usd"`
}

// PortfolioSnapshot is read fresh per shortfall and never cached.
type PortfolioSnapshot struct {
	Wallet    string    `json:"wallet"`
	Holdings  []Holding `json:"holdings"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Shortfall describes a balance below what a hop needs.
type Shortfall struct {
	Asset     Asset
	Required  *big.Int
	Available *big.Int
}

// Missing returns Required - Available, floored at zero.
func (s Shortfall) Missing() *big.Int {
	if s.Required == nil {
		return new(big.Int)
	}
	avail := s.Available
	if avail == nil {
		avail = new(big.Int)
	}
	d := new(big.Int).Sub(s.Required, avail)
	if d.Sign() < 0 {
		return new(big.Int)
	}
	return d
}

// ShortfallAdvice proposes alternative funding sources.
type ShortfallAdvice struct {
	Asset      Asset     `json:"asset"`
	Required   *big.Int  `json:"required"`
	Available  *big.Int  `json:"available"`
	Missing    *big.Int  `json:"missing"`
	Candidates []Holding `json:"candidates"`
	Message    string    `json:"message"`
}
