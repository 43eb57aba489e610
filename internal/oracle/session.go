package oracle

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Session caches balances and prices for one request. It is safe for
// concurrent use; concurrent lookups of the same key share one upstream call.
type Session struct {
	oracle *Oracle
	wallet string

	mu       sync.Mutex
	balances map[string]*big.Int
	prices   map[string]decimal.Decimal
	group    singleflight.Group
}

// NewSession starts a request-scoped session for wallet.
func (o *Oracle) NewSession(wallet string) *Session {
	return &Session{
		oracle:   o,
		wallet:   wallet,
		balances: make(map[string]*big.Int),
		prices:   make(map[string]decimal.Decimal),
	}
}

// Wallet returns the wallet whose balances the session reads.
func (s *Session) Wallet() string { return s.wallet }

// Balance returns the wallet balance of asset, reading the chain at most once
// per session.
func (s *Session) Balance(ctx context.Context, asset domain.Asset) (*big.Int, error) {
	key := strings.ToLower(asset.Address)
	s.mu.Lock()
	if b, ok := s.balances[key]; ok {
		s.mu.Unlock()
		return new(big.Int).Set(b), nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("balance:"+key, func() (any, error) {
		s.mu.Lock()
		b, ok := s.balances[key]
		s.mu.Unlock()
		if ok {
			return b, nil
		}
		return s.fetchBalance(ctx, asset, key)
	})
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(v.(*big.Int)), nil
}

// FreshBalance re-reads the balance from the chain and replaces the cached
// value.
func (s *Session) FreshBalance(ctx context.Context, asset domain.Asset) (*big.Int, error) {
	b, err := s.fetchBalance(ctx, asset, strings.ToLower(asset.Address))
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(b), nil
}

func (s *Session) fetchBalance(ctx context.Context, asset domain.Asset, key string) (*big.Int, error) {
	b, err := s.oracle.BalanceOf(ctx, asset, s.wallet)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.balances[key] = b
	s.mu.Unlock()
	return b, nil
}

// PriceUSD returns the USD price of one whole unit of asset, looked up at
// most once per session.
func (s *Session) PriceUSD(ctx context.Context, asset domain.Asset) (decimal.Decimal, error) {
	key := strings.ToLower(asset.Address)
	s.mu.Lock()
	if p, ok := s.prices[key]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("price:"+key, func() (any, error) {
		s.mu.Lock()
		cached, ok := s.prices[key]
		s.mu.Unlock()
		if ok {
			return cached, nil
		}
		p, err := s.oracle.PriceUSD(ctx, asset)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.prices[key] = p
		s.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}
