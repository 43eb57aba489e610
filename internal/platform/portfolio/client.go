// Package portfolio reads USD-valued wallet holdings.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/shopspring/decimal"
)

// Client implements domain.PortfolioService.
type Client struct {
	http    *httpx.Client
	chainID int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewClient creates a portfolio client. apiKey may be empty.
func NewClient(baseURL, apiKey string, chainID int64, opts httpx.Options, logger *slog.Logger) *Client {
	if apiKey != "" {
		opts.Headers = map[string]string{"X-API-Key": apiKey}
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "portfolio"))
	return &Client{
		http:    httpx.New(baseURL, opts, logger),
		chainID: chainID,
		logger:  logger,
		now:     time.Now,
	}
}

type holdingJSON struct {
	Address    string `json:"address"`
	Symbol     string `json:"symbol"`
	Decimals   int32  `json:"decimals"`
	Kind       string `json:"kind"`
	Balance    string `json:"balance"`
	BalanceUSD string `json:"balanceUsd"`
}

// Snapshot returns the wallet's current holdings. Rows that fail to parse
// are skipped.
func (c *Client) Snapshot(ctx context.Context, wallet string) (domain.PortfolioSnapshot, error) {
	path := fmt.Sprintf("/v1/wallets/%s/balances?chainId=%d", url.PathEscape(wallet), c.chainID)

	var resp struct {
		Holdings []holdingJSON `json:"holdings"`
	}
	if err := c.http.GetJSON(ctx, path, &resp); err != nil {
		return domain.PortfolioSnapshot{}, domain.WrapError(domain.KindUpstreamError, "portfolio: snapshot",
			"portfolio lookup failed", err)
	}

	snap := domain.PortfolioSnapshot{Wallet: wallet, FetchedAt: c.now().UTC()}
	for _, h := range resp.Holdings {
		bal, ok := new(big.Int).SetString(h.Balance, 10)
		if !ok {
			c.logger.WarnContext(ctx, "skipping holding with bad balance",
				slog.String("asset", h.Address),
				slog.String("balance", h.Balance),
			)
			continue
		}
		usd, err := decimal.NewFromString(h.BalanceUSD)
		if err != nil {
			usd = decimal.Zero
		}
		kind := domain.AssetKind(h.Kind)
		if kind == "" {
			kind = domain.AssetKindToken
		}
		snap.Holdings = append(snap.Holdings, domain.Holding{
			Asset:      domain.Asset{Address: h.Address, Symbol: h.Symbol, Decimals: h.Decimals, Kind: kind},
			Balance:    bal,
			BalanceUSD: usd,
		})
	}
	return snap, nil
}
