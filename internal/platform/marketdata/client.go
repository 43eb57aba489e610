// Package marketdata fetches indicative USD prices.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/shopspring/decimal"
)

// Client implements domain.MarketData.
type Client struct {
	http    *httpx.Client
	chainID int64
}

// NewClient creates a market data client. apiKey may be empty.
func NewClient(baseURL, apiKey string, chainID int64, opts httpx.Options, logger *slog.Logger) *Client {
	if apiKey != "" {
		opts.Headers = map[string]string{"X-API-Key": apiKey}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    httpx.New(baseURL, opts, logger.With(slog.String("component", "marketdata"))),
		chainID: chainID,
	}
}

type priceJSON struct {
	Address  string `json:"address"`
	PriceUSD string `json:"priceUsd"`
}

// PriceUSD returns the indicative USD price of asset.
func (c *Client) PriceUSD(ctx context.Context, asset domain.Asset) (decimal.Decimal, error) {
	const op = "marketdata: price"
	path := fmt.Sprintf("/v1/prices/%s/%s", strconv.FormatInt(c.chainID, 10), url.PathEscape(asset.Address))

	var resp priceJSON
	if err := c.http.GetJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, domain.WrapError(domain.KindUpstreamError, op,
			fmt.Sprintf("price lookup for %s", asset), err)
	}
	price, err := decimal.NewFromString(resp.PriceUSD)
	if err != nil {
		return decimal.Zero, domain.WrapError(domain.KindUpstreamError, op,
			fmt.Sprintf("bad price %q for %s", resp.PriceUSD, asset), err)
	}
	if !price.IsPositive() {
		return decimal.Zero, domain.NewError(domain.KindUpstreamError, op, fmt.Sprintf("no price for %s", asset))
	}
	return price, nil
}
