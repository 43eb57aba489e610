// Package intent is the client for the natural-language intent extractor.
package intent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
)

// Client implements domain.IntentExtractor.
type Client struct {
	http *httpx.Client
}

// NewClient creates an extractor client. apiKey may be empty.
func NewClient(baseURL, apiKey string, opts httpx.Options, logger *slog.Logger) *Client {
	if apiKey != "" {
		opts.Headers = map[string]string{"Authorization": "Bearer " + apiKey}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpx.New(baseURL, opts, logger.With(slog.String("component", "intent")))}
}

type extractRequest struct {
	Caller string `json:"caller"`
	Text   string `json:"text"`
}

// Extract sends text for classification and validates the verdict shape.
func (c *Client) Extract(ctx context.Context, caller, text string) (domain.IntentResult, error) {
	const op = "intent: extract"
	var res domain.IntentResult
	if err := c.http.PostJSON(ctx, "/v1/extract", extractRequest{Caller: caller, Text: text}, &res); err != nil {
		return domain.IntentResult{}, domain.WrapError(domain.KindUpstreamError, op, "extractor unavailable", err)
	}

	switch res.Status {
	case domain.IntentReady:
		if (res.Trade == nil) == (res.LimitOrder == nil) {
			return domain.IntentResult{}, domain.NewError(domain.KindUpstreamError, op,
				"ready intent must carry exactly one of trade or limit_order")
		}
	case domain.IntentConfirmationRequired, domain.IntentMissingFields:
		if res.Prompt == "" {
			return domain.IntentResult{}, domain.NewError(domain.KindUpstreamError, op,
				fmt.Sprintf("%s intent without prompt", res.Status))
		}
	default:
		return domain.IntentResult{}, domain.NewError(domain.KindUpstreamError, op,
			fmt.Sprintf("unknown intent status %q", res.Status))
	}
	return res, nil
}
