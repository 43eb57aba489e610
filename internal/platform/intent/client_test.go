package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractor(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Caller)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "k", httpx.Options{Attempts: 1}, nil)
}

func TestExtractReadyTrade(t *testing.T) {
	c := extractor(t, `{"status":"ready","trade":{"id":"r1","side":"sell","sell":{"symbol":"WETH"},"buy":{"symbol":"USDC"},"mode":"balance_percent","value":"50"}}`)
	res, err := c.Extract(context.Background(), "alice", "sell half my weth for usdc")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentReady, res.Status)
	require.NotNil(t, res.Trade)
	assert.Equal(t, domain.AmountModeBalancePercent, res.Trade.Mode)
	assert.Equal(t, "50", res.Trade.Value.String())
	assert.Nil(t, res.LimitOrder)
}

func TestExtractPrompt(t *testing.T) {
	c := extractor(t, `{"status":"missing_fields","prompt":"How much WETH?","missing":["amount"]}`)
	res, err := c.Extract(context.Background(), "alice", "sell weth")
	require.NoError(t, err)
	assert.Equal(t, "How much WETH?", res.Prompt)
	assert.Equal(t, []string{"amount"}, res.Missing)
}

func TestExtractMalformed(t *testing.T) {
	for _, body := range []string{
		`{"status":"ready"}`,
		`{"status":"confirmation_required"}`,
		`{"status":"maybe"}`,
	} {
		_, err := extractor(t, body).Extract(context.Background(), "alice", "x")
		assert.ErrorIs(t, err, domain.ErrUpstream, body)
	}
}
