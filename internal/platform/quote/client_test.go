package quote

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = domain.Asset{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18}
	usdc = domain.Asset{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6}
)

const quoteBody = `{
  "liquidityAvailable": true,
  "buyAmount": "3000000000",
  "minBuyAmount": "2985000000",
  "issues": {
    "allowance": {"actual": "0", "spender": "0x000000000022D473030F116dDEE9F6B43aC78BA3"},
    "balance": null
  },
  "permit2": {
    "eip712": {
      "types": {"PermitTransferFrom": []},
      "domain": {"name": "Permit2", "chainId": 8453},
      "message": {"nonce": "1", "deadline": "1718000000"},
      "primaryType": "PermitTransferFrom"
    }
  },
  "transaction": {"to": "0x0000000000001fF3684f28c67538d4D072C22734", "data": "0xdeadbeef", "gas": "210000", "value": "0"},
  "zid": "0xabc"
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:     srv.URL,
		APIKey:      "k",
		ChainID:     8453,
		SlippageBps: 50,
		HTTP:        httpx.Options{Attempts: 2, RetryDelay: time.Millisecond},
	}, nil)
}

func TestGetQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/swap/permit2/quote", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("0x-api-key"))
		assert.Equal(t, "v2", r.Header.Get("0x-version"))
		q := r.URL.Query()
		assert.Equal(t, "8453", q.Get("chainId"))
		assert.Equal(t, weth.Address, q.Get("sellToken"))
		assert.Equal(t, "1000000000000000000", q.Get("sellAmount"))
		assert.Equal(t, "50", q.Get("slippageBps"))
		_, _ = w.Write([]byte(quoteBody))
	})

	sell, _ := new(big.Int).SetString("1000000000000000000", 10)
	q, err := c.GetQuote(context.Background(), domain.QuoteRequest{Sell: weth, Buy: usdc, SellAmount: sell, Taker: "0xabc"})
	require.NoError(t, err)

	assert.Equal(t, "0xabc", q.ID)
	assert.True(t, q.LiquidityAvailable)
	assert.Equal(t, "3000000000", q.BuyAmount.String())
	assert.Equal(t, "2985000000", q.MinBuyAmount.String())
	require.NotNil(t, q.AllowanceIssue)
	assert.Equal(t, weth.Address, q.AllowanceIssue.Token)
	assert.Equal(t, int64(0), q.AllowanceIssue.Actual.Int64())
	assert.Nil(t, q.BalanceIssue)
	require.NotNil(t, q.SignaturePayload)
	assert.Equal(t, "PermitTransferFrom", q.SignaturePayload.PrimaryType)
	assert.Equal(t, domain.SignatureEncodingLengthPrefixed, q.SignatureEncoding)
	assert.True(t, q.ExpiresAt.Equal(time.Unix(1718000000, 0)))
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, q.Tx.Data)
	assert.Equal(t, uint64(210000), q.Tx.Gas)
}

func TestGetQuoteNoLiquidity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"liquidityAvailable": false, "zid": "0x1"}`))
	})
	q, err := c.GetQuote(context.Background(), domain.QuoteRequest{Sell: weth, Buy: usdc, SellAmount: big.NewInt(1)})
	require.NoError(t, err)
	assert.False(t, q.LiquidityAvailable)
	assert.Nil(t, q.BuyAmount)
}

func TestGetQuoteErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"name":"INPUT_INVALID"}`, http.StatusBadRequest)
	})
	_, err := c.GetQuote(context.Background(), domain.QuoteRequest{Sell: weth, Buy: usdc, SellAmount: big.NewInt(1)})
	assert.True(t, domain.IsKind(err, domain.KindValidation))

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err = c.GetQuote(context.Background(), domain.QuoteRequest{Sell: weth, Buy: usdc, SellAmount: big.NewInt(1)})
	assert.ErrorIs(t, err, domain.ErrUpstream)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"liquidityAvailable": true, "buyAmount": "lots", "transaction": {"to": "0x1", "data": "0x"}}`))
	})
	_, err = c.GetQuote(context.Background(), domain.QuoteRequest{Sell: weth, Buy: usdc, SellAmount: big.NewInt(1)})
	assert.True(t, domain.IsKind(err, domain.KindUpstreamError))

	_, err = c.GetQuote(context.Background(), domain.QuoteRequest{Sell: weth, Buy: usdc, SellAmount: big.NewInt(0)})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestPermitDeadline(t *testing.T) {
	at, err := permitDeadline([]byte(`{"deadline": 1718000000}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1718000000), at.Unix())

	at, err = permitDeadline([]byte(`{"nonce": "1"}`))
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	at, err = permitDeadline(nil)
	require.NoError(t, err)
	assert.True(t, at.IsZero())

	_, err = permitDeadline([]byte(`{"deadline": "soon"}`))
	assert.Error(t, err)
}
