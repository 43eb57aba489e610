package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var weth = domain.Asset{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18}

func TestPriceUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prices/8453/"+weth.Address, r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`{"address":"` + weth.Address + `","priceUsd":"3012.55"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", 8453, httpx.Options{Attempts: 1}, nil)
	price, err := c.PriceUSD(context.Background(), weth)
	require.NoError(t, err)
	assert.Equal(t, "3012.55", price.String())
}

func TestPriceUSDFailures(t *testing.T) {
	for name, body := range map[string]string{
		"zero":    `{"priceUsd":"0"}`,
		"garbage": `{"priceUsd":"n/a"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()
			_, err := NewClient(srv.URL, "", 8453, httpx.Options{Attempts: 1}, nil).PriceUSD(context.Background(), weth)
			assert.ErrorIs(t, err, domain.ErrUpstream)
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "", 8453, httpx.Options{Attempts: 2, RetryDelay: time.Millisecond}, nil)
	_, err := c.PriceUSD(context.Background(), weth)
	assert.ErrorIs(t, err, domain.ErrUpstream)
}
