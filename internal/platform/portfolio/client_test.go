package portfolio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/0xabc/balances", r.URL.Path)
		assert.Equal(t, "8453", r.URL.Query().Get("chainId"))
		_, _ = w.Write([]byte(`{"holdings":[
			{"address":"0x4200000000000000000000000000000000000006","symbol":"WETH","decimals":18,"balance":"1000000000000000000","balanceUsd":"3000"},
			{"address":"0xbad","symbol":"BAD","decimals":18,"balance":"lots","balanceUsd":"1"},
			{"address":"0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE","symbol":"ETH","decimals":18,"kind":"native","balance":"5","balanceUsd":""}
		]}`))
	}))
	defer srv.Close()

	snap, err := NewClient(srv.URL, "", 8453, httpx.Options{Attempts: 1}, nil).Snapshot(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", snap.Wallet)
	require.Len(t, snap.Holdings, 2)
	assert.Equal(t, "WETH", snap.Holdings[0].Asset.Symbol)
	assert.Equal(t, domain.AssetKindToken, snap.Holdings[0].Asset.Kind)
	assert.Equal(t, "3000", snap.Holdings[0].BalanceUSD.String())
	assert.Equal(t, domain.AssetKindNative, snap.Holdings[1].Asset.Kind)
	assert.True(t, snap.Holdings[1].BalanceUSD.IsZero())
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestSnapshotUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	_, err := NewClient(srv.URL, "", 8453, httpx.Options{Attempts: 1}, nil).Snapshot(context.Background(), "0xabc")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}
