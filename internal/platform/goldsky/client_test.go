package goldsky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphqlServer(t *testing.T, respond func(req graphqlRequest) string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req graphqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, _ = w.Write([]byte(respond(req)))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, " key ")
}

func TestCreatorAsset(t *testing.T) {
	c := graphqlServer(t, func(req graphqlRequest) string {
		assert.Equal(t, "0xabcdef0000000000000000000000000000000001", req.Variables["id"])
		return `{"data":{"creatorToken":{"id":"0xabcdef0000000000000000000000000000000001","subject":"0x99","symbol":"ALICE","decimals":"18","priceInBridge":"0.002","graduated":false}}}`
	})

	info, err := c.CreatorAsset(context.Background(), "0xABCDEF0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0x99", info.Subject)
	assert.Equal(t, "ALICE", info.Symbol)
	assert.Equal(t, int32(18), info.Decimals)
	assert.Equal(t, "0.002", info.PriceInBridge.String())
	assert.False(t, info.Graduated)
}

func TestCreatorAssetNotFound(t *testing.T) {
	c := graphqlServer(t, func(graphqlRequest) string {
		return `{"data":{"creatorToken":null}}`
	})
	_, err := c.CreatorAsset(context.Background(), "0x01")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGraphQLError(t *testing.T) {
	c := graphqlServer(t, func(graphqlRequest) string {
		return `{"errors":[{"message":"indexing error"}]}`
	})
	_, err := c.CreatorAsset(context.Background(), "0x01")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, strings.Contains(err.Error(), "indexing error"))
}

func TestFetchLatestBlock(t *testing.T) {
	c := graphqlServer(t, func(req graphqlRequest) string {
		assert.Contains(t, req.Query, "_meta")
		return `{"data":{"_meta":{"block":{"number":123456}}}}`
	})
	n, err := c.FetchLatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123456), n)
}
