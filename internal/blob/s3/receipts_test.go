package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestReceiptsRoundTrip(t *testing.T) {
	blobs := newMemBlobs()
	a := NewReceipts(blobs, blobs)

	out := domain.SwapOutcome{TraceID: "t-1", Caller: "alice", Summary: "Swapped 1 WETH for 3000 USDC"}
	require.NoError(t, a.Archive(context.Background(), out))
	assert.Equal(t, "application/json", blobs.types["receipts/t-1.json"])

	data, err := a.Load(context.Background(), "t-1")
	require.NoError(t, err)
	var got domain.SwapOutcome
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, out.Summary, got.Summary)

	_, err = a.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReceiptPathSanitises(t *testing.T) {
	assert.Equal(t, "receipts/a_b.json", ReceiptPath("a/b"))
}

func TestClientKeyPrefix(t *testing.T) {
	c := &Client{prefix: "swapbot/prod"}
	assert.Equal(t, "swapbot/prod/receipts/x.json", c.Key("/receipts/x.json"))
	assert.Equal(t, "receipts/x.json", (&Client{}).Key("receipts/x.json"))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://e2.example.com", normaliseEndpoint("e2.example.com", false))
	assert.Equal(t, "http://x", normaliseEndpoint("http://x", true))
}
