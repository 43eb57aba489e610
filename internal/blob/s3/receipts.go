package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Receipts stores one JSON document per swap under receipts/<trace>.json.
type Receipts struct {
	w domain.BlobWriter
	r domain.BlobReader
}

// NewReceipts creates a Receipts archive. r may be nil when reads are not
// served.
func NewReceipts(w domain.BlobWriter, r domain.BlobReader) *Receipts {
	return &Receipts{w: w, r: r}
}

// ReceiptPath returns the object path for traceID.
func ReceiptPath(traceID string) string {
	return "receipts/" + strings.ReplaceAll(traceID, "/", "_") + ".json"
}

// Archive writes outcome.
func (a *Receipts) Archive(ctx context.Context, outcome domain.SwapOutcome) error {
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal receipt %s: %w", outcome.TraceID, err)
	}
	if err := a.w.Put(ctx, ReceiptPath(outcome.TraceID), bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive receipt %s: %w", outcome.TraceID, err)
	}
	return nil
}

// Load returns the raw receipt JSON for traceID.
func (a *Receipts) Load(ctx context.Context, traceID string) ([]byte, error) {
	if a.r == nil {
		return nil, fmt.Errorf("s3blob: load receipt %s: %w", traceID, domain.ErrNotFound)
	}
	body, err := a.r.Get(ctx, ReceiptPath(traceID))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read receipt %s: %w", traceID, err)
	}
	return data, nil
}
