package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// AttemptStore implements domain.AttemptStore. Save is an upsert keyed on
// the attempt id, called on every state change.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates an AttemptStore.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Save writes the current snapshot of a.
func (s *AttemptStore) Save(ctx context.Context, a domain.TransactionAttempt) error {
	const query = `
		INSERT INTO transaction_attempts (
			id, request_id, hop_index, quote_id, state, allowance_granted,
			approval_tx_hash, signature, tx_hash, receipt_status,
			quoted_buy, realized_buy, error, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11::text::numeric, $12::text::numeric, $13, $14, $15
		)
		ON CONFLICT (id) DO UPDATE SET
			quote_id = EXCLUDED.quote_id,
			state = EXCLUDED.state,
			allowance_granted = EXCLUDED.allowance_granted,
			approval_tx_hash = EXCLUDED.approval_tx_hash,
			signature = EXCLUDED.signature,
			tx_hash = EXCLUDED.tx_hash,
			receipt_status = EXCLUDED.receipt_status,
			quoted_buy = EXCLUDED.quoted_buy,
			realized_buy = EXCLUDED.realized_buy,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.RequestID, a.HopIndex, a.QuoteID, string(a.State), a.AllowanceGranted,
		a.ApprovalTxHash, a.Signature, a.TxHash, string(a.ReceiptStatus),
		bigToText(a.QuotedBuy), bigToText(a.RealizedBuy), a.Error, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save attempt %s: %w", a.ID, err)
	}
	return nil
}

// ListByRequest returns a request's attempts in hop order.
func (s *AttemptStore) ListByRequest(ctx context.Context, requestID string) ([]domain.TransactionAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, hop_index, quote_id, state, allowance_granted,
			approval_tx_hash, signature, tx_hash, receipt_status,
			quoted_buy::text, realized_buy::text, error, created_at, updated_at
		FROM transaction_attempts
		WHERE request_id = $1
		ORDER BY hop_index, created_at`, requestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts %s: %w", requestID, err)
	}
	defer rows.Close()

	var out []domain.TransactionAttempt
	for rows.Next() {
		var a domain.TransactionAttempt
		var state, receipt string
		var quoted, realized *string
		if err := rows.Scan(
			&a.ID, &a.RequestID, &a.HopIndex, &a.QuoteID, &state, &a.AllowanceGranted,
			&a.ApprovalTxHash, &a.Signature, &a.TxHash, &receipt,
			&quoted, &realized, &a.Error, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan attempt: %w", err)
		}
		a.State = domain.AttemptState(state)
		a.ReceiptStatus = domain.ReceiptStatus(receipt)
		if a.QuotedBuy, err = textToBig(quoted); err != nil {
			return nil, err
		}
		if a.RealizedBuy, err = textToBig(realized); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list attempts rows: %w", err)
	}
	return out, nil
}
