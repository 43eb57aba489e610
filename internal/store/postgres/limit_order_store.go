package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// LimitOrderStore implements domain.LimitOrderStore. The trigger watcher
// reads the same table.
type LimitOrderStore struct {
	pool *pgxpool.Pool
}

// NewLimitOrderStore creates a LimitOrderStore.
func NewLimitOrderStore(pool *pgxpool.Pool) *LimitOrderStore {
	return &LimitOrderStore{pool: pool}
}

// Create inserts o. A duplicate id yields domain.ErrAlreadyExists.
func (s *LimitOrderStore) Create(ctx context.Context, o domain.LimitOrder) error {
	sellJSON, err := json.Marshal(o.Sell)
	if err != nil {
		return fmt.Errorf("postgres: marshal sell asset: %w", err)
	}
	buyJSON, err := json.Marshal(o.Buy)
	if err != nil {
		return fmt.Errorf("postgres: marshal buy asset: %w", err)
	}

	const query = `
		INSERT INTO limit_orders (
			id, request_id, caller, wallet, sell_asset, buy_asset,
			sell_amount, buy_amount, trigger_asset, trigger_side,
			trigger_price_usd, expires_at, partially_fillable, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8::text::numeric, $9, $10,
			$11::text::numeric, $12, $13, $14,
			$15, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		o.ID, o.RequestID, o.Caller, o.Wallet, sellJSON, buyJSON,
		bigToText(o.SellAmount), bigToText(o.BuyAmount), o.TriggerAsset, string(o.TriggerSide),
		o.TriggerPriceUSD.String(), o.ExpiresAt, o.PartiallyFillable, string(o.Status),
		o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: create limit order %s: %w", o.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create limit order %s: %w", o.ID, err)
	}
	return nil
}

const limitOrderCols = `id, request_id, caller, wallet, sell_asset, buy_asset,
	sell_amount::text, buy_amount::text, trigger_asset, trigger_side,
	trigger_price_usd::text, expires_at, partially_fillable, status, created_at`

func scanLimitOrder(scanner interface{ Scan(dest ...any) error }) (domain.LimitOrder, error) {
	var o domain.LimitOrder
	var sellJSON, buyJSON []byte
	var sellAmt, buyAmt *string
	var side, status, trigger string

	err := scanner.Scan(
		&o.ID, &o.RequestID, &o.Caller, &o.Wallet, &sellJSON, &buyJSON,
		&sellAmt, &buyAmt, &o.TriggerAsset, &side,
		&trigger, &o.ExpiresAt, &o.PartiallyFillable, &status, &o.CreatedAt,
	)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	if err := json.Unmarshal(sellJSON, &o.Sell); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("postgres: decode sell asset: %w", err)
	}
	if err := json.Unmarshal(buyJSON, &o.Buy); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("postgres: decode buy asset: %w", err)
	}
	if o.SellAmount, err = textToBig(sellAmt); err != nil {
		return domain.LimitOrder{}, err
	}
	if o.BuyAmount, err = textToBig(buyAmt); err != nil {
		return domain.LimitOrder{}, err
	}
	if o.TriggerPriceUSD, err = decimal.NewFromString(trigger); err != nil {
		return domain.LimitOrder{}, fmt.Errorf("postgres: decode trigger price: %w", err)
	}
	o.TriggerSide = domain.TradeSide(side)
	o.Status = domain.LimitOrderStatus(status)
	return o, nil
}

// GetByID returns one order or domain.ErrNotFound.
func (s *LimitOrderStore) GetByID(ctx context.Context, id string) (domain.LimitOrder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+limitOrderCols+` FROM limit_orders WHERE id = $1`, id)
	o, err := scanLimitOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LimitOrder{}, domain.ErrNotFound
		}
		return domain.LimitOrder{}, fmt.Errorf("postgres: get limit order %s: %w", id, err)
	}
	return o, nil
}

// ListByCaller returns caller's orders, newest first.
func (s *LimitOrderStore) ListByCaller(ctx context.Context, caller string, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	query, args := appendListOpts(
		`SELECT `+limitOrderCols+` FROM limit_orders WHERE caller = $1`,
		[]any{caller}, 2, opts,
	)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list limit orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.LimitOrder
	for rows.Next() {
		o, err := scanLimitOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan limit order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list limit orders rows: %w", err)
	}
	return orders, nil
}

// UpdateStatus sets the status of order id.
func (s *LimitOrderStore) UpdateStatus(ctx context.Context, id string, status domain.LimitOrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE limit_orders SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: update limit order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
