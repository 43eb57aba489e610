package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LimitOrderStore persists limit orders for the external trigger watcher.
type LimitOrderStore interface {
	Create(ctx context.Context, order LimitOrder) error
	GetByID(ctx context.Context, id string) (LimitOrder, error)
	ListByCaller(ctx context.Context, caller string, opts ListOpts) ([]LimitOrder, error)
	UpdateStatus(ctx context.Context, id string, status LimitOrderStatus) error
}

// AttemptStore records transaction attempts as they move through their
// lifecycle.
type AttemptStore interface {
	Save(ctx context.Context, attempt TransactionAttempt) error
	ListByRequest(ctx context.Context, requestID string) ([]TransactionAttempt, error)
}

// AuditEntry is a row in the append-only audit log.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore is an append-only log of engine events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
