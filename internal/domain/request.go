package domain

import (
	"context"
	"log/slog"
	"math/big"
	"time"
)

// BalanceReader is the request-scoped balance view of the wallet.
type BalanceReader interface {
	Balance(ctx context.Context, asset Asset) (*big.Int, error)
	// FreshBalance bypasses any cached value.
	FreshBalance(ctx context.Context, asset Asset) (*big.Int, error)
}

// Providers are the per-request collaborator handles.
type Providers struct {
	Signer    SigningService
	Submitter SubmissionService
	Progress  ProgressSink
	Balances  BalanceReader
}

// RequestContext carries everything scoped to one logical request. It is
// immutable once built; share it by pointer.
type RequestContext struct {
	traceID   string
	caller    string
	wallet    string
	deadline  time.Time
	providers Providers
	logger    *slog.Logger
}

// RequestOptions configures NewRequestContext.
type RequestOptions struct {
	TraceID   string
	Caller    string
	Wallet    string
	Timeout   time.Duration
	Providers Providers
	Logger    *slog.Logger
	Now       time.Time
}

// NewRequestContext builds a RequestContext. A zero Timeout means no deadline.
func NewRequestContext(opts RequestOptions) *RequestContext {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	var deadline time.Time
	if opts.Timeout > 0 {
		deadline = now.Add(opts.Timeout)
	}
	p := opts.Providers
	if p.Progress == nil {
		p.Progress = NopProgress{}
	}
	return &RequestContext{
		traceID:   opts.TraceID,
		caller:    opts.Caller,
		wallet:    opts.Wallet,
		deadline:  deadline,
		providers: p,
		logger: logger.With(
			slog.String("trace_id", opts.TraceID),
			slog.String("caller", opts.Caller),
			slog.String("wallet", opts.Wallet),
		),
	}
}

func (rc *RequestContext) TraceID() string      { return rc.traceID }
func (rc *RequestContext) Caller() string       { return rc.caller }
func (rc *RequestContext) Wallet() string       { return rc.wallet }
func (rc *RequestContext) Deadline() time.Time  { return rc.deadline }
func (rc *RequestContext) Providers() Providers { return rc.providers }

// Logger returns the trace-scoped logger, optionally narrowed to a component.
func (rc *RequestContext) Logger(component string) *slog.Logger {
	if component == "" {
		return rc.logger
	}
	return rc.logger.With(slog.String("component", component))
}

// Progress reports ev through the request's sink, stamping trace fields.
func (rc *RequestContext) Progress(ctx context.Context, ev ProgressEvent) {
	ev.TraceID = rc.traceID
	ev.Caller = rc.caller
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	rc.providers.Progress.Progress(ctx, ev)
}

// Bound derives a context that expires at the request deadline.
func (rc *RequestContext) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if rc.deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, rc.deadline)
}
