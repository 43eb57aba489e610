package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/limitorder"
	"github.com/alanyoungcy/swapbot/internal/resolver"
	"github.com/google/uuid"
)

const (
	ChannelSwaps = "swaps"
	StreamSwaps  = "stream:swaps"
)

// AssetResolver fills in decimals, kind and curve data for an asset.
type AssetResolver interface {
	ResolveAsset(ctx context.Context, a domain.Asset) (domain.Asset, error)
}

// Session is the per-request view of prices and balances.
type Session interface {
	resolver.Prices
	domain.BalanceReader
}

// SessionFactory opens a fresh Session for wallet.
type SessionFactory func(wallet string) Session

// Planner turns an asset pair into a hop plan.
type Planner interface {
	Plan(requestID string, sell, buy domain.Asset) (domain.HopPlan, error)
}

// PlanExecutor runs a hop plan.
type PlanExecutor interface {
	Execute(ctx context.Context, rc *domain.RequestContext, plan domain.HopPlan, amounts domain.ResolvedAmounts) (domain.ExecutionResult, error)
}

// ShortfallAdvisor explains a shortfall found before any hop ran.
type ShortfallAdvisor interface {
	Advise(ctx context.Context, rc *domain.RequestContext, s domain.Shortfall) (domain.ShortfallAdvice, error)
}

// ReceiptArchive stores swap outcomes durably.
type ReceiptArchive interface {
	Archive(ctx context.Context, outcome domain.SwapOutcome) error
	Load(ctx context.Context, traceID string) ([]byte, error)
}

// Config holds the service's tunables.
type Config struct {
	Wallet         string
	RequestTimeout time.Duration
	// RateLimit swaps per RateWindow per caller; zero disables the limit.
	RateLimit  int
	RateWindow time.Duration
	// Assets are well-known assets matched by symbol before hitting the oracle.
	Assets []domain.Asset
	// ExplorerURL renders a transaction link; nil leaves links empty.
	ExplorerURL func(hash string) string
}

// IntentResponse is what HandleIntent returns to the caller. Exactly one of
// Prompt, Swap or LimitOrder is meaningful depending on Status.
type IntentResponse struct {
	Status     domain.IntentStatus `json:"status"`
	Prompt     string              `json:"prompt,omitempty"`
	Missing    []string            `json:"missing,omitempty"`
	Swap       *domain.SwapOutcome `json:"swap,omitempty"`
	LimitOrder *domain.LimitOrder  `json:"limit_order,omitempty"`
}

// SwapService orchestrates a request from free text or a structured trade
// through resolution, routing, execution and bookkeeping.
type SwapService struct {
	cfg       Config
	extractor domain.IntentExtractor
	assets    AssetResolver
	sessions  SessionFactory
	router    Planner
	executor  PlanExecutor
	orders    *limitorder.Service
	signer    domain.SigningService
	submitter domain.SubmissionService
	progress  domain.ProgressSink

	limiter  domain.RateLimiter
	audit    domain.AuditStore
	attempts domain.AttemptStore
	bus      domain.SignalBus
	receipts ReceiptArchive
	advisor  ShortfallAdvisor

	known  map[string]domain.Asset
	logger *slog.Logger
	now    func() time.Time
}

// NewSwapService creates a SwapService with its required collaborators.
// Bookkeeping backends are attached with the With* methods.
func NewSwapService(
	cfg Config,
	extractor domain.IntentExtractor,
	assets AssetResolver,
	sessions SessionFactory,
	router Planner,
	executor PlanExecutor,
	orders *limitorder.Service,
	signer domain.SigningService,
	submitter domain.SubmissionService,
	progress domain.ProgressSink,
	logger *slog.Logger,
) *SwapService {
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = domain.NopProgress{}
	}
	known := make(map[string]domain.Asset, 2*len(cfg.Assets))
	for _, a := range cfg.Assets {
		if a.Symbol != "" {
			known["sym:"+strings.ToUpper(a.Symbol)] = a
		}
		if a.Address != "" {
			known["addr:"+strings.ToLower(a.Address)] = a
		}
	}
	return &SwapService{
		cfg:       cfg,
		extractor: extractor,
		assets:    assets,
		sessions:  sessions,
		router:    router,
		executor:  executor,
		orders:    orders,
		signer:    signer,
		submitter: submitter,
		progress:  progress,
		known:     known,
		logger:    logger.With(slog.String("component", "swap_service")),
		now:       time.Now,
	}
}

// WithRateLimiter enables per-caller rate limiting.
func (s *SwapService) WithRateLimiter(l domain.RateLimiter) *SwapService {
	s.limiter = l
	return s
}

// WithAudit records every outcome in the audit log.
func (s *SwapService) WithAudit(a domain.AuditStore) *SwapService {
	s.audit = a
	return s
}

// WithAttempts exposes persisted transaction attempts through Attempts.
func (s *SwapService) WithAttempts(a domain.AttemptStore) *SwapService {
	s.attempts = a
	return s
}

// WithBus publishes outcomes on the signal bus.
func (s *SwapService) WithBus(b domain.SignalBus) *SwapService {
	s.bus = b
	return s
}

// WithAdvisor attaches candidate assets to shortfalls found while resolving
// amounts.
func (s *SwapService) WithAdvisor(a ShortfallAdvisor) *SwapService {
	s.advisor = a
	return s
}

// WithReceipts archives outcome JSON.
func (s *SwapService) WithReceipts(r ReceiptArchive) *SwapService {
	s.receipts = r
	return s
}

// HandleIntent extracts a request from text and runs it. Prompts from the
// extractor are returned verbatim without executing anything.
func (s *SwapService) HandleIntent(ctx context.Context, caller, text string) (IntentResponse, error) {
	if strings.TrimSpace(text) == "" {
		return IntentResponse{}, domain.NewError(domain.KindValidation, "swap_service: intent", "empty request text")
	}
	res, err := s.extractor.Extract(ctx, caller, text)
	if err != nil {
		return IntentResponse{}, fmt.Errorf("swap_service: extract: %w", err)
	}

	resp := IntentResponse{Status: res.Status, Prompt: res.Prompt, Missing: res.Missing}
	if res.Status != domain.IntentReady {
		s.logger.InfoContext(ctx, "intent needs clarification",
			slog.String("caller", caller),
			slog.String("status", string(res.Status)),
		)
		return resp, nil
	}

	switch {
	case res.LimitOrder != nil:
		order, err := s.PlaceLimitOrder(ctx, caller, *res.LimitOrder)
		if err != nil {
			return resp, err
		}
		resp.LimitOrder = &order
		return resp, nil
	case res.Trade != nil:
		outcome, err := s.Swap(ctx, caller, *res.Trade)
		resp.Swap = &outcome
		return resp, err
	default:
		return resp, domain.NewError(domain.KindUpstreamError, "swap_service: intent", "ready intent carries no request")
	}
}

// Swap executes a trade end to end. The returned outcome is populated even
// when err is non-nil.
func (s *SwapService) Swap(ctx context.Context, caller string, req domain.TradeRequest) (domain.SwapOutcome, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Caller = caller
	outcome := domain.SwapOutcome{
		TraceID:   req.ID,
		Caller:    caller,
		Wallet:    s.cfg.Wallet,
		Request:   req,
		StartedAt: s.now().UTC(),
	}

	if err := s.allow(ctx, caller); err != nil {
		return s.fail(outcome, err), err
	}

	rc, session := s.newRequest(req.ID, caller)
	result, amounts, err := s.run(ctx, rc, session, &req)
	outcome.Request = req
	outcome.Amounts = amounts
	outcome.Result = result

	outcome.FinishedAt = s.now().UTC()
	if err != nil {
		outcome.ErrorKind = domain.KindOf(err)
		outcome.Error = err.Error()
	}
	outcome.Summary = Summarize(outcome, err)
	if result != nil {
		outcome.ExplorerURL = s.explorer(result.LastTxHash())
	}

	// Bookkeeping must finish even if the caller has gone away.
	bg := context.WithoutCancel(ctx)
	rc.Progress(bg, domain.ProgressEvent{
		Stage:       domain.StageSummary,
		HopIndex:    -1,
		TxHash:      lastHash(result),
		Message:     outcome.Summary,
		ExplorerURL: outcome.ExplorerURL,
	})
	s.record(bg, rc.Logger("swap_service"), outcome)
	return outcome, err
}

func (s *SwapService) run(ctx context.Context, rc *domain.RequestContext, session Session, req *domain.TradeRequest) (*domain.ExecutionResult, *domain.ResolvedAmounts, error) {
	sell, err := s.resolveAsset(ctx, req.Sell)
	if err != nil {
		return nil, nil, err
	}
	buy, err := s.resolveAsset(ctx, req.Buy)
	if err != nil {
		return nil, nil, err
	}
	req.Sell, req.Buy = sell, buy

	ctx, cancel := rc.Bound(ctx)
	defer cancel()

	amounts, err := resolver.Resolve(ctx, *req, session)
	if err != nil {
		return nil, nil, s.advise(ctx, rc, err)
	}
	plan, err := s.router.Plan(req.ID, sell, buy)
	if err != nil {
		return nil, &amounts, err
	}
	result, err := s.executor.Execute(ctx, rc, plan, amounts)
	return &result, &amounts, err
}

// advise turns an unadvised shortfall into one carrying advice.
func (s *SwapService) advise(ctx context.Context, rc *domain.RequestContext, err error) error {
	short := domain.ShortfallOf(err)
	if s.advisor == nil || short == nil || domain.AdviceOf(err) != nil {
		return err
	}
	advice, advErr := s.advisor.Advise(ctx, rc, *short)
	if advErr != nil {
		rc.Logger("swap_service").WarnContext(ctx, "shortfall advice incomplete", slog.String("error", advErr.Error()))
	}
	rc.Progress(context.WithoutCancel(ctx), domain.ProgressEvent{Stage: domain.StageShortfall, HopIndex: -1, Message: advice.Message})

	var e *domain.Error
	if !errors.As(err, &e) {
		return err
	}
	out := *e
	out.Message = advice.Message
	out.Advice = &advice
	out.Shortfall = nil
	return &out
}

// PlaceLimitOrder resolves both legs and stores a pending order.
func (s *SwapService) PlaceLimitOrder(ctx context.Context, caller string, req domain.LimitOrderRequest) (domain.LimitOrder, error) {
	if s.orders == nil {
		return domain.LimitOrder{}, domain.NewError(domain.KindValidation, "swap_service: limit order", "limit orders are not enabled")
	}
	if err := s.allow(ctx, caller); err != nil {
		return domain.LimitOrder{}, err
	}
	if req.Trade.ID == "" {
		req.Trade.ID = uuid.NewString()
	}
	req.Trade.Caller = caller

	sell, err := s.resolveAsset(ctx, req.Trade.Sell)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	buy, err := s.resolveAsset(ctx, req.Trade.Buy)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	req.Trade.Sell, req.Trade.Buy = sell, buy

	rc, session := s.newRequest(req.Trade.ID, caller)
	ctx, cancel := rc.Bound(ctx)
	defer cancel()
	return s.orders.Place(ctx, rc, req, session)
}

// GetLimitOrder returns one of caller's orders.
func (s *SwapService) GetLimitOrder(ctx context.Context, caller, id string) (domain.LimitOrder, error) {
	if s.orders == nil {
		return domain.LimitOrder{}, domain.ErrNotFound
	}
	return s.orders.Get(ctx, caller, id)
}

// ListLimitOrders lists caller's orders, newest first.
func (s *SwapService) ListLimitOrders(ctx context.Context, caller string, opts domain.ListOpts) ([]domain.LimitOrder, error) {
	if s.orders == nil {
		return nil, nil
	}
	return s.orders.List(ctx, caller, opts)
}

// CancelLimitOrder cancels one of caller's open orders.
func (s *SwapService) CancelLimitOrder(ctx context.Context, caller, id string) (domain.LimitOrder, error) {
	if s.orders == nil {
		return domain.LimitOrder{}, domain.ErrNotFound
	}
	return s.orders.Cancel(ctx, caller, id)
}

// Attempts lists the persisted transaction attempts for a request.
func (s *SwapService) Attempts(ctx context.Context, requestID string) ([]domain.TransactionAttempt, error) {
	if s.attempts == nil {
		return nil, domain.ErrNotFound
	}
	return s.attempts.ListByRequest(ctx, requestID)
}

// Receipt returns the archived outcome JSON for a trace.
func (s *SwapService) Receipt(ctx context.Context, traceID string) ([]byte, error) {
	if s.receipts == nil {
		return nil, domain.ErrNotFound
	}
	return s.receipts.Load(ctx, traceID)
}

func (s *SwapService) allow(ctx context.Context, caller string) error {
	if s.limiter == nil || s.cfg.RateLimit <= 0 {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "swap:"+strings.ToLower(caller), s.cfg.RateLimit, s.cfg.RateWindow)
	if err != nil {
		// Fail open: a limiter outage must not block trading.
		s.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return fmt.Errorf("swap_service: caller %s: %w", caller, domain.ErrRateLimited)
	}
	return nil
}

func (s *SwapService) newRequest(traceID, caller string) (*domain.RequestContext, Session) {
	session := s.sessions(s.cfg.Wallet)
	rc := domain.NewRequestContext(domain.RequestOptions{
		TraceID: traceID,
		Caller:  caller,
		Wallet:  s.cfg.Wallet,
		Timeout: s.cfg.RequestTimeout,
		Providers: domain.Providers{
			Signer:    s.signer,
			Submitter: s.submitter,
			Progress:  s.progress,
			Balances:  session,
		},
		Logger: s.logger,
		Now:    s.now(),
	})
	return rc, session
}

// resolveAsset prefers configured assets, then the oracle.
func (s *SwapService) resolveAsset(ctx context.Context, a domain.Asset) (domain.Asset, error) {
	if k, ok := s.lookupKnown(a); ok && k.Kind != "" && k.Resolved() {
		return k, nil
	} else if ok {
		a = k
	}
	resolved, err := s.assets.ResolveAsset(ctx, a)
	if err != nil {
		return domain.Asset{}, err
	}
	if !resolved.Resolved() {
		return domain.Asset{}, domain.NewError(domain.KindValidation, "swap_service: resolve asset",
			fmt.Sprintf("asset %s could not be resolved", a))
	}
	return resolved, nil
}

func (s *SwapService) lookupKnown(a domain.Asset) (domain.Asset, bool) {
	if a.Address != "" {
		k, ok := s.known["addr:"+strings.ToLower(a.Address)]
		return k, ok
	}
	if a.Symbol != "" {
		k, ok := s.known["sym:"+strings.ToUpper(a.Symbol)]
		return k, ok
	}
	return domain.Asset{}, false
}

func (s *SwapService) explorer(hash string) string {
	if hash == "" || s.cfg.ExplorerURL == nil {
		return ""
	}
	return s.cfg.ExplorerURL(hash)
}

func (s *SwapService) fail(outcome domain.SwapOutcome, err error) domain.SwapOutcome {
	outcome.FinishedAt = s.now().UTC()
	outcome.ErrorKind = domain.KindOf(err)
	outcome.Error = err.Error()
	outcome.Summary = Summarize(outcome, err)
	return outcome
}

// record writes the outcome to every configured bookkeeping backend. Each
// step is best effort; failures are logged.
func (s *SwapService) record(ctx context.Context, log *slog.Logger, outcome domain.SwapOutcome) {
	event := "swap_completed"
	if !outcome.Succeeded() {
		event = "swap_failed"
	}

	if s.audit != nil {
		detail := map[string]any{
			"trace_id": outcome.TraceID,
			"caller":   outcome.Caller,
			"sell":     outcome.Request.Sell.String(),
			"buy":      outcome.Request.Buy.String(),
			"summary":  outcome.Summary,
		}
		if outcome.ErrorKind != "" {
			detail["error_kind"] = string(outcome.ErrorKind)
		}
		if outcome.Result != nil {
			if h := outcome.Result.LastTxHash(); h != "" {
				detail["tx_hash"] = h
			}
		}
		if err := s.audit.Log(ctx, event, detail); err != nil {
			log.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(map[string]any{"event": event, "outcome": outcome})
		if err != nil {
			log.WarnContext(ctx, "marshal outcome failed", slog.String("error", err.Error()))
		} else {
			if err := s.bus.Publish(ctx, ChannelSwaps, payload); err != nil {
				log.WarnContext(ctx, "publish outcome failed", slog.String("error", err.Error()))
			}
			if err := s.bus.StreamAppend(ctx, StreamSwaps, payload); err != nil {
				log.WarnContext(ctx, "stream outcome failed", slog.String("error", err.Error()))
			}
		}
	}

	if s.receipts != nil {
		if err := s.receipts.Archive(ctx, outcome); err != nil {
			log.WarnContext(ctx, "archive receipt failed", slog.String("error", err.Error()))
		}
	}

	log.InfoContext(ctx, event,
		slog.String("sell", outcome.Request.Sell.String()),
		slog.String("buy", outcome.Request.Buy.String()),
		slog.String("error_kind", string(outcome.ErrorKind)),
		slog.Duration("elapsed", outcome.FinishedAt.Sub(outcome.StartedAt)),
	)
}

func lastHash(r *domain.ExecutionResult) string {
	if r == nil {
		return ""
	}
	return r.LastTxHash()
}

func human(amount *big.Int, a domain.Asset) string {
	if amount == nil {
		return "?"
	}
	return domain.FromBaseUnits(amount, a.Decimals).Round(6).String() + " " + a.String()
}
