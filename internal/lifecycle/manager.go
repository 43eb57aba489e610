// Package lifecycle drives one hop from quote to confirmed receipt.
package lifecycle

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/chain"
	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/resilience"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
)

// Advisor explains a shortfall.
type Advisor interface {
	Advise(ctx context.Context, rc *domain.RequestContext, s domain.Shortfall) (domain.ShortfallAdvice, error)
}

// Config tunes retries and confirmation.
type Config struct {
	Confirmations  uint64
	ConfirmTimeout time.Duration
	// SignAttempts and ConfirmAttempts count total calls, first try included.
	SignAttempts    int
	ConfirmAttempts int
	RetryDelay      time.Duration
	MaxRetryDelay   time.Duration
	LockTTL         time.Duration
	LockAttempts    int
	// QuoteMargin is how long before its deadline a quote counts as stale.
	QuoteMargin time.Duration
	// ExplorerTxURL is prefixed to transaction hashes in user messages.
	ExplorerTxURL string
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() Config {
	return Config{
		Confirmations:   1,
		ConfirmTimeout:  60 * time.Second,
		SignAttempts:    4,
		ConfirmAttempts: 4,
		RetryDelay:      time.Second,
		MaxRetryDelay:   30 * time.Second,
		LockTTL:         30 * time.Second,
		LockAttempts:    20,
		QuoteMargin:     15 * time.Second,
	}
}

// Manager runs hops. It holds no per-request state.
type Manager struct {
	quoters  map[domain.Venue]Quoter
	chain    domain.ChainReader
	advisor  Advisor
	attempts domain.AttemptStore // optional
	locks    domain.LockManager  // optional
	cfg      Config
	now      func() time.Time
}

// NewManager creates a Manager. attempts and locks may be nil.
func NewManager(
	quoters map[domain.Venue]Quoter,
	chain domain.ChainReader,
	advisor Advisor,
	attempts domain.AttemptStore,
	locks domain.LockManager,
	cfg Config,
) *Manager {
	def := DefaultConfig()
	if cfg.SignAttempts <= 0 {
		cfg.SignAttempts = def.SignAttempts
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = def.ConfirmAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.LockAttempts <= 0 {
		cfg.LockAttempts = def.LockAttempts
	}
	if cfg.QuoteMargin <= 0 {
		cfg.QuoteMargin = def.QuoteMargin
	}
	if cfg.Confirmations == 0 {
		cfg.Confirmations = def.Confirmations
	}
	return &Manager{
		quoters:  quoters,
		chain:    chain,
		advisor:  advisor,
		attempts: attempts,
		locks:    locks,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ExplorerURL links a transaction hash, or returns "" when unconfigured.
func (m *Manager) ExplorerURL(hash string) string {
	if m.cfg.ExplorerTxURL == "" || hash == "" {
		return ""
	}
	return strings.TrimSuffix(m.cfg.ExplorerTxURL, "/") + "/" + hash
}

// hopRun is the mutable state of one RunHop call.
type hopRun struct {
	m       *Manager
	rc      *domain.RequestContext
	hop     domain.Hop
	attempt domain.TransactionAttempt
	logger  *slog.Logger
}

// RunHop executes hop for the request. The returned HopResult is populated
// on failure too, so callers can report the attempt. A DecodeError is
// returned together with a Degraded result.
func (m *Manager) RunHop(ctx context.Context, rc *domain.RequestContext, hop domain.Hop) (domain.HopResult, error) {
	ctx, cancel := rc.Bound(ctx)
	defer cancel()

	r := &hopRun{
		m:       m,
		rc:      rc,
		hop:     hop,
		attempt: domain.NewAttempt(uuid.NewString(), rc.TraceID(), hop.Index, m.now().UTC()),
		logger: rc.Logger("lifecycle").With(
			slog.Int("hop", hop.Index),
			slog.String("venue", string(hop.Venue)),
		),
	}
	res, err := r.run(ctx)
	res.Hop = hop
	res.Attempt = r.attempt
	if err != nil {
		r.attempt.Error = err.Error()
		res.Attempt = r.attempt
		r.save(ctx)
		r.logger.WarnContext(ctx, "hop failed",
			slog.String("state", string(r.attempt.State)),
			slog.String("kind", string(domain.KindOf(err))),
			slog.String("error", err.Error()),
		)
	}
	return res, err
}

func (r *hopRun) run(ctx context.Context) (domain.HopResult, error) {
	var res domain.HopResult
	if r.hop.SellAmount == nil || r.hop.SellAmount.Sign() <= 0 {
		return res, r.abort(ctx, domain.NewError(domain.KindValidation, "lifecycle", "hop has no sell amount"))
	}

	quote, err := r.quote(ctx)
	if err != nil {
		return res, r.abort(ctx, err)
	}
	res.QuotedBuy = quote.BuyAmount

	if err := r.checkBalance(ctx, quote); err != nil {
		return res, r.abort(ctx, err)
	}
	if err := r.ensureAllowance(ctx, quote); err != nil {
		return res, r.abort(ctx, err)
	}
	if quote, err = r.refresh(ctx, quote); err != nil {
		return res, r.abort(ctx, err)
	}
	res.QuotedBuy = quote.BuyAmount

	data, err := r.sign(ctx, quote)
	if err != nil {
		return res, r.abort(ctx, err)
	}

	// Native output leaves no Transfer log, so it is measured as a balance
	// delta around the swap.
	var nativeBefore *big.Int
	if r.hop.Buy.IsNative() && r.hop.Venue != domain.VenueWrap {
		if nativeBefore, err = r.balance(ctx, r.hop.Buy); err != nil {
			r.logger.WarnContext(ctx, "native balance snapshot failed", slog.String("error", err.Error()))
		}
	}

	hash, err := r.submit(ctx, domain.TxRequest{
		From:  r.rc.Wallet(),
		To:    quote.Tx.To,
		Data:  data,
		Value: quote.Tx.Value,
		Gas:   quote.Tx.Gas,
	})
	if err != nil {
		return res, r.abort(ctx, err)
	}
	r.attempt.TxHash = hash
	r.advance(ctx, domain.AttemptSubmitted)
	r.progress(ctx, domain.StageTxSubmitted, hash, fmt.Sprintf("Swap %s -> %s submitted", r.hop.Sell, r.hop.Buy))

	receipt, err := r.confirm(ctx, hash, "swap")
	if err != nil {
		return res, err
	}

	realized, err := r.decode(ctx, receipt, nativeBefore)
	if err != nil {
		res.Degraded = true
		return res, err
	}
	res.RealizedBuy = realized
	r.attempt.RealizedBuy = realized
	r.save(ctx)
	return res, nil
}

func (r *hopRun) quote(ctx context.Context) (domain.Quote, error) {
	quote, err := r.fetch(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	r.attempt.QuoteID = quote.ID
	r.attempt.QuotedBuy = quote.BuyAmount
	r.advance(ctx, domain.AttemptQuoted)
	r.progress(ctx, domain.StageQuoteObtained, "", "Quote: "+r.describe(quote))
	return quote, nil
}

// refresh re-quotes when quote has gone stale, typically while an approval
// was confirming. The hop's sell amount is reused unchanged.
func (r *hopRun) refresh(ctx context.Context, quote domain.Quote) (domain.Quote, error) {
	if !quote.Stale(r.m.now(), r.m.cfg.QuoteMargin) {
		return quote, nil
	}
	r.logger.InfoContext(ctx, "quote expired, re-quoting",
		slog.String("quote_id", quote.ID),
		slog.Time("expires_at", quote.ExpiresAt),
	)
	fresh, err := r.fetch(ctx)
	if err != nil {
		return domain.Quote{}, err
	}
	if fresh.Stale(r.m.now(), r.m.cfg.QuoteMargin) {
		return domain.Quote{}, domain.NewError(domain.KindUpstreamError, "lifecycle: quote",
			fmt.Sprintf("quote %s expires before it can be submitted", fresh.ID))
	}
	r.attempt.QuoteID = fresh.ID
	r.attempt.QuotedBuy = fresh.BuyAmount
	r.save(ctx)
	r.progress(ctx, domain.StageQuoteObtained, "", "Quote refreshed: "+r.describe(fresh))
	return fresh, nil
}

func (r *hopRun) describe(quote domain.Quote) string {
	return fmt.Sprintf("%s %s for %s %s",
		domain.FromBaseUnits(r.hop.SellAmount, r.hop.Sell.Decimals), r.hop.Sell,
		domain.FromBaseUnits(quote.BuyAmount, r.hop.Buy.Decimals), r.hop.Buy)
}

// fetch asks the hop's venue for a quote on the hop's sell amount.
func (r *hopRun) fetch(ctx context.Context) (domain.Quote, error) {
	q, ok := r.m.quoters[r.hop.Venue]
	if !ok {
		return domain.Quote{}, domain.NewError(domain.KindValidation, "lifecycle: quote",
			fmt.Sprintf("no quoter for venue %s", r.hop.Venue))
	}
	quote, err := q.Quote(ctx, r.rc, r.hop)
	if err != nil {
		if domain.KindOf(err) != "" {
			return domain.Quote{}, err
		}
		return domain.Quote{}, domain.WrapError(domain.KindUpstreamError, "lifecycle: quote", "quote request failed", err)
	}
	if !quote.LiquidityAvailable || quote.BuyAmount == nil || quote.BuyAmount.Sign() <= 0 {
		return domain.Quote{}, domain.NewError(domain.KindNoLiquidity, "lifecycle: quote",
			fmt.Sprintf("no liquidity to swap %s for %s", r.hop.Sell, r.hop.Buy))
	}
	return quote, nil
}

// balance reads the wallet's holding of asset, bypassing any cache.
func (r *hopRun) balance(ctx context.Context, asset domain.Asset) (*big.Int, error) {
	if b := r.rc.Providers().Balances; b != nil {
		return b.FreshBalance(ctx, asset)
	}
	return r.m.chain.BalanceOf(ctx, asset, r.rc.Wallet())
}

// checkBalance re-reads the sell balance.
func (r *hopRun) checkBalance(ctx context.Context, quote domain.Quote) error {
	available, err := r.balance(ctx, r.hop.Sell)
	if err != nil {
		if domain.KindOf(err) != "" {
			return err
		}
		return domain.WrapError(domain.KindUpstreamError, "lifecycle: balance", "balance re-check failed", err)
	}

	required := r.hop.SellAmount
	if bi := quote.BalanceIssue; bi != nil && bi.Expected != nil && bi.Actual != nil && bi.Actual.Cmp(bi.Expected) < 0 {
		if bi.Expected.Cmp(required) > 0 {
			required = bi.Expected
		}
		if bi.Actual.Cmp(available) < 0 {
			available = bi.Actual
		}
	}
	if available.Cmp(required) >= 0 {
		return nil
	}

	short := domain.Shortfall{Asset: r.hop.Sell, Required: required, Available: available}
	advice, advErr := r.m.advisor.Advise(ctx, r.rc, short)
	if advErr != nil {
		r.logger.WarnContext(ctx, "shortfall advice incomplete", slog.String("error", advErr.Error()))
	}
	r.progress(ctx, domain.StageShortfall, "", advice.Message)
	return &domain.Error{
		Kind:    domain.KindInsufficientFunds,
		Op:      "lifecycle: balance",
		Message: advice.Message,
		Advice:  &advice,
	}
}

func (r *hopRun) ensureAllowance(ctx context.Context, quote domain.Quote) error {
	issue := quote.AllowanceIssue
	if issue == nil || r.hop.Sell.IsNative() {
		r.advance(ctx, domain.AttemptAllowanceChecked)
		return nil
	}
	const op = "lifecycle: allowance"

	data, err := chain.ApproveCalldata(common.HexToAddress(issue.Spender), math.MaxBig256)
	if err != nil {
		return domain.WrapError(domain.KindAllowanceFailure, op, "encode approve", err)
	}
	token := issue.Token
	if token == "" {
		token = r.hop.Sell.Address
	}
	hash, err := r.submit(ctx, domain.TxRequest{From: r.rc.Wallet(), To: token, Data: data, Value: new(big.Int)})
	if err != nil {
		return domain.WrapError(domain.KindAllowanceFailure, op, "approval submission failed", err)
	}
	r.attempt.ApprovalTxHash = hash
	r.save(ctx)
	r.progress(ctx, domain.StageApprovalSubmitted, hash, fmt.Sprintf("Approving %s for %s", r.hop.Sell, issue.Spender))

	receipt, err := r.waitReceipt(ctx, hash)
	if err != nil {
		return &domain.Error{Kind: domain.KindAllowanceFailure, Op: op,
			Message: fmt.Sprintf("approval %s not confirmed; check %s before retrying", hash, r.link(hash)),
			Cause:   err, TxHash: hash}
	}
	if !receipt.Success {
		return &domain.Error{Kind: domain.KindAllowanceFailure, Op: op,
			Message: fmt.Sprintf("approval %s reverted", hash), TxHash: hash}
	}

	r.attempt.AllowanceGranted = true
	r.advance(ctx, domain.AttemptAllowanceChecked)
	r.progress(ctx, domain.StageApprovalConfirmed, hash, fmt.Sprintf("Approval for %s confirmed", r.hop.Sell))
	return nil
}

// sign returns the calldata to submit, with the signature attached when
// the quote requires one.
func (r *hopRun) sign(ctx context.Context, quote domain.Quote) ([]byte, error) {
	data := quote.Tx.Data
	if quote.SignaturePayload == nil {
		r.advance(ctx, domain.AttemptSigned)
		return data, nil
	}
	signer := r.rc.Providers().Signer
	if signer == nil {
		return nil, domain.NewError(domain.KindSigningFailure, "lifecycle: sign", "no signer configured")
	}

	payload := *quote.SignaturePayload
	sig, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context, attempt int) (string, error) {
		return signer.SignTypedData(ctx, payload)
	}, r.m.cfg.SignAttempts, r.m.cfg.RetryDelay,
		resilience.WithMaxDelay(r.m.cfg.MaxRetryDelay),
		resilience.OnRetry(func(attempt int, err error, delay time.Duration) {
			r.logger.WarnContext(ctx, "signing failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return nil, domain.WrapError(domain.KindSigningFailure, "lifecycle: sign",
			fmt.Sprintf("could not sign quote %s", quote.ID), err)
	}

	out, err := AttachSignature(data, sig, quote.SignatureEncoding)
	if err != nil {
		return nil, domain.WrapError(domain.KindSigningFailure, "lifecycle: sign", "malformed signature", err)
	}
	r.attempt.Signature = sig
	r.advance(ctx, domain.AttemptSigned)
	return out, nil
}

// submit sends tx exactly once while holding the wallet's submission lock.
func (r *hopRun) submit(ctx context.Context, tx domain.TxRequest) (string, error) {
	const op = "lifecycle: submit"
	sub := r.rc.Providers().Submitter
	if sub == nil {
		return "", domain.NewError(domain.KindSubmissionFailure, op, "no submitter configured")
	}

	if r.m.locks != nil {
		key := "lock:submit:" + strings.ToLower(r.rc.Wallet())
		unlock, err := resilience.RetryWithBackoff(ctx, func(ctx context.Context, _ int) (func(), error) {
			return r.m.locks.Acquire(ctx, key, r.m.cfg.LockTTL)
		}, r.m.cfg.LockAttempts, 100*time.Millisecond,
			resilience.WithMaxDelay(time.Second),
			resilience.RetryIf(func(err error) bool { return errors.Is(err, domain.ErrLockHeld) }),
		)
		if err != nil {
			return "", domain.WrapError(domain.KindSubmissionFailure, op, "wallet submission lock unavailable", err)
		}
		defer unlock()
	}

	hash, err := sub.SendTransaction(ctx, tx)
	if err != nil {
		return "", domain.WrapError(domain.KindSubmissionFailure, op, "transaction was not accepted", err)
	}
	if strings.TrimSpace(hash) == "" {
		return "", domain.NewError(domain.KindSubmissionFailure, op, "submission returned no transaction hash")
	}
	return hash, nil
}

// waitReceipt polls for a receipt, retrying only receipt timeouts while the
// request is still alive.
func (r *hopRun) waitReceipt(ctx context.Context, hash string) (domain.Receipt, error) {
	return resilience.RetryWithBackoff(ctx, func(ctx context.Context, attempt int) (domain.Receipt, error) {
		return r.m.chain.WaitForTransaction(ctx, hash, r.m.cfg.Confirmations, r.m.cfg.ConfirmTimeout)
	}, r.m.cfg.ConfirmAttempts, r.m.cfg.RetryDelay,
		resilience.WithMaxDelay(r.m.cfg.MaxRetryDelay),
		resilience.RetryIf(func(err error) bool {
			return errors.Is(err, domain.ErrReceiptTimeout) && ctx.Err() == nil
		}),
		resilience.OnRetry(func(attempt int, err error, delay time.Duration) {
			r.logger.InfoContext(ctx, "receipt not yet available",
				slog.String("tx_hash", hash),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
		}),
	)
}

// confirm waits for the main transaction. It never resubmits.
func (r *hopRun) confirm(ctx context.Context, hash, what string) (domain.Receipt, error) {
	const op = "lifecycle: confirm"
	receipt, err := r.waitReceipt(ctx, hash)
	if err != nil {
		r.advance(ctx, domain.AttemptTimedOut)
		msg := fmt.Sprintf("%s %s was submitted but not confirmed in time; check %s before retrying", what, hash, r.link(hash))
		r.progress(ctx, domain.StageTxTimedOut, hash, msg)
		return domain.Receipt{}, &domain.Error{Kind: domain.KindConfirmationTimeout, Op: op, Message: msg, Cause: err, TxHash: hash}
	}
	if !receipt.Success {
		r.advance(ctx, domain.AttemptReverted)
		msg := fmt.Sprintf("%s %s reverted on-chain", what, hash)
		r.progress(ctx, domain.StageTxFailed, hash, msg)
		return receipt, &domain.Error{Kind: domain.KindTransactionReverted, Op: op, Message: msg, TxHash: hash}
	}
	r.advance(ctx, domain.AttemptConfirmed)
	r.progress(ctx, domain.StageTxConfirmed, hash, fmt.Sprintf("Swap %s -> %s confirmed", r.hop.Sell, r.hop.Buy))
	return receipt, nil
}

// decode sums the buy token transferred to the wallet.
func (r *hopRun) decode(ctx context.Context, receipt domain.Receipt, nativeBefore *big.Int) (*big.Int, error) {
	if r.hop.Venue == domain.VenueWrap {
		return new(big.Int).Set(r.hop.SellAmount), nil
	}
	const op = "lifecycle: decode"
	if r.hop.Buy.IsNative() {
		return r.nativeReceived(ctx, receipt, nativeBefore)
	}
	total, ok := chain.SumReceived(receipt.Transfers, r.hop.Buy.Address, r.rc.Wallet())
	if !ok {
		return nil, &domain.Error{Kind: domain.KindDecodeError, Op: op,
			Message: fmt.Sprintf("no %s transfer to wallet found in %s", r.hop.Buy, receipt.TxHash), TxHash: receipt.TxHash}
	}
	return total, nil
}

// nativeReceived is the wallet's native balance change across the swap with
// the swap's own gas fee added back.
func (r *hopRun) nativeReceived(ctx context.Context, receipt domain.Receipt, before *big.Int) (*big.Int, error) {
	const op = "lifecycle: decode"
	fail := func(msg string, cause error) error {
		return &domain.Error{Kind: domain.KindDecodeError, Op: op, Message: msg, Cause: cause, TxHash: receipt.TxHash}
	}
	if before == nil {
		return nil, fail("native balance before the swap is unknown", nil)
	}
	fee := receipt.Fee()
	if fee == nil {
		return nil, fail(fmt.Sprintf("gas price of %s is unknown", receipt.TxHash), nil)
	}
	after, err := r.balance(ctx, r.hop.Buy)
	if err != nil {
		return nil, fail("native balance re-read failed", err)
	}
	received := new(big.Int).Sub(after, before)
	received.Add(received, fee)
	if received.Sign() <= 0 {
		return nil, fail(fmt.Sprintf("no %s received in %s", r.hop.Buy, receipt.TxHash), nil)
	}
	return received, nil
}

func (r *hopRun) abort(ctx context.Context, err error) error {
	if !r.attempt.State.Terminal() && r.attempt.State != domain.AttemptSubmitted {
		r.advance(ctx, domain.AttemptAborted)
	}
	return err
}

func (r *hopRun) advance(ctx context.Context, s domain.AttemptState) {
	if err := r.attempt.Advance(s, r.m.now().UTC()); err != nil {
		r.logger.ErrorContext(ctx, "attempt transition rejected", slog.String("error", err.Error()))
		return
	}
	r.save(ctx)
}

// save persists the attempt; failures are logged and never fail the hop.
func (r *hopRun) save(ctx context.Context) {
	if r.m.attempts == nil {
		return
	}
	if err := r.m.attempts.Save(context.WithoutCancel(ctx), r.attempt); err != nil {
		r.logger.WarnContext(ctx, "persist attempt failed",
			slog.String("attempt_id", r.attempt.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *hopRun) progress(ctx context.Context, stage domain.ProgressStage, hash, msg string) {
	r.rc.Progress(context.WithoutCancel(ctx), domain.ProgressEvent{
		Stage:       stage,
		HopIndex:    r.hop.Index,
		TxHash:      hash,
		Message:     msg,
		ExplorerURL: r.m.ExplorerURL(hash),
	})
}

func (r *hopRun) link(hash string) string {
	if u := r.m.ExplorerURL(hash); u != "" {
		return u
	}
	return "a block explorer"
}

// AttachSignature appends a hex signature to calldata. With
// SignatureEncodingLengthPrefixed the signature is preceded by its length as
// a 32-byte big-endian word; otherwise the raw bytes are appended.
func AttachSignature(data []byte, sig string, enc domain.SignatureEncoding) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	out := make([]byte, 0, len(data)+32+len(raw))
	out = append(out, data...)
	if enc == domain.SignatureEncodingLengthPrefixed {
		out = append(out, common.LeftPadBytes(big.NewInt(int64(len(raw))).Bytes(), 32)...)
	}
	return append(out, raw...), nil
}
