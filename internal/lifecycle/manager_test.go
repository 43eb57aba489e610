package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x00000000000000000000000000000000000000A1"

var (
	usdc = domain.Asset{Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Symbol: "USDC", Decimals: 6, Kind: domain.AssetKindToken}
	weth = domain.Asset{Address: "0x4200000000000000000000000000000000000006", Symbol: "WETH", Decimals: 18, Kind: domain.AssetKindToken}
	eth  = domain.Asset{Address: domain.NativeAddress, Symbol: "ETH", Decimals: 18, Kind: domain.AssetKindNative}
)

// recorder captures the order of side effects across fakes.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeQuoter struct {
	quote domain.Quote
	err   error
	// later quotes are served, in order, after the first call.
	later []domain.Quote
	hops  []domain.Hop
}

func (f *fakeQuoter) Quote(_ context.Context, _ *domain.RequestContext, hop domain.Hop) (domain.Quote, error) {
	f.hops = append(f.hops, hop)
	if len(f.hops) > 1 && len(f.later) > 0 {
		q := f.later[0]
		f.later = f.later[1:]
		return q, f.err
	}
	return f.quote, f.err
}

type fakeSigner struct {
	rec   *recorder
	calls int
	fail  int // number of leading failures
}

func (f *fakeSigner) Address() string { return wallet }
func (f *fakeSigner) SignTypedData(context.Context, domain.TypedData) (string, error) {
	f.calls++
	f.rec.add("sign")
	if f.calls <= f.fail {
		return "", errors.New("signer unavailable")
	}
	return "0x" + fmt.Sprintf("%0130x", 1), nil
}

type fakeSubmitter struct {
	rec    *recorder
	txs    []domain.TxRequest
	hashes []string
	err    error
}

func (f *fakeSubmitter) SendTransaction(_ context.Context, tx domain.TxRequest) (string, error) {
	f.txs = append(f.txs, tx)
	f.rec.add("submit:%s", tx.To)
	if f.err != nil {
		return "", f.err
	}
	if len(f.hashes) == 0 {
		return "", nil
	}
	h := f.hashes[0]
	f.hashes = f.hashes[1:]
	return h, nil
}

type fakeChain struct {
	rec       *recorder
	receipts  map[string]domain.Receipt
	waitCalls int
	balance   *big.Int
	// native holds successive native balance reads.
	native    []*big.Int
	nativeErr error
	onWait    func()
}

func (f *fakeChain) BalanceOf(_ context.Context, asset domain.Asset, _ string) (*big.Int, error) {
	if asset.IsNative() {
		f.rec.add("native-balance")
		if f.nativeErr != nil {
			return nil, f.nativeErr
		}
		if len(f.native) > 0 {
			b := f.native[0]
			f.native = f.native[1:]
			return b, nil
		}
	}
	return f.balance, nil
}
func (f *fakeChain) Decimals(context.Context, string) (int32, error) { return 18, nil }
func (f *fakeChain) Allowance(context.Context, string, string, string) (*big.Int, error) {
	return new(big.Int), nil
}
func (f *fakeChain) WaitForTransaction(_ context.Context, hash string, _ uint64, _ time.Duration) (domain.Receipt, error) {
	f.waitCalls++
	f.rec.add("wait:%s", hash)
	if f.onWait != nil {
		f.onWait()
	}
	r, ok := f.receipts[hash]
	if !ok {
		return domain.Receipt{}, fmt.Errorf("wait %s: %w", hash, domain.ErrReceiptTimeout)
	}
	return r, nil
}

type fakeAdvisor struct{ calls int }

func (f *fakeAdvisor) Advise(_ context.Context, _ *domain.RequestContext, s domain.Shortfall) (domain.ShortfallAdvice, error) {
	f.calls++
	return domain.ShortfallAdvice{Asset: s.Asset, Required: s.Required, Available: s.Available, Missing: s.Missing(),
		Message: "Not enough " + s.Asset.Symbol}, nil
}

type memAttempts struct {
	mu     sync.Mutex
	states []domain.AttemptState
	last   domain.TransactionAttempt
}

func (m *memAttempts) Save(_ context.Context, a domain.TransactionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.states); n == 0 || m.states[n-1] != a.State {
		m.states = append(m.states, a.State)
	}
	m.last = a
	return nil
}

func (m *memAttempts) ListByRequest(context.Context, string) ([]domain.TransactionAttempt, error) {
	return []domain.TransactionAttempt{m.last}, nil
}

type progressLog struct {
	mu     sync.Mutex
	stages []domain.ProgressStage
}

func (p *progressLog) Progress(_ context.Context, ev domain.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, ev.Stage)
}

type memLocks struct{ acquired int }

func (m *memLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	m.acquired++
	return func() {}, nil
}

type harness struct {
	rec       *recorder
	quoter    *fakeQuoter
	signer    *fakeSigner
	submitter *fakeSubmitter
	chain     *fakeChain
	advisor   *fakeAdvisor
	attempts  *memAttempts
	progress  *progressLog
	locks     *memLocks
	mgr       *Manager
	rc        *domain.RequestContext
}

func newHarness() *harness {
	rec := &recorder{}
	h := &harness{
		rec:       rec,
		quoter:    &fakeQuoter{},
		signer:    &fakeSigner{rec: rec},
		submitter: &fakeSubmitter{rec: rec},
		chain:     &fakeChain{rec: rec, receipts: map[string]domain.Receipt{}, balance: big.NewInt(1_000_000_000)},
		advisor:   &fakeAdvisor{},
		attempts:  &memAttempts{},
		progress:  &progressLog{},
		locks:     &memLocks{},
	}
	h.mgr = NewManager(
		map[domain.Venue]Quoter{
			domain.VenueAggregator: h.quoter,
			domain.VenueWrap:       NewWrapQuoter(weth),
		},
		h.chain, h.advisor, h.attempts, h.locks,
		Config{RetryDelay: time.Millisecond, MaxRetryDelay: 5 * time.Millisecond, ExplorerTxURL: "https://basescan.org/tx"},
	)
	h.rc = domain.NewRequestContext(domain.RequestOptions{
		TraceID: "trace-1",
		Caller:  "alice",
		Wallet:  wallet,
		Providers: domain.Providers{
			Signer:    h.signer,
			Submitter: h.submitter,
			Progress:  h.progress,
		},
	})
	return h
}

func liquidQuote() domain.Quote {
	return domain.Quote{
		ID:                 "q-1",
		LiquidityAvailable: true,
		BuyAmount:          big.NewInt(500),
		Tx:                 domain.TxPayload{To: "0x0000000000000000000000000000000000000e0e", Data: []byte{0x01, 0x02}},
	}
}

func successReceipt(hash string, amount int64) domain.Receipt {
	return domain.Receipt{TxHash: hash, Success: true, Transfers: []domain.Transfer{
		{Token: weth.Address, From: "0x0000000000000000000000000000000000000e0e", To: "0x00000000000000000000000000000000000000a1", Value: big.NewInt(amount)},
	}}
}

func hop() domain.Hop {
	return domain.Hop{Index: 0, Sell: usdc, Buy: weth, Venue: domain.VenueAggregator, SellAmount: big.NewInt(1_000_000)}
}

func TestRunHopApprovesBeforeSwap(t *testing.T) {
	h := newHarness()
	q := liquidQuote()
	q.AllowanceIssue = &domain.AllowanceIssue{Token: usdc.Address, Spender: "0x000000000022D473030F116dDEE9F6B43aC78BA3", Actual: big.NewInt(0)}
	q.SignaturePayload = &domain.TypedData{Domain: json.RawMessage(`{}`), PrimaryType: "Permit"}
	q.SignatureEncoding = domain.SignatureEncodingLengthPrefixed
	h.quoter.quote = q
	h.submitter.hashes = []string{"0xapprove", "0xswap"}
	h.chain.receipts["0xapprove"] = domain.Receipt{TxHash: "0xapprove", Success: true}
	h.chain.receipts["0xswap"] = successReceipt("0xswap", 480)

	res, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.NoError(t, err)
	assert.Equal(t, int64(480), res.RealizedBuy.Int64())
	assert.Equal(t, int64(500), res.QuotedBuy.Int64())
	assert.False(t, res.Degraded)
	assert.True(t, res.Attempt.AllowanceGranted)
	assert.Equal(t, "0xapprove", res.Attempt.ApprovalTxHash)
	assert.Equal(t, domain.AttemptConfirmed, res.Attempt.State)

	assert.Equal(t, []string{
		"submit:" + usdc.Address,
		"wait:0xapprove",
		"sign",
		"submit:0x0000000000000000000000000000000000000e0e",
		"wait:0xswap",
	}, h.rec.list())

	assert.Equal(t, []domain.AttemptState{
		domain.AttemptQuoted,
		domain.AttemptAllowanceChecked,
		domain.AttemptSigned,
		domain.AttemptSubmitted,
		domain.AttemptConfirmed,
	}, h.attempts.states)

	swapTx := h.submitter.txs[1]
	require.Len(t, swapTx.Data, 2+32+65)
	assert.Equal(t, byte(65), swapTx.Data[2+31])
	assert.Equal(t, 2, h.locks.acquired)

	assert.Equal(t, []domain.ProgressStage{
		domain.StageQuoteObtained,
		domain.StageApprovalSubmitted,
		domain.StageApprovalConfirmed,
		domain.StageTxSubmitted,
		domain.StageTxConfirmed,
	}, h.progress.stages)
}

func TestRunHopNoLiquidityNeverSubmits(t *testing.T) {
	h := newHarness()
	h.quoter.quote = domain.Quote{ID: "q", LiquidityAvailable: false}

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)
	assert.Empty(t, h.submitter.txs)
	assert.Equal(t, domain.AttemptAborted, h.attempts.last.State)
}

func TestRunHopSigningGivesUpAfterFourCalls(t *testing.T) {
	h := newHarness()
	q := liquidQuote()
	q.SignaturePayload = &domain.TypedData{PrimaryType: "Permit"}
	h.quoter.quote = q
	h.signer.fail = 100

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindSigningFailure))
	assert.Equal(t, 4, h.signer.calls)
	assert.Empty(t, h.submitter.txs)
}

func TestRunHopSigningRecovers(t *testing.T) {
	h := newHarness()
	q := liquidQuote()
	q.SignaturePayload = &domain.TypedData{PrimaryType: "Permit"}
	h.quoter.quote = q
	h.signer.fail = 3
	h.submitter.hashes = []string{"0xswap"}
	h.chain.receipts["0xswap"] = successReceipt("0xswap", 1)

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.NoError(t, err)
	assert.Equal(t, 4, h.signer.calls)
}

func TestRunHopEmptyHashIsSubmissionFailure(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindSubmissionFailure))
	assert.Len(t, h.submitter.txs, 1)
	assert.Zero(t, h.chain.waitCalls)
}

func TestRunHopSubmitErrorNotRetried(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.err = errors.New("nonce too low")

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSubmissionFailure)
	assert.Len(t, h.submitter.txs, 1)
}

func TestRunHopConfirmationExhaustion(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.hashes = []string{"0xslow"}

	res, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfirmationTimeout, domain.KindOf(err))
	assert.Contains(t, err.Error(), "https://basescan.org/tx/0xslow")
	assert.Equal(t, 4, h.chain.waitCalls)
	assert.Len(t, h.submitter.txs, 1)
	assert.Equal(t, domain.AttemptTimedOut, res.Attempt.State)
	assert.Equal(t, domain.ReceiptTimedOut, res.Attempt.ReceiptStatus)
	assert.Contains(t, h.progress.stages, domain.StageTxTimedOut)
}

func TestRunHopDeadlineStopsPolling(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.hashes = []string{"0xslow"}
	rc := domain.NewRequestContext(domain.RequestOptions{
		TraceID: "trace-2", Wallet: wallet, Timeout: time.Nanosecond,
		Providers: domain.Providers{Signer: h.signer, Submitter: h.submitter},
	})

	_, err := h.mgr.RunHop(context.Background(), rc, hop())
	require.Error(t, err)
	assert.Equal(t, domain.KindConfirmationTimeout, domain.KindOf(err))
	assert.Equal(t, 1, h.chain.waitCalls)
	assert.Len(t, h.submitter.txs, 1)
}

func TestRunHopReverted(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.hashes = []string{"0xbad"}
	h.chain.receipts["0xbad"] = domain.Receipt{TxHash: "0xbad", Success: false}

	res, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReverted)
	assert.Equal(t, domain.AttemptReverted, res.Attempt.State)
	assert.Contains(t, h.progress.stages, domain.StageTxFailed)
}

func TestRunHopUndecodableOutputIsDegraded(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.hashes = []string{"0xswap"}
	h.chain.receipts["0xswap"] = domain.Receipt{TxHash: "0xswap", Success: true}

	res, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDecode)
	assert.True(t, res.Degraded)
	assert.Equal(t, domain.AttemptConfirmed, res.Attempt.State)
}

func TestRunHopShortfallAdvises(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.chain.balance = big.NewInt(10)

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	adv := domain.AdviceOf(err)
	require.NotNil(t, adv)
	assert.Equal(t, int64(999_990), adv.Missing.Int64())
	assert.Equal(t, 1, h.advisor.calls)
	assert.Empty(t, h.submitter.txs)
	assert.Contains(t, h.progress.stages, domain.StageShortfall)
}

func TestRunHopQuoteBalanceIssue(t *testing.T) {
	h := newHarness()
	q := liquidQuote()
	q.BalanceIssue = &domain.BalanceIssue{Token: usdc.Address, Actual: big.NewInt(5), Expected: big.NewInt(1_000_000)}
	h.quoter.quote = q

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestRunHopWrapRealizesSellAmount(t *testing.T) {
	h := newHarness()
	h.submitter.hashes = []string{"0xwrap"}
	h.chain.receipts["0xwrap"] = domain.Receipt{TxHash: "0xwrap", Success: true}
	wrapHop := domain.Hop{Index: 0, Sell: eth, Buy: weth, Venue: domain.VenueWrap, SellAmount: big.NewInt(777)}

	res, err := h.mgr.RunHop(context.Background(), h.rc, wrapHop)
	require.NoError(t, err)
	assert.Equal(t, int64(777), res.RealizedBuy.Int64())
	require.Len(t, h.submitter.txs, 1)
	assert.Equal(t, weth.Address, h.submitter.txs[0].To)
	assert.Equal(t, int64(777), h.submitter.txs[0].Value.Int64())
}

func TestAttachSignature(t *testing.T) {
	out, err := AttachSignature([]byte{0xaa}, "0x0102", domain.SignatureEncodingLengthPrefixed)
	require.NoError(t, err)
	require.Len(t, out, 1+32+2)
	assert.Equal(t, byte(0xaa), out[0])
	assert.Equal(t, byte(2), out[32])
	assert.Equal(t, []byte{0x01, 0x02}, out[33:])

	raw, err := AttachSignature([]byte{0xaa}, "0102", domain.SignatureEncodingNone)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0x01, 0x02}, raw)

	_, err = AttachSignature(nil, "zz", domain.SignatureEncodingNone)
	require.Error(t, err)
}

func TestRunHopRequotesExpiredQuoteWithSameAmount(t *testing.T) {
	h := newHarness()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.mgr.now = func() time.Time { return clock }
	h.chain.onWait = func() { clock = clock.Add(2 * time.Minute) }

	first := liquidQuote()
	first.ExpiresAt = clock.Add(time.Minute)
	first.AllowanceIssue = &domain.AllowanceIssue{Token: usdc.Address, Spender: "0x000000000022D473030F116dDEE9F6B43aC78BA3", Actual: big.NewInt(0)}
	second := liquidQuote()
	second.ID = "q-2"
	second.BuyAmount = big.NewInt(490)
	second.ExpiresAt = clock.Add(10 * time.Minute)
	second.Tx.Data = []byte{0x09}
	h.quoter.quote = first
	h.quoter.later = []domain.Quote{second}
	h.submitter.hashes = []string{"0xapprove", "0xswap"}
	h.chain.receipts["0xapprove"] = domain.Receipt{TxHash: "0xapprove", Success: true}
	h.chain.receipts["0xswap"] = successReceipt("0xswap", 488)

	res, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.NoError(t, err)

	require.Len(t, h.quoter.hops, 2)
	assert.Equal(t, 0, h.quoter.hops[0].SellAmount.Cmp(h.quoter.hops[1].SellAmount))
	assert.Equal(t, int64(1_000_000), h.quoter.hops[1].SellAmount.Int64())
	assert.Equal(t, int64(490), res.QuotedBuy.Int64())
	assert.Equal(t, "q-2", res.Attempt.QuoteID)
	require.Len(t, h.submitter.txs, 2)
	assert.Equal(t, []byte{0x09}, h.submitter.txs[1].Data)
}

func TestRunHopFreshQuoteIsNotRefetched(t *testing.T) {
	h := newHarness()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.mgr.now = func() time.Time { return clock }
	q := liquidQuote()
	q.ExpiresAt = clock.Add(5 * time.Minute)
	h.quoter.quote = q
	h.submitter.hashes = []string{"0xswap"}
	h.chain.receipts["0xswap"] = successReceipt("0xswap", 500)

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.NoError(t, err)
	assert.Len(t, h.quoter.hops, 1)
}

func TestRunHopRequoteStillExpiredAborts(t *testing.T) {
	h := newHarness()
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.mgr.now = func() time.Time { return clock }
	q := liquidQuote()
	q.ExpiresAt = clock.Add(time.Second)
	h.quoter.quote = q

	_, err := h.mgr.RunHop(context.Background(), h.rc, hop())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindUpstreamError))
	assert.Len(t, h.quoter.hops, 2)
	assert.Empty(t, h.submitter.txs)
}

func nativeHop() domain.Hop {
	return domain.Hop{Index: 0, Sell: usdc, Buy: eth, Venue: domain.VenueAggregator, SellAmount: big.NewInt(1_000_000)}
}

func TestRunHopMeasuresNativeOutput(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.hashes = []string{"0xswap"}
	h.chain.native = []*big.Int{big.NewInt(10_000), big.NewInt(10_400)}
	h.chain.receipts["0xswap"] = domain.Receipt{TxHash: "0xswap", Success: true, GasUsed: 100, EffectiveGasPrice: big.NewInt(2)}

	res, err := h.mgr.RunHop(context.Background(), h.rc, nativeHop())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	// 400 delta plus 200 paid in gas.
	assert.Equal(t, int64(600), res.RealizedBuy.Int64())
	assert.Equal(t, []string{
		"native-balance",
		"submit:0x0000000000000000000000000000000000000e0e",
		"wait:0xswap",
		"native-balance",
	}, h.rec.list())
}

func TestRunHopNativeOutputUnmeasurableIsDegraded(t *testing.T) {
	h := newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.hashes = []string{"0xswap"}
	h.chain.native = []*big.Int{big.NewInt(10_000), big.NewInt(10_400)}
	h.chain.receipts["0xswap"] = domain.Receipt{TxHash: "0xswap", Success: true, GasUsed: 100}

	res, err := h.mgr.RunHop(context.Background(), h.rc, nativeHop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDecode)
	assert.True(t, res.Degraded)
	assert.Nil(t, res.RealizedBuy)
	assert.Equal(t, domain.AttemptConfirmed, res.Attempt.State)

	h = newHarness()
	h.quoter.quote = liquidQuote()
	h.submitter.hashes = []string{"0xswap"}
	h.chain.nativeErr = errors.New("rpc down")
	h.chain.receipts["0xswap"] = domain.Receipt{TxHash: "0xswap", Success: true, GasUsed: 100, EffectiveGasPrice: big.NewInt(2)}

	res, err = h.mgr.RunHop(context.Background(), h.rc, nativeHop())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDecode)
	assert.True(t, res.Degraded)
	assert.Len(t, h.submitter.txs, 1)
}
