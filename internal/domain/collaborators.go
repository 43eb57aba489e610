package domain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ErrReceiptTimeout is returned by ChainReader.WaitForTransaction when the
// receipt could not be observed in time. It says nothing about the outcome.
var ErrReceiptTimeout = errors.New("receipt wait timed out")

// IntentExtractor turns free text into a structured request.
type IntentExtractor interface {
	Extract(ctx context.Context, caller, text string) (IntentResult, error)
}

// QuoteService prices aggregator hops.
type QuoteService interface {
	GetQuote(ctx context.Context, req QuoteRequest) (Quote, error)
}

// BondingCurve is the read/write surface of the creator-asset curve contract.
type BondingCurve interface {
	Address() string
	// CalculateTokensForBuy returns creator tokens received for deposit bridge units.
	CalculateTokensForBuy(ctx context.Context, subject string, deposit *big.Int) (*big.Int, error)
	// CalculateTokensForSell returns bridge units received for amount creator tokens.
	CalculateTokensForSell(ctx context.Context, subject string, amount *big.Int) (*big.Int, error)
	BuySharesV2(subject string, deposit, minReturn *big.Int, referrer string) ([]byte, error)
	SellSharesV2(subject string, amount, minReturn *big.Int, referrer string) ([]byte, error)
}

// SigningService produces EIP-712 signatures for a wallet.
type SigningService interface {
	Address() string
	SignTypedData(ctx context.Context, td TypedData) (string, error)
}

// SubmissionService broadcasts a transaction and returns its hash.
type SubmissionService interface {
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)
}

// Transfer is a decoded ERC20 Transfer event.
type Transfer struct {
	Token string
	From  string
	To    string
	Value *big.Int
}

// Receipt is a mined transaction as seen by the engine.
type Receipt struct {
	TxHash            string
	Success           bool
	BlockNumber       uint64
	GasUsed           uint64
	// EffectiveGasPrice is nil when the node did not report it.
	EffectiveGasPrice *big.Int
	Transfers         []Transfer
}

// Fee is GasUsed times EffectiveGasPrice, or nil when the price is unknown.
func (r Receipt) Fee() *big.Int {
	if r.EffectiveGasPrice == nil {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
}

// ChainReader is the RPC provider surface.
type ChainReader interface {
	BalanceOf(ctx context.Context, asset Asset, owner string) (*big.Int, error)
	Decimals(ctx context.Context, token string) (int32, error)
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	WaitForTransaction(ctx context.Context, hash string, confirmations uint64, timeout time.Duration) (Receipt, error)
}

// CreatorInfo is creator-asset metadata from the indexer.
type CreatorInfo struct {
	Token         string
	Subject       string
	Symbol        string
	Decimals      int32
	PriceInBridge decimal.Decimal
	Graduated     bool
}

// CreatorIndex is the subgraph surface.
type CreatorIndex interface {
	// CreatorAsset returns ErrNotFound when token is not a creator asset.
	CreatorAsset(ctx context.Context, token string) (CreatorInfo, error)
}

// MarketData returns indicative USD prices.
type MarketData interface {
	PriceUSD(ctx context.Context, asset Asset) (decimal.Decimal, error)
}

// PortfolioService returns USD-valued balances for a wallet.
type PortfolioService interface {
	Snapshot(ctx context.Context, wallet string) (PortfolioSnapshot, error)
}

// ProgressSink receives lifecycle checkpoints. Implementations must not
// block for long; errors are theirs to log.
type ProgressSink interface {
	Progress(ctx context.Context, ev ProgressEvent)
}
