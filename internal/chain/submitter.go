package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxSigner signs transactions for a single account.
type TxSigner interface {
	Account() common.Address
	SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

// SubmitterOptions tunes fee and gas selection.
type SubmitterOptions struct {
	GasMultiplier  float64
	MaxPriorityFee *big.Int // wei; nil uses the node suggestion
	MaxFee         *big.Int // wei; nil uses 2*baseFee + tip
}

// Submitter implements domain.SubmissionService with EIP-1559 transactions
// signed by a local key.
type Submitter struct {
	backend Backend
	signer  TxSigner
	opts    SubmitterOptions
	logger  *slog.Logger

	mu      sync.Mutex
	chainID *big.Int
}

// NewSubmitter creates a Submitter.
func NewSubmitter(backend Backend, signer TxSigner, opts SubmitterOptions, logger *slog.Logger) *Submitter {
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		backend: backend,
		signer:  signer,
		opts:    opts,
		logger:  logger.With(slog.String("component", "submitter")),
	}
}

func (s *Submitter) loadChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.chainID = id
	return id, nil
}

// SendTransaction estimates gas, prices fees, signs and broadcasts tx. It
// returns the transaction hash; it never retries.
func (s *Submitter) SendTransaction(ctx context.Context, req domain.TxRequest) (string, error) {
	from := s.signer.Account()
	if req.From != "" && !strings.EqualFold(req.From, from.Hex()) {
		return "", fmt.Errorf("chain: submit: sender %s does not match signer %s", req.From, from.Hex())
	}
	chainID, err := s.loadChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain: read chain id: %w", err)
	}

	to := common.HexToAddress(req.To)
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gas := req.Gas
	if gas == 0 {
		est, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return "", fmt.Errorf("chain: estimate gas: %w", err)
		}
		gas = uint64(float64(est) * s.opts.GasMultiplier)
	}

	tipCap := s.opts.MaxPriorityFee
	if tipCap == nil {
		tipCap, err = s.backend.SuggestGasTipCap(ctx)
		if err != nil {
			tipCap = big.NewInt(2_000_000_000)
		}
	}
	feeCap := s.opts.MaxFee
	if feeCap == nil {
		header, err := s.backend.HeaderByNumber(ctx, nil)
		if err != nil {
			return "", fmt.Errorf("chain: fetch latest header: %w", err)
		}
		baseFee := header.BaseFee
		if baseFee == nil {
			baseFee = big.NewInt(1_000_000_000)
		}
		feeCap = new(big.Int).Mul(baseFee, big.NewInt(2))
		feeCap.Add(feeCap, tipCap)
	}
	if feeCap.Cmp(tipCap) < 0 {
		return "", fmt.Errorf("chain: max fee %s below priority fee %s", feeCap, tipCap)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("chain: fetch nonce: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := s.signer.SignTx(chainID, tx)
	if err != nil {
		return "", fmt.Errorf("chain: sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("chain: broadcast transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	s.logger.InfoContext(ctx, "transaction broadcast",
		slog.String("tx_hash", hash),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return hash, nil
}
