// Package chain adapts an Ethereum JSON-RPC endpoint to the swap engine:
// balance and allowance reads, receipt polling, bonding-curve calls and
// EIP-1559 submission.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of *ethclient.Client the adapters use.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Options tunes the client.
type Options struct {
	PollInterval time.Duration
}

// Client implements domain.ChainReader.
type Client struct {
	backend      Backend
	closeFn      func()
	pollInterval time.Duration
	logger       *slog.Logger
}

// Dial connects to rpcURL.
func Dial(ctx context.Context, rpcURL string, opts Options, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial: %w", err)
	}
	c := NewClient(ec, opts, logger)
	c.closeFn = ec.Close
	return c, nil
}

// NewClient wraps an existing backend.
func NewClient(backend Backend, opts Options, logger *slog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:      backend,
		pollInterval: opts.PollInterval,
		logger:       logger.With(slog.String("component", "chain")),
	}
}

// Backend returns the underlying RPC backend.
func (c *Client) Backend() Backend { return c.backend }

// Close releases the RPC connection when the client owns it.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// BalanceOf returns owner's balance of asset in base units.
func (c *Client) BalanceOf(ctx context.Context, asset domain.Asset, owner string) (*big.Int, error) {
	if asset.IsNative() {
		bal, err := c.backend.BalanceAt(ctx, common.HexToAddress(owner), nil)
		if err != nil {
			return nil, fmt.Errorf("chain: native balance: %w", err)
		}
		return bal, nil
	}
	out, err := c.call(ctx, asset.Hex(), erc20ABI, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s: %w", asset, err)
	}
	return toBig(out)
}

// Decimals reads an ERC20's decimals().
func (c *Client) Decimals(ctx context.Context, token string) (int32, error) {
	out, err := c.call(ctx, common.HexToAddress(token), erc20ABI, "decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: decimals %s: %w", token, err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("chain: decimals %s: unexpected output", token)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: decimals %s: unexpected type %T", token, out[0])
	}
	return int32(d), nil
}

// Allowance reads allowance(owner, spender) on token.
func (c *Client) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	out, err := c.call(ctx, common.HexToAddress(token), erc20ABI, "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("chain: allowance %s: %w", token, err)
	}
	return toBig(out)
}

// WaitForTransaction polls for the receipt of hash until it has the requested
// number of confirmations or timeout elapses. A timeout returns
// domain.ErrReceiptTimeout; transient RPC errors are ignored until then.
func (c *Client) WaitForTransaction(ctx context.Context, hash string, confirmations uint64, timeout time.Duration) (domain.Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	txHash := common.HexToHash(hash)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			if c.confirmed(waitCtx, receipt, confirmations) {
				return toReceipt(hash, receipt), nil
			}
		} else if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			c.logger.DebugContext(ctx, "receipt poll failed",
				slog.String("tx_hash", hash),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-waitCtx.Done():
			return domain.Receipt{}, fmt.Errorf("chain: wait %s: %w", hash, errors.Join(domain.ErrReceiptTimeout, waitCtx.Err()))
		case <-ticker.C:
		}
	}
}

func (c *Client) confirmed(ctx context.Context, r *types.Receipt, confirmations uint64) bool {
	if confirmations <= 1 || r.BlockNumber == nil {
		return true
	}
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return false
	}
	return head+1 >= r.BlockNumber.Uint64()+confirmations
}

func (c *Client) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func toBig(out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("chain: expected 1 output, got %d", len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: unexpected output type %T", out[0])
	}
	return v, nil
}

func toReceipt(hash string, r *types.Receipt) domain.Receipt {
	out := domain.Receipt{
		TxHash:    hash,
		Success:   r.Status == types.ReceiptStatusSuccessful,
		GasUsed:   r.GasUsed,
		Transfers: DecodeTransfers(r.Logs),
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
	return out
}
