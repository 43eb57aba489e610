package chain

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	receipts  map[common.Hash]*types.Receipt
	head      uint64
	calls     map[string][]byte // selector hex -> return data
	sent      []*types.Transaction
	gasEst    uint64
	tip       *big.Int
	baseFee   *big.Int
	nonce     uint64
	native    *big.Int
	callCount int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		receipts: map[common.Hash]*types.Receipt{},
		calls:    map[string][]byte{},
		gasEst:   100_000,
		tip:      big.NewInt(1_000_000_000),
		baseFee:  big.NewInt(5_000_000_000),
		native:   big.NewInt(0),
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(8453), nil }
func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.native, nil
}
func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	return f.calls[common.Bytes2Hex(msg.Data[:4])], nil
}
func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	return f.head, nil
}
func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gasEst, nil
}
func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) { return f.tip, nil }
func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}
func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}
func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func selector(method string) string {
	return common.Bytes2Hex(erc20ABI.Methods[method].ID)
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func transferLog(token, from, to common.Address, value int64) *types.Log {
	return &types.Log{
		Address: token,
		Topics:  []common.Hash{TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    word(value),
	}
}

var (
	token  = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	other  = common.HexToAddress("0x4200000000000000000000000000000000000006")
	wallet = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	pool   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestDecodeTransfersAndSum(t *testing.T) {
	logs := []*types.Log{
		transferLog(token, pool, wallet, 70),
		transferLog(token, pool, wallet, 30),
		transferLog(token, wallet, pool, 999),
		transferLog(other, pool, wallet, 5),
		{Address: token, Topics: []common.Hash{TransferTopic}},
	}
	transfers := DecodeTransfers(logs)
	require.Len(t, transfers, 4)

	total, ok := SumReceived(transfers, token.Hex(), wallet.Hex())
	require.True(t, ok)
	assert.Equal(t, int64(100), total.Int64())

	_, ok = SumReceived(transfers, token.Hex(), common.HexToAddress("0x01").Hex())
	assert.False(t, ok)
}

func TestClientReads(t *testing.T) {
	b := newFakeBackend()
	b.calls[selector("balanceOf")] = word(500)
	b.calls[selector("decimals")] = word(6)
	b.calls[selector("allowance")] = word(42)
	b.native = big.NewInt(9)
	c := NewClient(b, Options{}, nil)
	ctx := context.Background()

	bal, err := c.BalanceOf(ctx, domain.Asset{Address: token.Hex(), Kind: domain.AssetKindToken}, wallet.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.Int64())

	nat, err := c.BalanceOf(ctx, domain.Asset{Address: domain.NativeAddress, Kind: domain.AssetKindNative}, wallet.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(9), nat.Int64())

	dec, err := c.Decimals(ctx, token.Hex())
	require.NoError(t, err)
	assert.Equal(t, int32(6), dec)

	allow, err := c.Allowance(ctx, token.Hex(), wallet.Hex(), pool.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(42), allow.Int64())
}

func TestWaitForTransactionConfirmed(t *testing.T) {
	b := newFakeBackend()
	hash := common.HexToHash("0x01")
	b.receipts[hash] = &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		BlockNumber:       big.NewInt(1),
		GasUsed:           21000,
		EffectiveGasPrice: big.NewInt(7),
		Logs:              []*types.Log{transferLog(token, pool, wallet, 12)},
	}
	c := NewClient(b, Options{PollInterval: time.Millisecond}, nil)

	r, err := c.WaitForTransaction(context.Background(), hash.Hex(), 3, time.Second)
	require.NoError(t, err)
	assert.True(t, r.Success)
	assert.Equal(t, uint64(1), r.BlockNumber)
	require.Len(t, r.Transfers, 1)
	assert.Equal(t, int64(12), r.Transfers[0].Value.Int64())
	assert.Equal(t, int64(147_000), r.Fee().Int64())
}

func TestWaitForTransactionReverted(t *testing.T) {
	b := newFakeBackend()
	hash := common.HexToHash("0x02")
	b.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(4)}
	c := NewClient(b, Options{PollInterval: time.Millisecond}, nil)

	r, err := c.WaitForTransaction(context.Background(), hash.Hex(), 1, time.Second)
	require.NoError(t, err)
	assert.False(t, r.Success)
}

func TestWaitForTransactionTimeout(t *testing.T) {
	c := NewClient(newFakeBackend(), Options{PollInterval: time.Millisecond}, nil)

	_, err := c.WaitForTransaction(context.Background(), common.HexToHash("0x03").Hex(), 1, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReceiptTimeout)
}

type keySigner struct{ key *ecdsa.PrivateKey }

func (k keySigner) Account() common.Address { return crypto.PubkeyToAddress(k.key.PublicKey) }
func (k keySigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), k.key)
}

func TestSubmitterSendsDynamicFeeTx(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := keySigner{key: key}
	b := newFakeBackend()
	b.nonce = 7
	s := NewSubmitter(b, signer, SubmitterOptions{}, nil)

	hash, err := s.SendTransaction(context.Background(), domain.TxRequest{
		From: signer.Account().Hex(),
		To:   token.Hex(),
		Data: []byte{0xde, 0xad},
	})
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	tx := b.sent[0]
	assert.Equal(t, hash, tx.Hash().Hex())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, big.NewInt(11_000_000_000), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(1_000_000_000), tx.GasTipCap())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Account(), sender)
}

func TestSubmitterRejectsForeignSender(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := NewSubmitter(newFakeBackend(), keySigner{key: key}, SubmitterOptions{}, nil)

	_, err = s.SendTransaction(context.Background(), domain.TxRequest{From: wallet.Hex(), To: token.Hex()})
	require.Error(t, err)
}

func TestCurveCalls(t *testing.T) {
	b := newFakeBackend()
	b.calls[common.Bytes2Hex(curveABI.Methods["calculateTokensForBuy"].ID)] = word(77)
	c := NewClient(b, Options{}, nil)
	curve := NewBondingCurve(c, pool.Hex())

	got, err := curve.CalculateTokensForBuy(context.Background(), wallet.Hex(), big.NewInt(10))
	require.NoError(t, err)
	assert.Equal(t, int64(77), got.Int64())

	data, err := curve.BuySharesV2(wallet.Hex(), big.NewInt(10), big.NewInt(70), pool.Hex())
	require.NoError(t, err)
	assert.Equal(t, curveABI.Methods["buySharesV2"].ID, data[:4])
	assert.Len(t, data, 4+32*4)
}
