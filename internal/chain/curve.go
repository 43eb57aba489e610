package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BondingCurve implements domain.BondingCurve against the creator-asset
// curve contract.
type BondingCurve struct {
	client  *Client
	address common.Address
}

// NewBondingCurve binds the curve contract at address.
func NewBondingCurve(client *Client, address string) *BondingCurve {
	return &BondingCurve{client: client, address: common.HexToAddress(address)}
}

// Address returns the contract address, which is also the spender for
// curve sells and buys.
func (b *BondingCurve) Address() string { return b.address.Hex() }

// CalculateTokensForBuy returns the creator tokens minted for deposit.
func (b *BondingCurve) CalculateTokensForBuy(ctx context.Context, subject string, deposit *big.Int) (*big.Int, error) {
	out, err := b.client.call(ctx, b.address, curveABI, "calculateTokensForBuy", common.HexToAddress(subject), deposit)
	if err != nil {
		return nil, fmt.Errorf("chain: curve buy quote: %w", err)
	}
	return toBig(out)
}

// CalculateTokensForSell returns the bridge units paid out for amount.
func (b *BondingCurve) CalculateTokensForSell(ctx context.Context, subject string, amount *big.Int) (*big.Int, error) {
	out, err := b.client.call(ctx, b.address, curveABI, "calculateTokensForSell", common.HexToAddress(subject), amount)
	if err != nil {
		return nil, fmt.Errorf("chain: curve sell quote: %w", err)
	}
	return toBig(out)
}

// BuySharesV2 encodes a curve buy.
func (b *BondingCurve) BuySharesV2(subject string, deposit, minReturn *big.Int, referrer string) ([]byte, error) {
	data, err := curveABI.Pack("buySharesV2", common.HexToAddress(subject), deposit, minReturn, common.HexToAddress(referrer))
	if err != nil {
		return nil, fmt.Errorf("chain: pack buySharesV2: %w", err)
	}
	return data, nil
}

// SellSharesV2 encodes a curve sell.
func (b *BondingCurve) SellSharesV2(subject string, amount, minReturn *big.Int, referrer string) ([]byte, error) {
	data, err := curveABI.Pack("sellSharesV2", common.HexToAddress(subject), amount, minReturn, common.HexToAddress(referrer))
	if err != nil {
		return nil, fmt.Errorf("chain: pack sellSharesV2: %w", err)
	}
	return data, nil
}
