package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ABI fragments used by the chain adapters.
const (
	ERC20ABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"Transfer","type":"event","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]}
	]`

	WETHABI = `[
		{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"wad","type":"uint256"}],"outputs":[]}
	]`

	BondingCurveABI = `[
		{"name":"calculateTokensForBuy","type":"function","stateMutability":"view","inputs":[{"name":"subject","type":"address"},{"name":"deposit","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"calculateTokensForSell","type":"function","stateMutability":"view","inputs":[{"name":"subject","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"buySharesV2","type":"function","stateMutability":"nonpayable","inputs":[{"name":"subject","type":"address"},{"name":"deposit","type":"uint256"},{"name":"minReturn","type":"uint256"},{"name":"referrer","type":"address"}],"outputs":[]},
		{"name":"sellSharesV2","type":"function","stateMutability":"nonpayable","inputs":[{"name":"subject","type":"address"},{"name":"amount","type":"uint256"},{"name":"minReturn","type":"uint256"},{"name":"referrer","type":"address"}],"outputs":[]}
	]`
)

var (
	erc20ABI = mustABI(ERC20ABI)
	wethABI  = mustABI(WETHABI)
	curveABI = mustABI(BondingCurveABI)

	// TransferTopic is keccak256("Transfer(address,address,uint256)").
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ApproveCalldata encodes approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// DepositCalldata encodes WETH deposit().
func DepositCalldata() []byte {
	data, err := wethABI.Pack("deposit")
	if err != nil {
		panic(err)
	}
	return data
}
