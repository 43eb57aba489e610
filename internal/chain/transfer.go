package chain

import (
	"math/big"
	"strings"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodeTransfers extracts ERC20 Transfer events from receipt logs. Logs
// that do not match the event layout are skipped.
func DecodeTransfers(logs []*types.Log) []domain.Transfer {
	var out []domain.Transfer
	for _, l := range logs {
		if l == nil || len(l.Topics) != 3 || l.Topics[0] != TransferTopic || len(l.Data) != 32 {
			continue
		}
		out = append(out, domain.Transfer{
			Token: l.Address.Hex(),
			From:  common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
			To:    common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
			Value: new(big.Int).SetBytes(l.Data),
		})
	}
	return out
}

// SumReceived totals transfers of token into wallet. ok is false when no
// matching transfer exists.
func SumReceived(transfers []domain.Transfer, token, wallet string) (total *big.Int, ok bool) {
	total = new(big.Int)
	for _, t := range transfers {
		if strings.EqualFold(t.Token, token) && strings.EqualFold(t.To, wallet) {
			total.Add(total, t.Value)
			ok = true
		}
	}
	return total, ok
}
