package domain

import (
	"fmt"
	"math/big"
	"time"
)

// AttemptState tracks a hop's transaction lifecycle.
type AttemptState string

const (
	AttemptNew              AttemptState = "new"
	AttemptQuoted           AttemptState = "quoted"
	AttemptAllowanceChecked AttemptState = "allowance_checked"
	AttemptSigned           AttemptState = "signed"
	AttemptSubmitted        AttemptState = "submitted"
	AttemptConfirmed        AttemptState = "confirmed"
	AttemptReverted         AttemptState = "reverted"
	AttemptTimedOut         AttemptState = "timed_out"
	AttemptAborted          AttemptState = "aborted"
)

// ReceiptStatus is the on-chain verdict for the hop's main transaction.
type ReceiptStatus string

const (
	ReceiptPending   ReceiptStatus = "pending"
	ReceiptConfirmed ReceiptStatus = "confirmed"
	ReceiptReverted  ReceiptStatus = "reverted"
	ReceiptTimedOut  ReceiptStatus = "timed_out"
)

// next lists legal forward transitions. Aborted is reachable from any
// non-terminal state before submission.
var next = map[AttemptState][]AttemptState{
	AttemptNew:              {AttemptQuoted, AttemptAborted},
	AttemptQuoted:           {AttemptAllowanceChecked, AttemptAborted},
	AttemptAllowanceChecked: {AttemptSigned, AttemptAborted},
	AttemptSigned:           {AttemptSubmitted, AttemptAborted},
	AttemptSubmitted:        {AttemptConfirmed, AttemptReverted, AttemptTimedOut},
}

// Terminal reports whether no further transition is possible.
func (s AttemptState) Terminal() bool {
	_, ok := next[s]
	return !ok
}

// TransactionAttempt is the per-hop record mutated by the lifecycle manager.
type TransactionAttempt struct {
	ID               string        `json:"id"`
	RequestID        string        `json:"request_id"`
	HopIndex         int           `json:"hop_index"`
	QuoteID          string        `json:"quote_id,omitempty"`
	State            AttemptState  `json:"state"`
	AllowanceGranted bool          `json:"allowance_granted"`
	ApprovalTxHash   string        `json:"approval_tx_hash,omitempty"`
	Signature        string        `json:"signature,omitempty"`
	TxHash           string        `json:"tx_hash,omitempty"`
	ReceiptStatus    ReceiptStatus `json:"receipt_status"`
	QuotedBuy        *big.Int      `json:"quoted_buy,omitempty"`
	RealizedBuy      *big.Int      `json:"realized_buy,omitempty"`
	Error            string        `json:"error,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewAttempt starts an attempt for one hop.
func NewAttempt(id, requestID string, hopIndex int, now time.Time) TransactionAttempt {
	return TransactionAttempt{
		ID:            id,
		RequestID:     requestID,
		HopIndex:      hopIndex,
		State:         AttemptNew,
		ReceiptStatus: ReceiptPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Advance moves the attempt to s, refusing anything that skips a stage.
func (a *TransactionAttempt) Advance(s AttemptState, now time.Time) error {
	for _, allowed := range next[a.State] {
		if allowed == s {
			a.State = s
			a.UpdatedAt = now
			switch s {
			case AttemptConfirmed:
				a.ReceiptStatus = ReceiptConfirmed
			case AttemptReverted:
				a.ReceiptStatus = ReceiptReverted
			case AttemptTimedOut:
				a.ReceiptStatus = ReceiptTimedOut
			}
			return nil
		}
	}
	return fmt.Errorf("attempt %s: illegal transition %s -> %s", a.ID, a.State, s)
}
