package domain

import (
	"encoding/json"
	"math/big"
	"time"
)

// QuoteRequest asks a venue to price an exact sell amount.
type QuoteRequest struct {
	Sell       Asset
	Buy        Asset
	SellAmount *big.Int
	Taker      string
}

// TxPayload is an unsigned transaction produced by a quote.
type TxPayload struct {
	To    string   `json:"to"`
	Data  []byte   `json:"data"`
	Value *big.Int `json:"value,omitempty"`
	Gas   uint64   `json:"gas,omitempty"`
}

// TypedData is an EIP-712 payload as delivered by the quote service. The
// fields are kept raw so the signer can decode them with full fidelity.
type TypedData struct {
	Domain      json.RawMessage `json:"domain"`
	Types       json.RawMessage `json:"types"`
	Message     json.RawMessage `json:"message"`
	PrimaryType string          `json:"primaryType"`
}

// SignatureEncoding tells how a signature is attached to the calldata.
type SignatureEncoding string

const (
	SignatureEncodingNone SignatureEncoding = ""
	// SignatureEncodingLengthPrefixed appends a 32-byte big-endian length
	// followed by the raw signature bytes.
	SignatureEncodingLengthPrefixed SignatureEncoding = "length_prefixed"
)

// AllowanceIssue reports that Spender may not pull enough of Token.
type AllowanceIssue struct {
	Token   string   `json:"token"`
	Spender string   `json:"spender"`
	Actual  *big.Int `json:"actual"`
}

// BalanceIssue reports a balance shortfall detected by the quote source.
type BalanceIssue struct {
	Token    string   `json:"token"`
	Actual   *big.Int `json:"actual"`
	Expected *big.Int `json:"expected"`
}

// Quote is a firm price for one hop.
type Quote struct {
	ID                 string            `json:"id"`
	LiquidityAvailable bool              `json:"liquidity_available"`
	BuyAmount          *big.Int          `json:"buy_amount"`
	MinBuyAmount       *big.Int          `json:"min_buy_amount,omitempty"`
	SignaturePayload   *TypedData        `json:"signature_payload,omitempty"`
	SignatureEncoding  SignatureEncoding `json:"signature_encoding,omitempty"`
	AllowanceIssue     *AllowanceIssue   `json:"allowance_issue,omitempty"`
	BalanceIssue       *BalanceIssue     `json:"balance_issue,omitempty"`
	Tx                 TxPayload         `json:"tx"`
	// ExpiresAt is when the quote's calldata stops being accepted. Zero
	// means the quote carries no deadline.
	ExpiresAt          time.Time         `json:"expires_at,omitempty"`
}

// Stale reports whether q expires within margin of now.
func (q Quote) Stale(now time.Time, margin time.Duration) bool {
	return !q.ExpiresAt.IsZero() && !now.Add(margin).Before(q.ExpiresAt)
}

// TxRequest is handed to the submission service.
type TxRequest struct {
	From  string
	To    string
	Data  []byte
	Value *big.Int
	Gas   uint64
}
