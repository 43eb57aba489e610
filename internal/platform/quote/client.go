// Package quote is the aggregator quote client. It speaks the permit2 quote
// flavour of the 0x swap API: the quote carries an EIP-712 permit to sign and
// a ready transaction whose calldata the signature is appended to.
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/alanyoungcy/swapbot/internal/platform/httpx"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Config for Client.
type Config struct {
	BaseURL     string
	APIKey      string
	ChainID     int64
	SlippageBps int
	HTTP        httpx.Options
}

// Client implements domain.QuoteService.
type Client struct {
	http        *httpx.Client
	chainID     int64
	slippageBps int
}

// NewClient creates a quote client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	opts := cfg.HTTP
	headers := map[string]string{"0x-version": "v2"}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if cfg.APIKey != "" {
		headers["0x-api-key"] = cfg.APIKey
	}
	opts.Headers = headers
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:        httpx.New(cfg.BaseURL, opts, logger.With(slog.String("component", "quote"))),
		chainID:     cfg.ChainID,
		slippageBps: cfg.SlippageBps,
	}
}

type issuesJSON struct {
	Allowance *struct {
		Actual  string `json:"actual"`
		Spender string `json:"spender"`
	} `json:"allowance"`
	Balance *struct {
		Token    string `json:"token"`
		Actual   string `json:"actual"`
		Expected string `json:"expected"`
	} `json:"balance"`
}

type quoteJSON struct {
	LiquidityAvailable bool       `json:"liquidityAvailable"`
	BuyAmount          string     `json:"buyAmount"`
	MinBuyAmount       string     `json:"minBuyAmount"`
	Issues             issuesJSON `json:"issues"`
	Permit2            *struct {
		EIP712 *struct {
			Types       json.RawMessage `json:"types"`
			Domain      json.RawMessage `json:"domain"`
			Message     json.RawMessage `json:"message"`
			PrimaryType string          `json:"primaryType"`
		} `json:"eip712"`
	} `json:"permit2"`
	Transaction struct {
		To    string `json:"to"`
		Data  string `json:"data"`
		Gas   string `json:"gas"`
		Value string `json:"value"`
	} `json:"transaction"`
	ZID string `json:"zid"`
}

// GetQuote prices an exact-in swap for req.Taker.
func (c *Client) GetQuote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	const op = "quote: get"
	if req.SellAmount == nil || req.SellAmount.Sign() <= 0 {
		return domain.Quote{}, domain.NewError(domain.KindValidation, op, "sell amount must be positive")
	}

	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(c.chainID, 10))
	params.Set("sellToken", req.Sell.Address)
	params.Set("buyToken", req.Buy.Address)
	params.Set("sellAmount", req.SellAmount.String())
	params.Set("taker", req.Taker)
	if c.slippageBps > 0 {
		params.Set("slippageBps", strconv.Itoa(c.slippageBps))
	}

	var raw quoteJSON
	if err := c.http.GetJSON(ctx, "/swap/permit2/quote?"+params.Encode(), &raw); err != nil {
		return domain.Quote{}, classify(op, err)
	}
	q, err := raw.toDomain()
	if err != nil {
		return domain.Quote{}, domain.WrapError(domain.KindUpstreamError, op, "malformed quote", err)
	}
	if q.AllowanceIssue != nil {
		q.AllowanceIssue.Token = req.Sell.Address
	}
	return q, nil
}

func (r quoteJSON) toDomain() (domain.Quote, error) {
	q := domain.Quote{ID: r.ZID, LiquidityAvailable: r.LiquidityAvailable}
	if !r.LiquidityAvailable {
		return q, nil
	}

	var err error
	if q.BuyAmount, err = parseInt("buyAmount", r.BuyAmount); err != nil {
		return q, err
	}
	if r.MinBuyAmount != "" {
		if q.MinBuyAmount, err = parseInt("minBuyAmount", r.MinBuyAmount); err != nil {
			return q, err
		}
	}

	if a := r.Issues.Allowance; a != nil {
		actual, err := parseInt("issues.allowance.actual", a.Actual)
		if err != nil {
			return q, err
		}
		q.AllowanceIssue = &domain.AllowanceIssue{Spender: a.Spender, Actual: actual}
	}
	if b := r.Issues.Balance; b != nil {
		actual, err := parseInt("issues.balance.actual", b.Actual)
		if err != nil {
			return q, err
		}
		expected, err := parseInt("issues.balance.expected", b.Expected)
		if err != nil {
			return q, err
		}
		q.BalanceIssue = &domain.BalanceIssue{Token: b.Token, Actual: actual, Expected: expected}
	}

	if r.Permit2 != nil && r.Permit2.EIP712 != nil {
		e := r.Permit2.EIP712
		q.SignaturePayload = &domain.TypedData{
			Domain:      e.Domain,
			Types:       e.Types,
			Message:     e.Message,
			PrimaryType: e.PrimaryType,
		}
		q.SignatureEncoding = domain.SignatureEncodingLengthPrefixed
		if q.ExpiresAt, err = permitDeadline(e.Message); err != nil {
			return q, err
		}
	}

	tx := r.Transaction
	if tx.To == "" || tx.Data == "" {
		return q, errors.New("transaction missing to/data")
	}
	q.Tx.To = tx.To
	if q.Tx.Data, err = hexutil.Decode(tx.Data); err != nil {
		return q, fmt.Errorf("transaction.data: %w", err)
	}
	if tx.Value != "" {
		if q.Tx.Value, err = parseInt("transaction.value", tx.Value); err != nil {
			return q, err
		}
	}
	if tx.Gas != "" {
		if q.Tx.Gas, err = strconv.ParseUint(tx.Gas, 10, 64); err != nil {
			return q, fmt.Errorf("transaction.gas: %w", err)
		}
	}
	return q, nil
}

// permitDeadline reads the unix-seconds deadline of a permit message. A
// message without one yields the zero time.
func permitDeadline(msg json.RawMessage) (time.Time, error) {
	if len(msg) == 0 {
		return time.Time{}, nil
	}
	var m struct {
		Deadline json.Number `json:"deadline"`
	}
	if err := json.Unmarshal(msg, &m); err != nil {
		return time.Time{}, fmt.Errorf("permit2.eip712.message: %w", err)
	}
	if m.Deadline == "" {
		return time.Time{}, nil
	}
	secs, err := strconv.ParseInt(m.Deadline.String(), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("permit2 deadline: invalid integer %q", m.Deadline)
	}
	return time.Unix(secs, 0).UTC(), nil
}

func parseInt(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid integer %q", field, s)
	}
	return v, nil
}

// classify maps transport failures onto engine error kinds. A 4xx means the
// request itself was rejected; anything else is the upstream's problem.
func classify(op string, err error) error {
	var se *httpx.StatusError
	if errors.As(err, &se) && !se.Retryable() {
		return domain.WrapError(domain.KindValidation, op, "quote rejected", err)
	}
	return domain.WrapError(domain.KindUpstreamError, op, "quote service unavailable", err)
}
