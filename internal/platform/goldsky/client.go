package goldsky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/swapbot/internal/domain"
	"github.com/shopspring/decimal"
)

// Client is a GraphQL client for the creator-asset subgraph hosted on
// Goldsky. It answers which tokens are bonding-curve creator assets and at
// what bridge-denominated price they last traded.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Goldsky GraphQL client.
//
// graphqlURL is the subgraph endpoint, e.g.
// "https://api.goldsky.com/api/public/.../subgraphs/creator-curve/gn".
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const creatorTokenQuery = `
	query CreatorToken($id: ID!) {
		creatorToken(id: $id) {
			id
			subject
			symbol
			decimals
			priceInBridge
			graduated
		}
	}
`

// CreatorAsset looks token up in the subgraph. Tokens the subgraph has never
// seen are not creator assets and yield domain.ErrNotFound.
func (c *Client) CreatorAsset(ctx context.Context, token string) (domain.CreatorInfo, error) {
	respData, err := c.doQuery(ctx, creatorTokenQuery, map[string]any{
		"id": strings.ToLower(token),
	})
	if err != nil {
		return domain.CreatorInfo{}, fmt.Errorf("goldsky: creator asset %s: %w", token, err)
	}

	var result struct {
		CreatorToken *struct {
			ID            string `json:"id"`
			Subject       string `json:"subject"`
			Symbol        string `json:"symbol"`
			Decimals      string `json:"decimals"`
			PriceInBridge string `json:"priceInBridge"`
			Graduated     bool   `json:"graduated"`
		} `json:"creatorToken"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return domain.CreatorInfo{}, fmt.Errorf("goldsky: decode creator asset: %w", err)
	}
	t := result.CreatorToken
	if t == nil {
		return domain.CreatorInfo{}, fmt.Errorf("goldsky: creator asset %s: %w", token, domain.ErrNotFound)
	}

	decimals := int32(18)
	if t.Decimals != "" {
		d, err := strconv.ParseInt(t.Decimals, 10, 32)
		if err != nil {
			return domain.CreatorInfo{}, fmt.Errorf("goldsky: decode decimals %q: %w", t.Decimals, err)
		}
		decimals = int32(d)
	}
	price := decimal.Zero
	if t.PriceInBridge != "" {
		price, err = decimal.NewFromString(t.PriceInBridge)
		if err != nil {
			return domain.CreatorInfo{}, fmt.Errorf("goldsky: decode price %q: %w", t.PriceInBridge, err)
		}
	}

	return domain.CreatorInfo{
		Token:         token,
		Subject:       t.Subject,
		Symbol:        t.Symbol,
		Decimals:      decimals,
		PriceInBridge: price,
		Graduated:     t.Graduated,
	}, nil
}

// FetchLatestBlock returns the latest block number indexed by the subgraph.
// The health endpoint reports it to surface indexing lag.
func (c *Client) FetchLatestBlock(ctx context.Context) (int64, error) {
	query := `
		query LatestBlock {
			_meta {
				block {
					number
				}
			}
		}
	`

	respData, err := c.doQuery(ctx, query, nil)
	if err != nil {
		return 0, fmt.Errorf("goldsky: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}

	if err := json.Unmarshal(respData, &result); err != nil {
		return 0, fmt.Errorf("goldsky: decode latest block: %w", err)
	}

	return result.Meta.Block.Number, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}
