// Package chainscan implements an Etherscan-compatible block explorer
// client for listing ERC-20 token transfers and resolving block
// timestamps. One client instance covers one chain, selected by chain id.
package chainscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TokenTransfer is one raw token transfer as reported by the explorer.
// Value is in the token's base units (not scaled by decimals).
type TokenTransfer struct {
	Hash        string
	BlockNumber int64
	From        string
	To          string
	Value       decimal.Decimal
}

// ClientConfig holds configuration for the explorer client.
type ClientConfig struct {
	BaseURL string
	ChainID int64
	APIKey  string
	Timeout time.Duration
}

// Client is an explorer API client for a single chain.
type Client struct {
	baseURL    string
	chainID    int64
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an explorer client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.etherscan.io/v2/api"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		chainID:    cfg.ChainID,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type transferRow struct {
	Hash        string `json:"hash"`
	BlockNumber string `json:"blockNumber"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

// pageSize is the explorer page size for transfer listings. The loop in
// TokenTransfers pages until a short page, so a history larger than one
// page is never silently truncated.
const pageSize = 1000

// TokenTransfers lists every transfer of the given token contract touching
// the address, oldest first, paging until the explorer runs out of rows.
// Both directions and all counterparties are returned; callers filter.
// Query on the side whose history is small: an explorer caps large result
// sets, and rows dropped past the cap would vanish without an error.
func (c *Client) TokenTransfers(ctx context.Context, address, contract string) ([]TokenTransfer, error) {
	var transfers []TokenTransfer
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("module", "account")
		query.Set("action", "tokentx")
		query.Set("address", address)
		query.Set("contractaddress", contract)
		query.Set("startblock", "0")
		query.Set("endblock", "latest")
		query.Set("page", strconv.Itoa(page))
		query.Set("offset", strconv.Itoa(pageSize))
		query.Set("sort", "asc")

		var rows []transferRow
		if err := c.call(ctx, query, &rows); err != nil {
			return nil, err
		}

		for _, row := range rows {
			block, err := strconv.ParseInt(row.BlockNumber, 10, 64)
			if err != nil {
				log.Warn().
					Str("hash", row.Hash).
					Str("blockNumber", row.BlockNumber).
					Msg("Skipping transfer with unparseable block number")
				continue
			}
			value, err := decimal.NewFromString(row.Value)
			if err != nil {
				log.Warn().
					Str("hash", row.Hash).
					Str("value", row.Value).
					Msg("Skipping transfer with unparseable value")
				continue
			}
			transfers = append(transfers, TokenTransfer{
				Hash:        row.Hash,
				BlockNumber: block,
				From:        strings.ToLower(row.From),
				To:          strings.ToLower(row.To),
				Value:       value,
			})
		}

		if len(rows) < pageSize {
			return transfers, nil
		}
	}
}

type blockRewardRow struct {
	TimeStamp string `json:"timeStamp"`
}

// BlockTimestamp resolves the timestamp of a block.
func (c *Client) BlockTimestamp(ctx context.Context, blockNumber int64) (time.Time, error) {
	query := url.Values{}
	query.Set("module", "block")
	query.Set("action", "getblockreward")
	query.Set("blockno", strconv.FormatInt(blockNumber, 10))

	var row blockRewardRow
	if err := c.call(ctx, query, &row); err != nil {
		return time.Time{}, err
	}
	ts, err := strconv.ParseInt(row.TimeStamp, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("block %d has unparseable timestamp %q", blockNumber, row.TimeStamp)
	}
	return time.Unix(ts, 0).UTC(), nil
}

func (c *Client) call(ctx context.Context, query url.Values, out interface{}) error {
	query.Set("chainid", strconv.FormatInt(c.chainID, 10))
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode explorer response: %w", err)
	}

	// Status "0" with "No transactions found" is an empty result, not an
	// error. Any other non-OK status is a real failure.
	if env.Status != "1" {
		if strings.Contains(strings.ToLower(env.Message), "no transactions found") {
			return nil
		}
		return fmt.Errorf("explorer error: %s", env.Message)
	}

	return json.Unmarshal(env.Result, out)
}
