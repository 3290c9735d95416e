// Package pricefeed implements a CoinGecko-compatible client for
// historical and spot token prices in USD.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Interval selects the sample granularity for historical queries.
const (
	IntervalFiveMinute = "5m"
	IntervalHourly     = "hourly"
)

// Sample is one timestamped price observation.
type Sample struct {
	At    time.Time
	Price decimal.Decimal
}

// ClientConfig holds configuration for the price feed client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a price feed API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// coinIDs maps token symbols to provider coin identifiers.
var coinIDs = map[string]string{
	"WETH": "weth",
	"POL":  "polygon-ecosystem-token",
	"USDC": "usd-coin",
	"USDT": "tether",
	"DAI":  "dai",
}

// NewClient creates a price feed client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HistoricalPrices returns price samples for the symbol between from and to
// at the requested interval. Samples are returned in provider order, which
// is ascending by timestamp.
func (c *Client) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time, interval string) ([]Sample, error) {
	id, err := coinID(symbol)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("from", fmt.Sprintf("%d", from.Unix()))
	query.Set("to", fmt.Sprintf("%d", to.Unix()))
	// Explicit interval selection is a paid-plan parameter; the public
	// endpoint rejects it and picks granularity from the range width on
	// its own. Only send it when a key is configured.
	if interval != "" && c.apiKey != "" {
		query.Set("interval", interval)
	}

	var payload struct {
		Prices [][2]float64 `json:"prices"`
	}
	path := fmt.Sprintf("/coins/%s/market_chart/range", id)
	if err := c.getJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(payload.Prices))
	for _, p := range payload.Prices {
		samples = append(samples, Sample{
			At:    time.UnixMilli(int64(p[0])).UTC(),
			Price: decimal.NewFromFloat(p[1]),
		})
	}
	return samples, nil
}

// SpotPrice returns the current USD price for the symbol.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, err := coinID(symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}

	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", "usd")

	var payload map[string]map[string]float64
	if err := c.getJSON(ctx, "/simple/price", query, &payload); err != nil {
		return decimal.Decimal{}, err
	}

	quote, ok := payload[id]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price feed returned no quote for %s", id)
	}
	price, ok := quote["usd"]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("price feed returned no usd quote for %s", id)
	}
	return decimal.NewFromFloat(price), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Debug().
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("Price feed request failed")
		return fmt.Errorf("price feed returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func coinID(symbol string) (string, error) {
	id, ok := coinIDs[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return "", fmt.Errorf("no coin id mapping for token %q", symbol)
	}
	return id, nil
}
