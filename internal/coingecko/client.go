// Package coingecko provides a resilient client for the CoinGecko API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cryptotracker/core/internal/logger"
)

const userAgent = "CryptoTracker-Backend/1.0"

// Client provides access to the CoinGecko market-data API.
type Client struct {
	baseURL     string
	apiKey      string
	keyInQuery  bool
	maxRetries  int
	backoffBase time.Duration
	httpClient  *http.Client
}

// ClientConfig holds resilience and auth settings for the client.
type ClientConfig struct {
	APIKey      string
	KeyInQuery  bool // send the key as a query parameter instead of a header
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// NewClient creates a new CoinGecko client. Zero config values fall
// back to the documented defaults (10s timeout, 3 retries, 700ms base).
func NewClient(baseURL string, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 700 * time.Millisecond
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		keyInQuery:  cfg.KeyInQuery,
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// StatusError reports a non-200 upstream response, including retryable
// statuses whose retry budget was exhausted. It preserves the status
// code and body so callers decide how to surface the failure.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("coingecko: status %d: %s", e.Status, body)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// request performs a GET with retry/backoff on transport errors and on
// 429/502/503/504. Transport errors that exhaust the retry budget are
// returned as the error; any HTTP response, including an exhausted
// retryable status, comes back as (status, body, nil).
func (c *Client) request(ctx context.Context, path string, params url.Values) (int, []byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" && c.keyInQuery {
		params.Set("x_cg_demo_api_key", c.apiKey)
	}
	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	attempt := 0
	for {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if c.apiKey != "" && !c.keyInQuery {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt <= c.maxRetries {
				sleepFor := c.backoff(attempt)
				logger.Warn("CoinGecko network error (%v), retry %d/%d in %v", err, attempt, c.maxRetries, sleepFor)
				time.Sleep(sleepFor)
				continue
			}
			return 0, nil, fmt.Errorf("coingecko: request failed after %d retries: %w", c.maxRetries, err)
		}

		if retryableStatus(resp.StatusCode) && attempt <= c.maxRetries {
			sleepFor := c.backoff(attempt)
			// A whole-second Retry-After overrides the exponential backoff.
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			logger.Warn("CoinGecko %d for %s, retry %d/%d in %v", resp.StatusCode, reqURL, attempt, c.maxRetries, sleepFor)
			time.Sleep(sleepFor)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, nil, fmt.Errorf("coingecko: failed to read response body: %w", err)
		}
		return resp.StatusCode, body, nil
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffBase * (1 << (attempt - 1))
}

// ListingRow is one raw row of the /coins/markets response.
type ListingRow struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Image                    string   `json:"image"`
	CurrentPrice             *float64 `json:"current_price"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	MarketCap                *float64 `json:"market_cap"`
	MarketCapRank            *int     `json:"market_cap_rank"`
	TotalVolume              *float64 `json:"total_volume"`
	High24h                  *float64 `json:"high_24h"`
	Low24h                   *float64 `json:"low_24h"`
}

// MarketData is the nested market_data block of /coins/{id}. Monetary
// figures are currency-keyed maps; absence of the usd key must stay
// observable, so they decode as maps rather than flat values.
type MarketData struct {
	CurrentPrice             map[string]float64 `json:"current_price"`
	MarketCap                map[string]float64 `json:"market_cap"`
	MarketCapRank            *int               `json:"market_cap_rank"`
	TotalVolume              map[string]float64 `json:"total_volume"`
	High24h                  map[string]float64 `json:"high_24h"`
	Low24h                   map[string]float64 `json:"low_24h"`
	PriceChange24hInCurrency map[string]float64 `json:"price_change_24h_in_currency"`
	PriceChange24h           *float64           `json:"price_change_24h"`
	PriceChangePercentage24h *float64           `json:"price_change_percentage_24h"`
	CirculatingSupply        *float64           `json:"circulating_supply"`
	TotalSupply              *float64           `json:"total_supply"`
	MaxSupply                *float64           `json:"max_supply"`
	ATH                      map[string]float64 `json:"ath"`
	ATHDate                  map[string]string  `json:"ath_date"`
}

// ImagePayload holds the image URL variants of a coin.
type ImagePayload struct {
	Thumb string `json:"thumb"`
	Small string `json:"small"`
	Large string `json:"large"`
}

// LinksPayload holds the external link lists of a coin.
type LinksPayload struct {
	Homepage         []string `json:"homepage"`
	BlockchainSite   []string `json:"blockchain_site"`
	OfficialForumURL []string `json:"official_forum_url"`
}

// DetailPayload is the raw /coins/{id} response.
type DetailPayload struct {
	ID            string            `json:"id"`
	Symbol        string            `json:"symbol"`
	Name          string            `json:"name"`
	Description   map[string]string `json:"description"`
	MarketCapRank *int              `json:"market_cap_rank"`
	Image         ImagePayload      `json:"image"`
	MarketData    *MarketData       `json:"market_data"`
	Links         *LinksPayload     `json:"links"`
}

// ChartPayload is the raw /coins/{id}/market_chart response.
type ChartPayload struct {
	Prices [][2]float64 `json:"prices"`
}

// ListMarkets fetches a page of coin listings priced in USD.
// Page is floored to 1 and perPage clamped to [1, 250].
func (c *Client) ListMarkets(ctx context.Context, page, perPage int) ([]ListingRow, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > 250 {
		perPage = 250
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "24h")
	params.Set("locale", "en")

	status, body, err := c.request(ctx, "/coins/markets", params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Status: status, Body: string(body)}
	}
	var rows []ListingRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &StatusError{Status: status, Body: string(body)}
	}
	return rows, nil
}

// CoinDetail fetches the full detail payload for one coin.
func (c *Client) CoinDetail(ctx context.Context, coinID string) (*DetailPayload, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "true")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")
	params.Set("sparkline", "false")

	status, body, err := c.request(ctx, "/coins/"+url.PathEscape(coinID), params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Status: status, Body: string(body)}
	}
	var payload DetailPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &StatusError{Status: status, Body: string(body)}
	}
	return &payload, nil
}

// CoinChart fetches the historical USD price series for one coin.
// days must already be one of 1, 7, 30, 90, 365 or "max".
func (c *Client) CoinChart(ctx context.Context, coinID, days string) (*ChartPayload, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", days)

	status, body, err := c.request(ctx, "/coins/"+url.PathEscape(coinID)+"/market_chart", params)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{Status: status, Body: string(body)}
	}
	var payload ChartPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &StatusError{Status: status, Body: string(body)}
	}
	return &payload, nil
}

// Ping checks upstream availability.
func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.request(ctx, "/ping", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &StatusError{Status: status, Body: string(body)}
	}
	return nil
}
