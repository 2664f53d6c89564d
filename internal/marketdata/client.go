// Package marketdata fetches historical bars over REST and streams live
// bar closes over websocket. It is the only package that talks to the
// data vendor; everything downstream consumes models.PriceSeries.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/pairsight/statarb/internal/cache"
	"github.com/pairsight/statarb/internal/config"
	"github.com/pairsight/statarb/internal/models"
)

// Client is a thin wrapper around the bar-data REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *cache.Cache
}

// NewClient creates a new market data client. The cache is optional; a
// nil cache disables history caching.
func NewClient(cfg *config.Config, c *cache.Cache) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: cfg.DataBaseURL,
		apiKey:  cfg.DataAPIKey,
		cache:   c,
	}
}

// doRequest performs an HTTP request with auth headers
func (c *Client) doRequest(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// parseResponse reads and unmarshals the response
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

type barJSON struct {
	Timestamp time.Time `json:"t"`
	Close     float64   `json:"c"`
}

// History retrieves the daily closing series for a symbol over the last
// `days` trading days, oldest first. Cached per symbol and window.
func (c *Client) History(ctx context.Context, symbol string, days int) (*models.PriceSeries, error) {
	if c.cache != nil {
		if s, ok := c.cache.GetSeries(symbol, days); ok {
			return s, nil
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", "1Day")
	params.Set("limit", strconv.Itoa(days))

	reqURL := fmt.Sprintf("%s/v1/bars?%s", c.baseURL, params.Encode())
	resp, err := c.doRequest(ctx, http.MethodGet, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, err)
	}

	var result struct {
		Bars map[string][]barJSON `json:"bars"`
	}
	if err := parseResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("fetch bars %s: %w", symbol, err)
	}

	bars := result.Bars[symbol]
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars returned for %s", symbol)
	}

	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp.Before(bars[j].Timestamp)
	})

	series := &models.PriceSeries{Symbol: symbol}
	for _, b := range bars {
		series.Points = append(series.Points, models.PricePoint{
			Timestamp: b.Timestamp,
			Price:     b.Close,
		})
	}

	if c.cache != nil {
		c.cache.SetSeries(symbol, days, series)
	}
	return series, nil
}

// LatestPrice retrieves the most recent close for a symbol, preferring
// the streamed price in the cache over a REST round trip.
func (c *Client) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	if c.cache != nil {
		if p, ok := c.cache.GetPrice(symbol); ok {
			return p, nil
		}
	}

	reqURL := fmt.Sprintf("%s/v1/last?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	resp, err := c.doRequest(ctx, http.MethodGet, reqURL)
	if err != nil {
		return 0, fmt.Errorf("fetch last price %s: %w", symbol, err)
	}

	var result struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	if err := parseResponse(resp, &result); err != nil {
		return 0, fmt.Errorf("fetch last price %s: %w", symbol, err)
	}
	if result.Price <= 0 {
		return 0, fmt.Errorf("no price returned for %s", symbol)
	}

	if c.cache != nil {
		c.cache.SetPrice(symbol, result.Price)
	}
	return result.Price, nil
}
