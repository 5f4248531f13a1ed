package prices

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// oracleResponse is the price endpoint's response shape.
type oracleResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"` // decimal string
	Slot   uint64 `json:"slot"`
}

// Client fetches oracle mark prices over HTTP and keeps a Cache warm. It is
// the polling complement to the websocket Streamer: Lookup serves from cache
// and falls through to a fetch on a miss.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *Cache
}

// NewClient creates a price client writing through to the given cache.
func NewClient(baseURL string, cache *Cache) *Client {
	return &Client{
		baseURL: baseURL,
		cache:   cache,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// MarkPrice returns the latest usable mark price for a symbol. It satisfies
// the sizing.PriceSource interface.
func (c *Client) MarkPrice(symbol string) (float64, error) {
	if price, ok := c.cache.Get(symbol); ok {
		return price, nil
	}

	price, err := c.fetch(symbol)
	if err != nil {
		return 0, err
	}
	c.cache.Set(symbol, price)
	return price, nil
}

func (c *Client) fetch(symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/oracle/%s", c.baseURL, url.PathEscape(symbol))
	resp, err := c.http.Get(endpoint)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch oracle price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle price request returned status %d", resp.StatusCode)
	}

	var out oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse oracle price %q: %w", out.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("oracle returned non-positive price for %s", symbol)
	}
	return price, nil
}
