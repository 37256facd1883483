package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned for any non-200 response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coingecko status %d: %s", e.StatusCode, e.Message)
}

type RESTClient struct {
	baseURL      string
	httpClient   *http.Client
	apiKeyHeader string
	apiKey       string
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetAPIKey attaches key to every request under header. An empty key is a no-op.
func (c *RESTClient) SetAPIKey(header, key string) {
	if key == "" {
		return
	}
	c.apiKeyHeader = header
	c.apiKey = key
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// MarketsParams are the query parameters of GET /coins/markets.
type MarketsParams struct {
	VsCurrency string
	Order      MarketOrder
	PerPage    int
	Page       int
}

// GetCoinMarkets fetches one page of the asset listing.
func (c *RESTClient) GetCoinMarkets(ctx context.Context, p MarketsParams) ([]MarketCoin, error) {
	if p.Page <= 0 {
		p.Page = 1
	}
	q := url.Values{}
	q.Set("vs_currency", p.VsCurrency)
	q.Set("order", string(p.Order))
	q.Set("per_page", strconv.Itoa(p.PerPage))
	q.Set("page", strconv.Itoa(p.Page))
	q.Set("sparkline", "false")
	q.Set("locale", "en")

	var coins []MarketCoin
	if err := c.get(ctx, "/coins/markets", q, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// GetGlobal fetches the global aggregate statistics.
func (c *RESTClient) GetGlobal(ctx context.Context) (*GlobalData, error) {
	var resp GlobalResponse
	if err := c.get(ctx, "/global", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, errors.New("decode response: missing data")
	}
	return resp.Data, nil
}

func (c *RESTClient) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the upstream message, falling back to the raw body.
func errorMessage(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Status.ErrorMessage != "" {
			return e.Status.ErrorMessage
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}
