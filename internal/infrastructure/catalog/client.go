package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/shelfmatch/backend/internal/domain"
)

// maxRetries bounds attempts against the catalog search endpoint.
const maxRetries = 3

// pageSize is how many raw candidates one search returns. The pre-filter
// narrows this down before classification.
const pageSize = "25"

// Client handles communication with the external product catalog search API
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	rateLimiter *rate.Limiter
	debug       bool
}

// NewClient creates a new catalog API client. requestsPerMinute bounds the
// request rate against the provider's quota; zero uses a conservative
// default of 300/min.
func NewClient(apiKey, baseURL string, requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 300
	}
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 10)

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiKey:      apiKey,
		baseURL:     baseURL,
		rateLimiter: limiter,
	}
}

// SetDebug enables request/response logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Retrieve searches the catalog for candidates matching the item's text
// attributes. An empty result is returned as an empty slice, not an error.
func (c *Client) Retrieve(ctx context.Context, item domain.DetectionItem) ([]domain.Candidate, error) {
	query := BuildQuery(item)
	if query == "" {
		return nil, nil
	}

	if c.debug {
		log.Printf("[CATALOG] Retrieve called with query: %q (retailer: %q)", query, item.RetailerContext)
	}

	endpoint := fmt.Sprintf("%s/v1/products/search", c.baseURL)
	params := url.Values{}
	params.Add("query", query)
	params.Add("api_key", c.apiKey)
	params.Add("pageSize", pageSize)
	if item.RetailerContext != "" {
		params.Add("retailer", item.RetailerContext)
	}

	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		// Wait for rate limiter
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if c.debug {
				log.Printf("[CATALOG] request error (attempt %d): %v", attempt, err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, exponentialBackoff(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		// 404 means the catalog has nothing for this query; that is a valid
		// empty result, not a transport failure.
		if resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		if resp.StatusCode != http.StatusOK {
			if c.debug {
				log.Printf("[CATALOG] API error (attempt %d) - status: %d, body: %s", attempt, resp.StatusCode, string(body))
			}
			lastErr = fmt.Errorf("%w: status %d", domain.ErrCatalogAPIFailure, resp.StatusCode)
			if sleepErr := sleepWithContext(ctx, exponentialBackoff(attempt)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		var searchResp searchResponse
		if err := json.Unmarshal(body, &searchResp); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		if c.debug {
			log.Printf("[CATALOG] found %d products for query: %q", len(searchResp.Products), query)
		}
		return mapProducts(searchResp.Products), nil
	}

	return nil, lastErr
}

// doRequest executes an HTTP GET request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "ShelfMatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogAPIFailure, err)
	}

	return resp, nil
}

// exponentialBackoff returns the wait before the next retry attempt
func exponentialBackoff(attempt int) time.Duration {
	return 500 * time.Millisecond << (attempt - 1)
}

// sleepWithContext blocks for d, returning early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
