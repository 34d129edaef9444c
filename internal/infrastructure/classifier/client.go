package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/shelfmatch/backend/internal/domain"
)

// Client calls a remote vision classification service that compares one
// reference image against a bounded candidate list.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	rateLimiter *rate.Limiter
	debug       bool
}

// NewClient creates a new classifier API client. requestsPerMinute bounds
// the request rate; zero uses a conservative default of 60/min.
func NewClient(apiKey, baseURL string, requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 5)

	return &Client{
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
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

// classifyRequest is the wire format sent to the classification endpoint
type classifyRequest struct {
	ReferenceImage string             `json:"referenceImage"`
	Candidates     []requestCandidate `json:"candidates"`
}

type requestCandidate struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Size  string `json:"size,omitempty"`
	Image string `json:"image,omitempty"`
}

// classifyResponse is the wire format returned by the classification endpoint
type classifyResponse struct {
	Results []classifyResult `json:"results"`
}

type classifyResult struct {
	ID               string  `json:"id"`
	Status           string  `json:"status"`
	Confidence       float64 `json:"confidence"`
	VisualSimilarity float64 `json:"visualSimilarity"`
	Reasoning        string  `json:"reasoning"`
}

// Classify sends the reference image and the ordered candidate list to the
// remote service and returns one classified candidate per input, in the
// same order. The call honors ctx: cancellation aborts the request.
func (c *Client) Classify(ctx context.Context, referenceImage string, candidates []domain.ScoredCandidate) ([]domain.ClassifiedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	payload := classifyRequest{
		ReferenceImage: referenceImage,
		Candidates:     make([]requestCandidate, 0, len(candidates)),
	}
	for _, cand := range candidates {
		payload.Candidates = append(payload.Candidates, requestCandidate{
			ID:    cand.ID,
			Title: cand.Title,
			Size:  cand.Size,
			Image: cand.Image,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/classify", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("User-Agent", "ShelfMatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrClassifierAPIFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		if c.debug {
			log.Printf("[CLASSIFIER] API error - status: %d, body: %s", resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("%w: status %d", domain.ErrClassifierAPIFailure, resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return mapResults(candidates, parsed.Results)
}

// mapResults pairs response entries with the input candidates, preserving
// input order. Results are matched by candidate id when present, falling
// back to positional order; scores are clamped and unknown statuses
// downgraded to not_match.
func mapResults(candidates []domain.ScoredCandidate, results []classifyResult) ([]domain.ClassifiedCandidate, error) {
	if len(results) != len(candidates) {
		return nil, fmt.Errorf("%w: %d results for %d candidates",
			domain.ErrClassifierAPIFailure, len(results), len(candidates))
	}

	byID := make(map[string]classifyResult, len(results))
	for _, r := range results {
		if r.ID != "" {
			byID[r.ID] = r
		}
	}

	classified := make([]domain.ClassifiedCandidate, 0, len(candidates))
	for i, cand := range candidates {
		result, ok := byID[cand.ID]
		if !ok {
			result = results[i]
		}
		classified = append(classified, domain.ClassifiedCandidate{
			ScoredCandidate:  cand,
			Status:           parseStatus(result.Status),
			Confidence:       domain.ClampScore(result.Confidence),
			VisualSimilarity: domain.ClampScore(result.VisualSimilarity),
			Reasoning:        result.Reasoning,
		})
	}
	return classified, nil
}

// parseStatus normalizes a wire status to one of the three tiers.
// Anything unrecognized is treated as not_match rather than failing the item.
func parseStatus(status string) domain.ClassificationStatus {
	switch domain.ClassificationStatus(status) {
	case domain.StatusIdentical:
		return domain.StatusIdentical
	case domain.StatusAlmostSame:
		return domain.StatusAlmostSame
	default:
		return domain.StatusNotMatch
	}
}
