package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmatch/backend/internal/domain"
)

func scoredCandidates(ids ...string) []domain.ScoredCandidate {
	out := make([]domain.ScoredCandidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ScoredCandidate{
			Candidate:       domain.Candidate{ID: id, Title: "Candidate " + id},
			SimilarityScore: 0.9,
		})
	}
	return out
}

func TestClassify_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/classify", r.URL.Path)
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req classifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://img.test/ref.jpg", req.ReferenceImage)
		require.Len(t, req.Candidates, 2)

		// Results intentionally out of order; the client matches by id.
		json.NewEncoder(w).Encode(classifyResponse{
			Results: []classifyResult{
				{ID: "c2", Status: "almost_same", Confidence: 0.8, VisualSimilarity: 0.75, Reasoning: "similar label"},
				{ID: "c1", Status: "identical", Confidence: 0.97, VisualSimilarity: 0.96},
			},
		})
	}))
	defer server.Close()

	client := NewClient("test-api-key", server.URL, 6000)

	classified, err := client.Classify(context.Background(), "https://img.test/ref.jpg", scoredCandidates("c1", "c2"))
	require.NoError(t, err)
	require.Len(t, classified, 2)

	// Input order preserved regardless of response order.
	assert.Equal(t, "c1", classified[0].ID)
	assert.Equal(t, domain.StatusIdentical, classified[0].Status)
	assert.Equal(t, 0.97, classified[0].Confidence)

	assert.Equal(t, "c2", classified[1].ID)
	assert.Equal(t, domain.StatusAlmostSame, classified[1].Status)
	assert.Equal(t, "similar label", classified[1].Reasoning)
}

func TestClassify_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty candidates")
	}))
	defer server.Close()

	client := NewClient("test-api-key", server.URL, 6000)

	classified, err := client.Classify(context.Background(), "ref.jpg", nil)
	require.NoError(t, err)
	assert.Nil(t, classified)
}

func TestClassify_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(classifyResponse{
			Results: []classifyResult{{ID: "c1", Status: "identical"}},
		})
	}))
	defer server.Close()

	client := NewClient("test-api-key", server.URL, 6000)

	_, err := client.Classify(context.Background(), "ref.jpg", scoredCandidates("c1", "c2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrClassifierAPIFailure))
}

func TestClassify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient("test-api-key", server.URL, 6000)

	_, err := client.Classify(context.Background(), "ref.jpg", scoredCandidates("c1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrClassifierAPIFailure))
}

func TestClassify_ScoreClampingAndUnknownStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(classifyResponse{
			Results: []classifyResult{
				{ID: "c1", Status: "kind_of_similar", Confidence: 1.8, VisualSimilarity: -0.4},
			},
		})
	}))
	defer server.Close()

	client := NewClient("test-api-key", server.URL, 6000)

	classified, err := client.Classify(context.Background(), "ref.jpg", scoredCandidates("c1"))
	require.NoError(t, err)
	require.Len(t, classified, 1)

	assert.Equal(t, domain.StatusNotMatch, classified[0].Status)
	assert.Equal(t, 1.0, classified[0].Confidence)
	assert.Equal(t, 0.0, classified[0].VisualSimilarity)
}

func TestClassify_PositionalFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Results without ids fall back to positional pairing.
		json.NewEncoder(w).Encode(classifyResponse{
			Results: []classifyResult{
				{Status: "identical", Confidence: 0.95},
				{Status: "not_match", Confidence: 0.1},
			},
		})
	}))
	defer server.Close()

	client := NewClient("test-api-key", server.URL, 6000)

	classified, err := client.Classify(context.Background(), "ref.jpg", scoredCandidates("c1", "c2"))
	require.NoError(t, err)
	require.Len(t, classified, 2)
	assert.Equal(t, domain.StatusIdentical, classified[0].Status)
	assert.Equal(t, domain.StatusNotMatch, classified[1].Status)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected domain.ClassificationStatus
	}{
		{"identical", domain.StatusIdentical},
		{"almost_same", domain.StatusAlmostSame},
		{"not_match", domain.StatusNotMatch},
		{"", domain.StatusNotMatch},
		{"garbage", domain.StatusNotMatch},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseStatus(tt.input))
		})
	}
}
