package domain

import (
	"context"
	"time"
)

// CatalogRetriever defines the external product catalog search capability.
// A transient failure is scoped to the one item being processed.
type CatalogRetriever interface {
	Retrieve(ctx context.Context, item DetectionItem) ([]Candidate, error)
}

// CandidateClassifier defines the external visual classification capability.
// Implementations must return exactly one classified candidate per input
// candidate, in the same order, and must honor context cancellation.
type CandidateClassifier interface {
	Classify(ctx context.Context, referenceImage string, candidates []ScoredCandidate) ([]ClassifiedCandidate, error)
}

// ImageStore fetches image bytes by handle (object storage key).
type ImageStore interface {
	Fetch(ctx context.Context, handle string) (data []byte, contentType string, err error)
}

// DecisionSink is the persistence collaborator. It receives every finished
// decision together with the scored candidate list for audit storage.
// This core defines only the boundary, not any storage schema.
type DecisionSink interface {
	Record(ctx context.Context, item DetectionItem, decision MatchDecision, scored []ScoredCandidate) error
}

// CacheRepository defines the interface for caching retrieval results.
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
