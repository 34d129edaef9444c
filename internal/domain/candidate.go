package domain

// Candidate represents a raw catalog entry returned by the retrieval
// capability before any scoring.
type Candidate struct {
	ID           string   `json:"id"`
	Brand        string   `json:"brand,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Title        string   `json:"title"`
	Size         string   `json:"size,omitempty"`
	Retailers    []string `json:"retailers,omitempty"` // empty = unknown availability
	Image        string   `json:"image,omitempty"`
}

// ScoredCandidate is a candidate that passed the text pre-filter.
// Never mutated after the scorer emits it.
type ScoredCandidate struct {
	Candidate
	SimilarityScore float64  `json:"similarityScore"` // always within [0,1]
	MatchReasons    []string `json:"matchReasons,omitempty"`
}

// ClassificationStatus is the three-tier verdict the classification
// capability emits for one candidate.
type ClassificationStatus string

const (
	StatusIdentical  ClassificationStatus = "identical"
	StatusAlmostSame ClassificationStatus = "almost_same"
	StatusNotMatch   ClassificationStatus = "not_match"
)

// ClassifiedCandidate is a scored candidate after visual classification.
type ClassifiedCandidate struct {
	ScoredCandidate
	Status           ClassificationStatus `json:"status"`
	Confidence       float64              `json:"confidence"`       // [0,1]
	VisualSimilarity float64              `json:"visualSimilarity"` // [0,1]
	Reasoning        string               `json:"reasoning,omitempty"`
}

// ClampScore forces a score into [0,1].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
