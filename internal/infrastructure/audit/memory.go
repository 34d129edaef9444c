package audit

import (
	"context"
	"sync"

	"github.com/shelfmatch/backend/internal/domain"
)

// Record is one audited match decision together with the scored
// candidates the decision was made over.
type Record struct {
	Item     domain.DetectionItem
	Decision domain.MatchDecision
	Scored   []domain.ScoredCandidate
}

// MemorySink keeps decision records in memory. It backs the CLI and
// tests; a database-backed sink can replace it behind the same
// interface.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemorySink creates an empty in-memory decision sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends a decision to the audit log.
func (s *MemorySink) Record(ctx context.Context, item domain.DetectionItem, decision domain.MatchDecision, scored []domain.ScoredCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Item: item, Decision: decision, Scored: scored})
	return nil
}

// Records returns a copy of all recorded decisions.
func (s *MemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of recorded decisions.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
