package usecase

import (
	"sync/atomic"

	"github.com/shelfmatch/backend/internal/domain"
)

// RunStats aggregates cumulative counters for one batch run. All updates are
// atomic so concurrent pipeline completions never race; every counter is
// monotonically non-decreasing for the duration of the run.
type RunStats struct {
	processed atomic.Int64
	success   atomic.Int64
	noMatch   atomic.Int64
	errors    atomic.Int64
}

// NewRunStats creates an empty stats aggregator
func NewRunStats() *RunStats {
	return &RunStats{}
}

// Record counts one terminal decision.
func (s *RunStats) Record(outcome domain.MatchOutcome) {
	s.processed.Add(1)
	switch outcome {
	case domain.OutcomeAutoSaved, domain.OutcomeManualReview:
		s.success.Add(1)
	case domain.OutcomeNoMatch:
		s.noMatch.Add(1)
	case domain.OutcomeError:
		s.errors.Add(1)
	}
}

// Snapshot returns a point-in-time copy of the counters.
func (s *RunStats) Snapshot() domain.PipelineRunStats {
	return domain.PipelineRunStats{
		Processed: s.processed.Load(),
		Success:   s.success.Load(),
		NoMatch:   s.noMatch.Load(),
		Errors:    s.errors.Load(),
	}
}
