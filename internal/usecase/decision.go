package usecase

import (
	"math"

	"github.com/shelfmatch/backend/internal/domain"
)

// defaultVisualTieBreakThreshold is the minimum visual similarity a
// candidate needs to win a tie-break among multiple almost_same candidates.
const defaultVisualTieBreakThreshold = 0.70

// visualTieEpsilon treats near-equal visual similarities as an exact tie.
// A non-strict win always routes to manual review instead of guessing a
// secondary tiebreaker.
const visualTieEpsilon = 1e-9

// DecisionConfig holds configuration for the decision engine
type DecisionConfig struct {
	VisualTieBreakThreshold float64
}

// DecisionEngine turns classified candidates for one item into exactly one
// MatchDecision. It is pure: no I/O, no persistence, and calling it twice
// on the same input yields an identical decision.
type DecisionEngine struct {
	visualTieBreakThreshold float64
}

// NewDecisionEngine creates a new decision engine with the given configuration
func NewDecisionEngine(config DecisionConfig) *DecisionEngine {
	threshold := config.VisualTieBreakThreshold
	if threshold <= 0 {
		threshold = defaultVisualTieBreakThreshold
	}

	return &DecisionEngine{
		visualTieBreakThreshold: threshold,
	}
}

// Decide evaluates the classified candidates in strict priority order:
//
//  1. any identical: auto-save the first by original pre-filter rank
//  2. exactly one almost_same: auto-save it (consolidation)
//  3. two or more almost_same: visual tie-break; a unique strict winner at
//     or above the threshold is auto-saved, anything else goes to manual
//     review with all almost_same candidates retained as alternatives
//  4. otherwise: no match
func (e *DecisionEngine) Decide(itemID string, classified []domain.ClassifiedCandidate) domain.MatchDecision {
	// Priority 1: first identical by original rank wins outright.
	for i := range classified {
		if classified[i].Status == domain.StatusIdentical {
			selected := classified[i]
			return domain.MatchDecision{
				ItemID:          itemID,
				Outcome:         domain.OutcomeAutoSaved,
				SelectionMethod: domain.SelectionAutoSelect,
				Selected:        &selected,
				Stage:           domain.StageDecide,
			}
		}
	}

	var almostSame []domain.ClassifiedCandidate
	for i := range classified {
		if classified[i].Status == domain.StatusAlmostSame {
			almostSame = append(almostSame, classified[i])
		}
	}

	switch {
	case len(almostSame) == 1:
		// Priority 2: a single unambiguous near-match consolidates.
		selected := almostSame[0]
		return domain.MatchDecision{
			ItemID:          itemID,
			Outcome:         domain.OutcomeAutoSaved,
			SelectionMethod: domain.SelectionConsolidation,
			Selected:        &selected,
			Stage:           domain.StageDecide,
		}

	case len(almostSame) >= 2:
		// Priority 3: visual tie-break.
		if winner, ok := e.visualTieBreak(almostSame); ok {
			return domain.MatchDecision{
				ItemID:          itemID,
				Outcome:         domain.OutcomeAutoSaved,
				SelectionMethod: domain.SelectionVisualMatch,
				Selected:        winner,
				Stage:           domain.StageDecide,
			}
		}
		return domain.MatchDecision{
			ItemID:       itemID,
			Outcome:      domain.OutcomeManualReview,
			Alternatives: almostSame,
			Stage:        domain.StageDecide,
		}
	}

	// Priority 4: nothing identical, nothing almost the same.
	return domain.MatchDecision{
		ItemID:  itemID,
		Outcome: domain.OutcomeNoMatch,
		Stage:   domain.StageDecide,
	}
}

// visualTieBreak returns the unique candidate whose visual similarity is at
// or above the threshold and strictly greater than every other candidate's.
// Exact ties (within epsilon) have no winner.
func (e *DecisionEngine) visualTieBreak(almostSame []domain.ClassifiedCandidate) (*domain.ClassifiedCandidate, bool) {
	best := 0
	for i := 1; i < len(almostSame); i++ {
		if almostSame[i].VisualSimilarity > almostSame[best].VisualSimilarity {
			best = i
		}
	}

	top := almostSame[best]
	if top.VisualSimilarity < e.visualTieBreakThreshold {
		return nil, false
	}

	for i := range almostSame {
		if i == best {
			continue
		}
		if math.Abs(top.VisualSimilarity-almostSame[i].VisualSimilarity) <= visualTieEpsilon {
			return nil, false
		}
	}

	return &top, true
}
