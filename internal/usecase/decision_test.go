package usecase

import (
	"testing"

	"github.com/shelfmatch/backend/internal/domain"
)

func classified(id string, status domain.ClassificationStatus, visual float64) domain.ClassifiedCandidate {
	return domain.ClassifiedCandidate{
		ScoredCandidate: domain.ScoredCandidate{
			Candidate: domain.Candidate{ID: id},
		},
		Status:           status,
		Confidence:       0.9,
		VisualSimilarity: visual,
	}
}

func TestNewDecisionEngine(t *testing.T) {
	t.Run("uses provided threshold", func(t *testing.T) {
		e := NewDecisionEngine(DecisionConfig{VisualTieBreakThreshold: 0.9})
		if e.visualTieBreakThreshold != 0.9 {
			t.Errorf("threshold = %v, want 0.9", e.visualTieBreakThreshold)
		}
	})

	t.Run("uses default threshold when zero", func(t *testing.T) {
		e := NewDecisionEngine(DecisionConfig{})
		if e.visualTieBreakThreshold != defaultVisualTieBreakThreshold {
			t.Errorf("threshold = %v, want %v", e.visualTieBreakThreshold, defaultVisualTieBreakThreshold)
		}
	})
}

func TestDecide(t *testing.T) {
	engine := NewDecisionEngine(DecisionConfig{VisualTieBreakThreshold: 0.70})

	t.Run("identical wins by pre-filter rank", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusAlmostSame, 0.9),
			classified("c2", domain.StatusIdentical, 0.8),
			classified("c3", domain.StatusIdentical, 0.99),
		}

		d := engine.Decide("item-1", input)
		if d.Outcome != domain.OutcomeAutoSaved {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeAutoSaved)
		}
		if d.SelectionMethod != domain.SelectionAutoSelect {
			t.Errorf("method = %v, want %v", d.SelectionMethod, domain.SelectionAutoSelect)
		}
		// c2 comes first in pre-filter order even though c3 looks better
		// visually.
		if d.Selected == nil || d.Selected.ID != "c2" {
			t.Errorf("selected = %+v, want c2", d.Selected)
		}
	})

	t.Run("single almost_same consolidates", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusNotMatch, 0.2),
			classified("c2", domain.StatusAlmostSame, 0.75),
			classified("c3", domain.StatusNotMatch, 0.1),
		}

		d := engine.Decide("item-1", input)
		if d.Outcome != domain.OutcomeAutoSaved {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeAutoSaved)
		}
		if d.SelectionMethod != domain.SelectionConsolidation {
			t.Errorf("method = %v, want %v", d.SelectionMethod, domain.SelectionConsolidation)
		}
		if d.Selected == nil || d.Selected.ID != "c2" {
			t.Errorf("selected = %+v, want c2", d.Selected)
		}
	})

	t.Run("visual tie-break selects the unique strict winner", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusAlmostSame, 0.72),
			classified("c2", domain.StatusAlmostSame, 0.91),
			classified("c3", domain.StatusAlmostSame, 0.80),
		}

		d := engine.Decide("item-1", input)
		if d.Outcome != domain.OutcomeAutoSaved {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeAutoSaved)
		}
		if d.SelectionMethod != domain.SelectionVisualMatch {
			t.Errorf("method = %v, want %v", d.SelectionMethod, domain.SelectionVisualMatch)
		}
		if d.Selected == nil || d.Selected.ID != "c2" {
			t.Errorf("selected = %+v, want c2", d.Selected)
		}
	})

	t.Run("winner below threshold goes to manual review", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusAlmostSame, 0.55),
			classified("c2", domain.StatusAlmostSame, 0.65),
		}

		d := engine.Decide("item-1", input)
		if d.Outcome != domain.OutcomeManualReview {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeManualReview)
		}
		if d.Selected != nil {
			t.Errorf("selected = %+v, want nil", d.Selected)
		}
		if len(d.Alternatives) != 2 {
			t.Errorf("alternatives = %d, want 2", len(d.Alternatives))
		}
	})

	t.Run("exact visual tie goes to manual review", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusAlmostSame, 0.85),
			classified("c2", domain.StatusAlmostSame, 0.85),
			classified("c3", domain.StatusAlmostSame, 0.40),
		}

		d := engine.Decide("item-1", input)
		if d.Outcome != domain.OutcomeManualReview {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeManualReview)
		}
		if len(d.Alternatives) != 3 {
			t.Errorf("alternatives = %d, want 3 (all almost_same retained)", len(d.Alternatives))
		}
	})

	t.Run("near-equal similarities within epsilon count as a tie", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusAlmostSame, 0.85),
			classified("c2", domain.StatusAlmostSame, 0.85+1e-12),
		}

		d := engine.Decide("item-1", input)
		if d.Outcome != domain.OutcomeManualReview {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeManualReview)
		}
	})

	t.Run("all not_match yields no match", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusNotMatch, 0.1),
			classified("c2", domain.StatusNotMatch, 0.3),
		}

		d := engine.Decide("item-1", input)
		if d.Outcome != domain.OutcomeNoMatch {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeNoMatch)
		}
		if d.Selected != nil || len(d.Alternatives) != 0 {
			t.Errorf("no-match decision carries candidates: %+v", d)
		}
	})

	t.Run("empty input yields no match", func(t *testing.T) {
		d := engine.Decide("item-1", nil)
		if d.Outcome != domain.OutcomeNoMatch {
			t.Errorf("outcome = %v, want %v", d.Outcome, domain.OutcomeNoMatch)
		}
	})

	t.Run("identical outranks any almost_same", func(t *testing.T) {
		input := []domain.ClassifiedCandidate{
			classified("c1", domain.StatusAlmostSame, 0.99),
			classified("c2", domain.StatusAlmostSame, 0.98),
			classified("c3", domain.StatusIdentical, 0.10),
		}

		d := engine.Decide("item-1", input)
		if d.SelectionMethod != domain.SelectionAutoSelect {
			t.Errorf("method = %v, want %v", d.SelectionMethod, domain.SelectionAutoSelect)
		}
		if d.Selected == nil || d.Selected.ID != "c3" {
			t.Errorf("selected = %+v, want c3", d.Selected)
		}
	})
}

func TestDecideIsIdempotent(t *testing.T) {
	engine := NewDecisionEngine(DecisionConfig{})
	input := []domain.ClassifiedCandidate{
		classified("c1", domain.StatusAlmostSame, 0.72),
		classified("c2", domain.StatusAlmostSame, 0.91),
	}

	first := engine.Decide("item-1", input)
	for i := 0; i < 10; i++ {
		again := engine.Decide("item-1", input)
		if again.Outcome != first.Outcome || again.SelectionMethod != first.SelectionMethod {
			t.Fatalf("run %d: decision changed: %+v vs %+v", i, again, first)
		}
		if (again.Selected == nil) != (first.Selected == nil) {
			t.Fatalf("run %d: selection presence changed", i)
		}
		if again.Selected != nil && again.Selected.ID != first.Selected.ID {
			t.Fatalf("run %d: selected %s, want %s", i, again.Selected.ID, first.Selected.ID)
		}
	}
}
