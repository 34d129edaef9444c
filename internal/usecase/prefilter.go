package usecase

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/shelfmatch/backend/internal/domain"
)

// Package-level compiled regex patterns for performance
var (
	punctuationRegex    = regexp.MustCompile(`[^\w\s]`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
)

// Brand similarity tiers
const (
	brandExactScore   = 1.0 // normalized exact match
	brandContainScore = 0.8 // substring containment either direction
	brandOverlapBase  = 0.5 // token overlap scales from here...
	brandOverlapSpan  = 0.3 // ...up to brandOverlapBase+brandOverlapSpan
)

// defaultPreFilterThreshold is the minimum normalized score a candidate
// needs to survive the text pre-filter.
const defaultPreFilterThreshold = 0.85

// PreFilterConfig holds configuration for the pre-filter scorer
type PreFilterConfig struct {
	Threshold          float64
	EnableDebugLogging bool
}

// PreFilterScorer scores raw catalog candidates using only structured text
// attributes, before any expensive visual comparison.
type PreFilterScorer struct {
	threshold          float64
	enableDebugLogging bool
}

// NewPreFilterScorer creates a new pre-filter scorer with the given configuration
func NewPreFilterScorer(config PreFilterConfig) *PreFilterScorer {
	threshold := config.Threshold
	if threshold <= 0 {
		threshold = defaultPreFilterThreshold
	}

	return &PreFilterScorer{
		threshold:          threshold,
		enableDebugLogging: config.EnableDebugLogging,
	}
}

// Score scores every candidate against the item's text attributes and
// returns those at or above the threshold, sorted descending by score.
// Candidates whose explicit retailer list excludes the item's known retailer
// are dropped entirely, regardless of brand score. Zero candidates in means
// zero candidates out; that is not an error.
func (s *PreFilterScorer) Score(item domain.DetectionItem, candidates []domain.Candidate) []domain.ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	scored := make([]domain.ScoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		sc, ok := s.scoreCandidate(item, cand)
		if !ok {
			continue
		}
		if s.enableDebugLogging {
			log.Printf("[PREFILTER] item=%s candidate=%s score=%.3f reasons=%v",
				item.ID, cand.ID, sc.SimilarityScore, sc.MatchReasons)
		}
		if sc.SimilarityScore >= s.threshold {
			scored = append(scored, sc)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].SimilarityScore > scored[j].SimilarityScore
	})

	return scored
}

// scoreCandidate computes the normalized score for one candidate. The second
// return value is false when the candidate is excluded by the retailer hard
// fail.
//
// Each sub-score is computed only for item attributes that are present;
// absent attributes are skipped entirely and excluded from the normalization
// denominator, so sparse records can still pass on the fields they do have.
// Size is intentionally not scored here: extraction confidence and unit
// format variance make it unreliable as text, so size discrimination is
// deferred to the visual classification stage.
func (s *PreFilterScorer) scoreCandidate(item domain.DetectionItem, cand domain.Candidate) (domain.ScoredCandidate, bool) {
	var applied, maximum float64
	var reasons []string

	// Retailer term: binary, and a hard fail on explicit mismatch.
	// An empty candidate retailer list means unknown availability, which is
	// not the same as wrong; the term is simply omitted.
	if item.RetailerContext != "" && len(cand.Retailers) > 0 {
		if !retailerListed(item.RetailerContext, cand.Retailers) {
			return domain.ScoredCandidate{}, false
		}
		applied += 1.0
		maximum += 1.0
		reasons = append(reasons, fmt.Sprintf("sold at %s", item.RetailerContext))
	}

	// Brand term: best similarity across the candidate's text fields.
	if item.Brand != "" {
		score, field := bestBrandSimilarity(item.Brand, cand)
		applied += score
		maximum += 1.0
		if score > 0 {
			reasons = append(reasons, fmt.Sprintf("brand %.2f via %s", score, field))
		}
	}

	if maximum == 0 {
		// No scorable attributes on the item at all: no evidence either way,
		// so the candidate cannot pass the threshold.
		return domain.ScoredCandidate{Candidate: cand}, true
	}

	return domain.ScoredCandidate{
		Candidate:       cand,
		SimilarityScore: domain.ClampScore(applied / maximum),
		MatchReasons:    reasons,
	}, true
}

// bestBrandSimilarity returns the maximum brand similarity across the
// candidate's brand, manufacturer, and title fields, plus the field name
// that produced it.
func bestBrandSimilarity(itemBrand string, cand domain.Candidate) (float64, string) {
	fields := []struct {
		name  string
		value string
	}{
		{"brand", cand.Brand},
		{"manufacturer", cand.Manufacturer},
		{"title", cand.Title},
	}

	best := 0.0
	bestField := ""
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		score := brandSimilarity(itemBrand, f.value)
		if score > best {
			best = score
			bestField = f.name
		}
	}
	return best, bestField
}

// brandSimilarity compares two brand strings using discrete tiers:
// exact normalized match, substring containment, then token overlap
// proportional to the Jaccard ratio of the token sets.
func brandSimilarity(a, b string) float64 {
	na := normalizeText(a)
	nb := normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}

	if na == nb {
		return brandExactScore
	}

	if strings.Contains(nb, na) || strings.Contains(na, nb) {
		return brandContainScore
	}

	ta := strings.Fields(na)
	tb := strings.Fields(nb)
	inter := tokenIntersection(ta, tb)
	if inter == 0 {
		return 0
	}
	union := tokenUnion(ta, tb)
	ratio := float64(inter) / float64(union)
	return brandOverlapBase + brandOverlapSpan*ratio
}

// retailerListed reports whether the retailer appears in the candidate's
// explicit retailer list, after normalization.
func retailerListed(retailer string, listed []string) bool {
	want := normalizeText(retailer)
	for _, r := range listed {
		if normalizeText(r) == want {
			return true
		}
	}
	return false
}

// normalizeText lowercases, strips punctuation, and collapses whitespace.
func normalizeText(s string) string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	cleaned = multipleSpacesRegex.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// tokenIntersection returns the count of distinct common tokens
func tokenIntersection(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}

	count := 0
	seen := make(map[string]bool)
	for _, t := range tokens2 {
		if set[t] && !seen[t] {
			count++
			seen[t] = true
		}
	}
	return count
}

// tokenUnion returns the count of unique tokens across both sets
func tokenUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}
