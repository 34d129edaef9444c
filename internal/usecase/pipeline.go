package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shelfmatch/backend/internal/domain"
)

// defaultCandidateCap bounds how many scored candidates are forwarded to
// the classifier. The cap bounds external cost and latency per item.
const defaultCandidateCap = 10

// PipelineConfig holds configuration for the per-item pipeline
type PipelineConfig struct {
	PreFilterThreshold      float64
	CandidateCap            int
	VisualTieBreakThreshold float64
	CacheTTL                time.Duration
	EnableDebugLogging      bool
}

// ItemPipeline composes retrieval, pre-filter scoring, classification, and
// the decision engine for a single detection item. Every item is fully
// independent: the pipeline shares no state across invocations, so it is
// safe to call Process concurrently.
type ItemPipeline struct {
	retriever    domain.CatalogRetriever
	classifier   domain.CandidateClassifier
	scorer       *PreFilterScorer
	engine       *DecisionEngine
	sink         domain.DecisionSink    // optional
	cache        domain.CacheRepository // optional retrieval cache
	cacheTTL     time.Duration
	candidateCap int
	debug        bool
}

// NewItemPipeline creates a per-item pipeline with its dependencies.
// sink and cache may be nil.
func NewItemPipeline(
	retriever domain.CatalogRetriever,
	classifier domain.CandidateClassifier,
	sink domain.DecisionSink,
	cache domain.CacheRepository,
	config PipelineConfig,
) *ItemPipeline {
	candidateCap := config.CandidateCap
	if candidateCap <= 0 {
		candidateCap = defaultCandidateCap
	}

	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}

	return &ItemPipeline{
		retriever:  retriever,
		classifier: classifier,
		scorer: NewPreFilterScorer(PreFilterConfig{
			Threshold:          config.PreFilterThreshold,
			EnableDebugLogging: config.EnableDebugLogging,
		}),
		engine: NewDecisionEngine(DecisionConfig{
			VisualTieBreakThreshold: config.VisualTieBreakThreshold,
		}),
		sink:         sink,
		cache:        cache,
		cacheTTL:     cacheTTL,
		candidateCap: candidateCap,
		debug:        config.EnableDebugLogging,
	}
}

// Process runs one item through the full pipeline and always returns a
// terminal decision. Failures never propagate as errors: retrieval,
// classification, and validation problems all resolve to an error outcome
// scoped to this item.
func (p *ItemPipeline) Process(ctx context.Context, item domain.DetectionItem) domain.MatchDecision {
	if err := item.Validate(); err != nil {
		return p.fail(ctx, item, domain.StageValidate, err, nil)
	}

	candidates, err := p.retrieve(ctx, item)
	if err != nil {
		return p.fail(ctx, item, domain.StageRetrieve,
			fmt.Errorf("%w: %v", domain.ErrRetrievalFailed, err), nil)
	}

	scored := p.scorer.Score(item, candidates)
	if len(scored) == 0 {
		decision := domain.MatchDecision{
			ItemID:  item.ID,
			Outcome: domain.OutcomeNoMatch,
			Stage:   domain.StagePreFilter,
		}
		p.record(ctx, item, decision, scored)
		return decision
	}

	if len(scored) > p.candidateCap {
		scored = scored[:p.candidateCap]
	}

	classified, err := p.classify(ctx, item, scored)
	if err != nil {
		return p.fail(ctx, item, domain.StageClassify,
			fmt.Errorf("%w: %v", domain.ErrClassificationFailed, err), scored)
	}

	decision := p.engine.Decide(item.ID, classified)
	if p.debug {
		log.Printf("[PIPELINE] item=%s outcome=%s method=%s candidates=%d",
			item.ID, decision.Outcome, decision.SelectionMethod, len(classified))
	}

	p.record(ctx, item, decision, scored)
	return decision
}

// retrieve fetches catalog candidates, consulting the retrieval cache first
// when one is configured. Cache failures fall through to a live call.
func (p *ItemPipeline) retrieve(ctx context.Context, item domain.DetectionItem) ([]domain.Candidate, error) {
	key := retrievalCacheKey(item)

	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, key); err == nil {
			if candidates, ok := decodeCachedCandidates(cached); ok {
				if p.debug {
					log.Printf("[PIPELINE] item=%s retrieval cache hit (%d candidates)", item.ID, len(candidates))
				}
				return candidates, nil
			}
		}
	}

	candidates, err := p.retriever.Retrieve(ctx, item)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if encoded, err := json.Marshal(candidates); err == nil {
			if err := p.cache.Set(ctx, key, string(encoded), p.cacheTTL); err != nil && p.debug {
				log.Printf("[PIPELINE] item=%s retrieval cache store failed: %v", item.ID, err)
			}
		}
	}

	return candidates, nil
}

// classify forwards the truncated candidate list to the classifier and
// sanitizes its output: scores are clamped into [0,1] and the response must
// be one classified candidate per input candidate.
func (p *ItemPipeline) classify(ctx context.Context, item domain.DetectionItem, scored []domain.ScoredCandidate) ([]domain.ClassifiedCandidate, error) {
	classified, err := p.classifier.Classify(ctx, item.ReferenceImage, scored)
	if err != nil {
		return nil, err
	}
	if len(classified) != len(scored) {
		return nil, fmt.Errorf("classifier returned %d results for %d candidates", len(classified), len(scored))
	}

	for i := range classified {
		classified[i].Confidence = domain.ClampScore(classified[i].Confidence)
		classified[i].VisualSimilarity = domain.ClampScore(classified[i].VisualSimilarity)
	}
	return classified, nil
}

// fail builds the terminal error decision for one item.
func (p *ItemPipeline) fail(ctx context.Context, item domain.DetectionItem, stage string, err error, scored []domain.ScoredCandidate) domain.MatchDecision {
	if p.debug {
		log.Printf("[PIPELINE] item=%s failed at %s: %v", item.ID, stage, err)
	}
	decision := domain.MatchDecision{
		ItemID:        item.ID,
		Outcome:       domain.OutcomeError,
		Stage:         stage,
		FailureReason: err.Error(),
	}
	p.record(ctx, item, decision, scored)
	return decision
}

// record hands the finished decision to the persistence collaborator.
// Audit storage is best effort: a sink failure is logged, never surfaced as
// an item failure.
func (p *ItemPipeline) record(ctx context.Context, item domain.DetectionItem, decision domain.MatchDecision, scored []domain.ScoredCandidate) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Record(ctx, item, decision, scored); err != nil {
		log.Printf("[PIPELINE] item=%s audit record failed: %v", item.ID, err)
	}
}

// retrievalCacheKey builds a normalized cache key from the item attributes
// that drive retrieval. Format: "retrieval:{brand}:{name}:{retailer}"
func retrievalCacheKey(item domain.DetectionItem) string {
	return fmt.Sprintf("retrieval:%s:%s:%s",
		normalizeText(item.Brand),
		normalizeText(item.ProductName),
		normalizeText(item.RetailerContext))
}

// decodeCachedCandidates unwraps a cached retrieval result. Values come back
// from the cache as the JSON string stored by retrieve.
func decodeCachedCandidates(value interface{}) ([]domain.Candidate, bool) {
	encoded, ok := value.(string)
	if !ok {
		return nil, false
	}
	var candidates []domain.Candidate
	if err := json.Unmarshal([]byte(encoded), &candidates); err != nil {
		return nil, false
	}
	return candidates, true
}
