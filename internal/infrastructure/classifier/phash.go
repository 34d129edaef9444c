package classifier

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/corona10/goimagehash"

	"github.com/shelfmatch/backend/internal/domain"
)

// Perceptual hash similarity thresholds. A 64-bit perception hash yields a
// Hamming distance in [0,64]; similarity is 1 - distance/64.
const (
	phashIdenticalThreshold  = 0.95
	phashAlmostSameThreshold = 0.80
	phashBits                = 64
)

// maxImageBytes bounds how much of a candidate image is read for hashing.
const maxImageBytes = 4 << 20 // 4MB

// PHashClassifier classifies candidates by comparing perceptual hashes of
// the reference image against candidate images. It needs no external AI
// service, which makes it suitable for offline batch runs and deterministic
// tests, at the cost of cruder similarity judgment.
type PHashClassifier struct {
	store      domain.ImageStore // used for non-URL handles; may be nil
	httpClient *http.Client
	debug      bool
}

// NewPHashClassifier creates a local perceptual-hash classifier. store may
// be nil if all image handles are http(s) URLs.
func NewPHashClassifier(store domain.ImageStore) *PHashClassifier {
	return &PHashClassifier{
		store: store,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// SetDebug enables per-candidate hash logging
func (p *PHashClassifier) SetDebug(debug bool) {
	p.debug = debug
}

// Classify hashes the reference image and each candidate image and maps
// hash similarity onto the three-tier status. A candidate whose image
// cannot be fetched is reported as not_match rather than failing the whole
// item; an unreadable reference image fails the classification.
func (p *PHashClassifier) Classify(ctx context.Context, referenceImage string, candidates []domain.ScoredCandidate) ([]domain.ClassifiedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	refHash, err := p.hashImage(ctx, referenceImage)
	if err != nil {
		return nil, fmt.Errorf("%w: reference image: %v", domain.ErrClassifierAPIFailure, err)
	}

	classified := make([]domain.ClassifiedCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		classified = append(classified, p.classifyOne(ctx, refHash, cand))
	}
	return classified, nil
}

func (p *PHashClassifier) classifyOne(ctx context.Context, refHash *goimagehash.ImageHash, cand domain.ScoredCandidate) domain.ClassifiedCandidate {
	if cand.Image == "" {
		return domain.ClassifiedCandidate{
			ScoredCandidate: cand,
			Status:          domain.StatusNotMatch,
			Reasoning:       "no candidate image available",
		}
	}

	candHash, err := p.hashImage(ctx, cand.Image)
	if err != nil {
		if p.debug {
			log.Printf("[PHASH] candidate=%s image fetch failed: %v", cand.ID, err)
		}
		return domain.ClassifiedCandidate{
			ScoredCandidate: cand,
			Status:          domain.StatusNotMatch,
			Reasoning:       fmt.Sprintf("candidate image unavailable: %v", err),
		}
	}

	distance, err := refHash.Distance(candHash)
	if err != nil {
		return domain.ClassifiedCandidate{
			ScoredCandidate: cand,
			Status:          domain.StatusNotMatch,
			Reasoning:       fmt.Sprintf("hash comparison failed: %v", err),
		}
	}

	similarity := 1.0 - float64(distance)/float64(phashBits)
	status := domain.StatusNotMatch
	switch {
	case similarity >= phashIdenticalThreshold:
		status = domain.StatusIdentical
	case similarity >= phashAlmostSameThreshold:
		status = domain.StatusAlmostSame
	}

	if p.debug {
		log.Printf("[PHASH] candidate=%s distance=%d similarity=%.3f status=%s",
			cand.ID, distance, similarity, status)
	}

	return domain.ClassifiedCandidate{
		ScoredCandidate:  cand,
		Status:           status,
		Confidence:       domain.ClampScore(similarity),
		VisualSimilarity: domain.ClampScore(similarity),
		Reasoning:        fmt.Sprintf("perceptual hash distance %d of %d", distance, phashBits),
	}
}

// hashImage fetches and perception-hashes one image handle.
func (p *PHashClassifier) hashImage(ctx context.Context, handle string) (*goimagehash.ImageHash, error) {
	data, err := p.fetch(ctx, handle)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return goimagehash.PerceptionHash(img)
}

// fetch loads image bytes from an http(s) URL or from the image store.
func (p *PHashClassifier) fetch(ctx context.Context, handle string) ([]byte, error) {
	if strings.HasPrefix(handle, "http://") || strings.HasPrefix(handle, "https://") {
		req, err := http.NewRequestWithContext(ctx, "GET", handle, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", domain.ErrImageUnavailable, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	}

	if p.store == nil {
		return nil, fmt.Errorf("%w: no image store configured for handle %q", domain.ErrImageUnavailable, handle)
	}
	data, _, err := p.store.Fetch(ctx, handle)
	return data, err
}
