package retrieval

import (
	"context"
	"fmt"
	"math"

	"civil-law-rag/index"
)

// mmrStrategy reranks a widened candidate pool with maximal marginal
// relevance: each pick maximizes (1-w)*relevance - w*maxSimilarityToSelected,
// where w is the diversity weight in [0, 1]. With w = 0 the result order is
// pure relevance. Ties keep candidate order, so reranking is deterministic.
type mmrStrategy struct {
	index      Index
	diversity  float64
	multiplier int
}

func (s *mmrStrategy) Name() string { return "mmr" }

func (s *mmrStrategy) Retrieve(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	multiplier := s.multiplier
	if multiplier <= 0 {
		multiplier = 3
	}
	candidates, err := s.index.Query(ctx, embedding, k*multiplier)
	if err != nil {
		return nil, fmt.Errorf("mmr candidate fetch: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	w := s.diversity
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}

	selected := make([]index.ScoredChunk, 0, k)
	remaining := make([]index.ScoredChunk, len(candidates))
	copy(remaining, candidates)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			redundancy := 0.0
			for _, sel := range selected {
				if sim := cosineSimilarity(cand.Embedding, sel.Embedding); sim > redundancy {
					redundancy = sim
				}
			}
			score := (1-w)*cand.Score - w*redundancy
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	results := make([]Result, 0, len(selected))
	for _, hit := range selected {
		results = append(results, toResult(hit, false))
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
