package retrieval

import (
	"context"
	"fmt"
)

// thresholdStrategy fetches a widened pool and keeps only hits at or above
// the score threshold, preserving similarity order and stopping at k. Fewer
// than k survivors is a normal outcome.
type thresholdStrategy struct {
	index      Index
	threshold  float64
	multiplier int
}

func (s *thresholdStrategy) Name() string { return "similarity_score_threshold" }

func (s *thresholdStrategy) Retrieve(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	multiplier := s.multiplier
	if multiplier <= 0 {
		multiplier = 2
	}
	hits, err := s.index.Query(ctx, embedding, k*multiplier)
	if err != nil {
		return nil, fmt.Errorf("threshold search: %w", err)
	}

	results := make([]Result, 0, k)
	for _, hit := range hits {
		if hit.Score < s.threshold {
			continue
		}
		results = append(results, toResult(hit, true))
		if len(results) == k {
			break
		}
	}
	return results, nil
}
