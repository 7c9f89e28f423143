package retrieval

import (
	"context"
	"fmt"
)

// similarityStrategy returns the k nearest chunks in descending similarity.
type similarityStrategy struct {
	index Index
}

func (s *similarityStrategy) Name() string { return "similarity" }

func (s *similarityStrategy) Retrieve(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	hits, err := s.index.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, toResult(hit, true))
	}
	return results, nil
}
