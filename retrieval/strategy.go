// Package retrieval implements the selectable search strategies over the
// vector index: plain similarity, maximal marginal relevance and score
// thresholding.
package retrieval

import (
	"context"
	"fmt"

	"civil-law-rag/config"
	"civil-law-rag/index"
)

// Index is the read surface the strategies need.
type Index interface {
	Query(ctx context.Context, embedding []float32, limit int) ([]index.ScoredChunk, error)
}

// Result is one retrieved chunk. Scored distinguishes a real similarity score
// from strategies whose internal ranking is not a similarity (MMR).
type Result struct {
	ID       string
	Text     string
	Metadata map[string]any
	Score    float64
	Scored   bool
}

// Strategy retrieves up to k chunks for a query embedding. An empty result is
// a valid answer, not an error.
type Strategy interface {
	Name() string
	Retrieve(ctx context.Context, embedding []float32, k int) ([]Result, error)
}

// New builds the strategy selected by cfg.Method.
func New(cfg config.RetrievalConfig, idx Index) (Strategy, error) {
	switch cfg.Method {
	case config.MethodSimilarity, "":
		return &similarityStrategy{index: idx}, nil
	case config.MethodMMR:
		return &mmrStrategy{
			index:      idx,
			diversity:  cfg.MMRDiversity,
			multiplier: cfg.CandidateMultiplier,
		}, nil
	case config.MethodThreshold:
		return &thresholdStrategy{
			index:      idx,
			threshold:  cfg.ScoreThreshold,
			multiplier: cfg.ThresholdFetchMultiplier,
		}, nil
	default:
		return nil, fmt.Errorf("unknown retrieval method: %s", cfg.Method)
	}
}

func toResult(c index.ScoredChunk, scored bool) Result {
	return Result{
		ID:       c.ID,
		Text:     c.Text,
		Metadata: c.Metadata,
		Score:    c.Score,
		Scored:   scored,
	}
}
