package retrieval

import (
	"context"
	"testing"

	"civil-law-rag/config"
	"civil-law-rag/index"
)

// fakeIndex returns its canned hits in order, truncated to the limit.
type fakeIndex struct {
	hits      []index.ScoredChunk
	lastLimit int
}

func (f *fakeIndex) Query(ctx context.Context, embedding []float32, limit int) ([]index.ScoredChunk, error) {
	f.lastLimit = limit
	if limit > len(f.hits) {
		limit = len(f.hits)
	}
	return f.hits[:limit], nil
}

func chunk(id string, score float64, embedding ...float32) index.ScoredChunk {
	return index.ScoredChunk{ID: id, Text: id + " text", Score: score, Embedding: embedding}
}

func TestNewRejectsUnknownMethod(t *testing.T) {
	_, err := New(config.RetrievalConfig{Method: "bogus"}, &fakeIndex{})
	if err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestSimilarityReturnsTopK(t *testing.T) {
	idx := &fakeIndex{hits: []index.ScoredChunk{
		chunk("a", 0.9), chunk("b", 0.8), chunk("c", 0.7), chunk("d", 0.6),
	}}
	strategy, err := New(config.RetrievalConfig{Method: config.MethodSimilarity}, idx)
	if err != nil {
		t.Fatalf("build strategy: %v", err)
	}

	results, err := strategy.Retrieve(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ID != "a" || results[2].ID != "c" {
		t.Fatalf("order not preserved: %v", results)
	}
	if !results[0].Scored {
		t.Fatal("similarity results must carry scores")
	}
}

func TestSimilarityEmptyIndexIsNotAnError(t *testing.T) {
	strategy, _ := New(config.RetrievalConfig{Method: config.MethodSimilarity}, &fakeIndex{})

	results, err := strategy.Retrieve(context.Background(), []float32{1}, 5)
	if err != nil {
		t.Fatalf("empty index must not error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestMMRWidensCandidatePool(t *testing.T) {
	idx := &fakeIndex{hits: []index.ScoredChunk{chunk("a", 0.9, 1, 0)}}
	strategy, _ := New(config.RetrievalConfig{
		Method:              config.MethodMMR,
		MMRDiversity:        0.3,
		CandidateMultiplier: 3,
	}, idx)

	if _, err := strategy.Retrieve(context.Background(), []float32{1, 0}, 5); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if idx.lastLimit != 15 {
		t.Fatalf("expected candidate fetch of 15, got %d", idx.lastLimit)
	}
}

func TestMMRZeroDiversityIsPureRelevance(t *testing.T) {
	idx := &fakeIndex{hits: []index.ScoredChunk{
		chunk("a", 0.9, 1, 0),
		chunk("b", 0.8, 1, 0.01),
		chunk("c", 0.7, 0, 1),
	}}
	strategy, _ := New(config.RetrievalConfig{
		Method:              config.MethodMMR,
		MMRDiversity:        0,
		CandidateMultiplier: 3,
	}, idx)

	results, err := strategy.Retrieve(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Fatalf("zero diversity must follow relevance order, got %v", results)
	}
}

func TestMMRFullDiversityPenalizesNearDuplicates(t *testing.T) {
	// b is almost identical to a; with full diversity weight c wins the
	// second slot despite its lower relevance.
	idx := &fakeIndex{hits: []index.ScoredChunk{
		chunk("a", 0.9, 1, 0),
		chunk("b", 0.8, 1, 0.01),
		chunk("c", 0.7, 0, 1),
	}}
	strategy, _ := New(config.RetrievalConfig{
		Method:              config.MethodMMR,
		MMRDiversity:        1,
		CandidateMultiplier: 3,
	}, idx)

	results, err := strategy.Retrieve(context.Background(), []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].ID != "c" {
		t.Fatalf("expected diverse pick c, got %s", results[1].ID)
	}
	if results[0].Scored {
		t.Fatal("mmr ranking is not a similarity score")
	}
}

func TestThresholdFiltersAndStopsAtK(t *testing.T) {
	idx := &fakeIndex{hits: []index.ScoredChunk{
		chunk("a", 0.9), chunk("b", 0.75), chunk("c", 0.65), chunk("d", 0.5),
	}}
	strategy, _ := New(config.RetrievalConfig{
		Method:                   config.MethodThreshold,
		ScoreThreshold:           0.7,
		ThresholdFetchMultiplier: 2,
	}, idx)

	results, err := strategy.Retrieve(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if idx.lastLimit != 6 {
		t.Fatalf("expected widened fetch of 6, got %d", idx.lastLimit)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "b" {
		t.Fatalf("unexpected survivors: %v", results)
	}
}

func TestThresholdNoSurvivorsIsEmpty(t *testing.T) {
	idx := &fakeIndex{hits: []index.ScoredChunk{chunk("a", 0.2)}}
	strategy, _ := New(config.RetrievalConfig{
		Method:                   config.MethodThreshold,
		ScoreThreshold:           0.7,
		ThresholdFetchMultiplier: 2,
	}, idx)

	results, err := strategy.Retrieve(context.Background(), []float32{1}, 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no survivors, got %d", len(results))
	}
}
