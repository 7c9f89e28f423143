package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// probeText is the fixed prompt used to verify the service end to end. It is
// deliberately CJK so a model serving the corpus proves it handles it.
const probeText = "测试连接"

type ollamaEmbedder struct {
	client    *api.Client
	model     string
	dimension int
}

func NewOllamaEmbedder(opts Options) (Prober, error) {
	host := opts.OllamaHost
	if host == "" {
		host = "http://localhost:11434"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}

	return &ollamaEmbedder{
		client:    api.NewClient(base, http.DefaultClient),
		model:     opts.Model,
		dimension: opts.Dimension,
	}, nil
}

func (e *ollamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))

	for _, text := range texts {
		resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{
			Model:  e.model,
			Prompt: text,
		})
		if err != nil {
			return nil, fmt.Errorf("call ollama embeddings API: %w", err)
		}

		vec := make([]float32, len(resp.Embedding))
		for i, value := range resp.Embedding {
			vec[i] = float32(value)
		}

		if e.dimension > 0 && len(vec) != e.dimension {
			return nil, fmt.Errorf("ollama embedding dimension mismatch: expected %d, got %d", e.dimension, len(vec))
		}

		results = append(results, vec)
	}

	return results, nil
}

func (e *ollamaEmbedder) Probe(ctx context.Context) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{probeText})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *ollamaEmbedder) Models(ctx context.Context) ([]string, error) {
	resp, err := e.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ollama models: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
