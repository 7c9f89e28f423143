// Package chat answers questions over the indexed corpus: retrieve, prompt,
// generate, and regroup the streamed answer into readable units.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"civil-law-rag/embeddings"
	"civil-law-rag/llm"
	"civil-law-rag/retrieval"
)

type Service struct {
	embedder embeddings.Embedder
	strategy retrieval.Strategy
	llm      llm.StreamClient
	topK     int
	minUnit  int
	logger   *log.Logger
}

func NewService(embedder embeddings.Embedder, strategy retrieval.Strategy, llmClient llm.StreamClient, topK, minUnit int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		embedder: embedder,
		strategy: strategy,
		llm:      llmClient,
		topK:     topK,
		minUnit:  minUnit,
		logger:   logger,
	}
}

// Ask answers the question in one shot.
func (s *Service) Ask(ctx context.Context, question string) (Response, error) {
	return s.ask(ctx, question, nil)
}

// AskStream answers the question, delivering the answer through fn in units
// of at least the configured rune length. The no-context fallback is
// delivered as a single unit. fn never receives the end sentinel; transports
// append it themselves.
func (s *Service) AskStream(ctx context.Context, question string, fn func(string) error) (Response, error) {
	return s.ask(ctx, question, fn)
}

func (s *Service) ask(ctx context.Context, question string, streamFn func(string) error) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("question cannot be empty")
	}

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return Response{}, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) == 0 {
		return Response{}, fmt.Errorf("embedder returned no vectors")
	}

	results, err := s.strategy.Retrieve(ctx, vectors[0], s.topK)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve context: %w", err)
	}

	if len(results) == 0 {
		s.logger.Printf("no context found for question, returning fixed answer")
		if streamFn != nil {
			if err := streamFn(noContextAnswer); err != nil {
				return Response{}, err
			}
		}
		return Response{Answer: noContextAnswer, NoContext: true}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt()},
		{Role: llm.RoleUser, Content: formatUserPrompt(question, buildContext(results))},
	}

	var answer string
	if streamFn != nil {
		rechunker := NewRechunker(s.minUnit)
		var builder strings.Builder
		err := s.llm.GenerateStream(ctx, messages, func(token string) error {
			builder.WriteString(token)
			for _, unit := range rechunker.Feed(token) {
				if err := streamFn(unit); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return Response{}, fmt.Errorf("llm stream generate: %w", err)
		}
		if rest := rechunker.Flush(); rest != "" {
			if err := streamFn(rest); err != nil {
				return Response{}, err
			}
		}
		answer = builder.String()
	} else {
		answer, err = s.llm.Generate(ctx, messages)
		if err != nil {
			return Response{}, fmt.Errorf("llm generate: %w", err)
		}
	}

	return Response{
		Answer:  strings.TrimSpace(answer),
		Sources: toSources(results),
	}, nil
}

func toSources(results []retrieval.Result) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		article, _ := r.Metadata["article_number"].(string)
		chapter, _ := r.Metadata["chapter"].(string)
		sources = append(sources, Source{
			ChunkID: r.ID,
			Article: article,
			Chapter: chapter,
			Snippet: snippet(r.Text, 200),
			Score:   r.Score,
			Scored:  r.Scored,
		})
	}
	return sources
}

func snippet(text string, maxRunes int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "..."
}
