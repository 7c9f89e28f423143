package chat

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"civil-law-rag/embeddings"
	"civil-law-rag/llm"
	"civil-law-rag/retrieval"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

var _ embeddings.Embedder = (*stubEmbedder)(nil)

type stubStrategy struct {
	results []retrieval.Result
	err     error
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Retrieve(ctx context.Context, embedding []float32, k int) ([]retrieval.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

var _ retrieval.Strategy = (*stubStrategy)(nil)

type stubLLM struct {
	tokens     []string
	lastPrompt []llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.lastPrompt = messages
	return strings.Join(s.tokens, ""), nil
}

func (s *stubLLM) GenerateStream(ctx context.Context, messages []llm.Message, fn func(string) error) error {
	s.lastPrompt = messages
	for _, token := range s.tokens {
		if err := fn(token); err != nil {
			return err
		}
	}
	return nil
}

var _ llm.StreamClient = (*stubLLM)(nil)

func newTestService(strategy retrieval.Strategy, model llm.StreamClient) *Service {
	embedder := &stubEmbedder{vectors: [][]float32{{0.1, 0.2}}}
	logger := log.New(os.Stderr, "", 0)
	return NewService(embedder, strategy, model, 5, 5, logger)
}

func articleResult(id, article, text string, score float64) retrieval.Result {
	return retrieval.Result{
		ID:   id,
		Text: text,
		Metadata: map[string]any{
			"article_number": article,
			"chapter":        "总则",
		},
		Score:  score,
		Scored: true,
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	svc := newTestService(&stubStrategy{}, &stubLLM{})

	if _, err := svc.Ask(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty question")
	}
}

func TestAskNoContextSkipsModel(t *testing.T) {
	model := &stubLLM{tokens: []string{"should not run"}}
	svc := newTestService(&stubStrategy{}, model)

	resp, err := svc.Ask(context.Background(), "什么是宅基地？")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.NoContext {
		t.Fatal("expected no-context response")
	}
	if resp.Answer != "未找到相关法律条文。" {
		t.Fatalf("unexpected fallback answer: %q", resp.Answer)
	}
	if model.lastPrompt != nil {
		t.Fatal("model must not be called without context")
	}
}

func TestAskStreamNoContextDeliversFallbackAsOneUnit(t *testing.T) {
	svc := newTestService(&stubStrategy{}, &stubLLM{})

	var units []string
	resp, err := svc.AskStream(context.Background(), "问题", func(unit string) error {
		units = append(units, unit)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.NoContext {
		t.Fatal("expected no-context response")
	}
	if len(units) != 1 || units[0] != "未找到相关法律条文。" {
		t.Fatalf("unexpected units: %v", units)
	}
}

func TestAskBuildsArticleContext(t *testing.T) {
	model := &stubLLM{tokens: []string{"回答内容。"}}
	strategy := &stubStrategy{results: []retrieval.Result{
		articleResult("civil_0001", "第一条", "为了保护民事主体的合法权益。", 0.9),
	}}
	svc := newTestService(strategy, model)

	resp, err := svc.Ask(context.Background(), "立法目的是什么？")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "回答内容。" {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}

	if len(model.lastPrompt) != 2 {
		t.Fatalf("expected system+user prompt, got %d messages", len(model.lastPrompt))
	}
	user := model.lastPrompt[1].Content
	if !strings.Contains(user, "【第一条】") {
		t.Fatalf("context block missing article header: %q", user)
	}
	if !strings.Contains(user, "为了保护民事主体的合法权益。") {
		t.Fatalf("context block missing article text: %q", user)
	}

	if len(resp.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(resp.Sources))
	}
	if resp.Sources[0].Article != "第一条" {
		t.Fatalf("unexpected source article: %q", resp.Sources[0].Article)
	}
}

func TestAskStreamRegroupsTokens(t *testing.T) {
	model := &stubLLM{tokens: []string{"依据", "第一条", "的规定", "。", "答案", "成立。"}}
	strategy := &stubStrategy{results: []retrieval.Result{
		articleResult("civil_0001", "第一条", "条文内容。", 0.9),
	}}
	svc := newTestService(strategy, model)

	var units []string
	resp, err := svc.AskStream(context.Background(), "问题", func(unit string) error {
		units = append(units, unit)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Join(units, "") != resp.Answer {
		t.Fatalf("units do not reassemble the answer: %v vs %q", units, resp.Answer)
	}
	// "依据第一条的规定。" crosses the 5 rune minimum at its terminator.
	if units[0] != "依据第一条的规定。" {
		t.Fatalf("unexpected first unit: %q", units[0])
	}
}

func TestAskStreamCallbackErrorAbortsGeneration(t *testing.T) {
	model := &stubLLM{tokens: []string{"第一句结束。", "第二句还在继续。"}}
	strategy := &stubStrategy{results: []retrieval.Result{
		articleResult("civil_0001", "第一条", "条文内容。", 0.9),
	}}
	svc := newTestService(strategy, model)

	boom := errors.New("client went away")
	_, err := svc.AskStream(context.Background(), "问题", func(unit string) error {
		return boom
	})
	if err == nil || !strings.Contains(err.Error(), "client went away") {
		t.Fatalf("expected callback error to surface, got %v", err)
	}
}
