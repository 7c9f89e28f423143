package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

type ollamaClient struct {
	client      *api.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOllamaClient(opts Options) (StreamClient, error) {
	host := opts.OllamaHost
	if host == "" {
		host = "http://localhost:11434"
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}

	return &ollamaClient{
		client:      api.NewClient(base, http.DefaultClient),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

func (c *ollamaClient) Generate(ctx context.Context, messages []Message) (string, error) {
	var sb strings.Builder
	if err := c.GenerateStream(ctx, messages, func(token string) error {
		sb.WriteString(token)
		return nil
	}); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (c *ollamaClient) GenerateStream(ctx context.Context, messages []Message, fn func(string) error) error {
	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.temperature,
		},
	}
	if c.maxTokens > 0 {
		req.Options["num_predict"] = c.maxTokens
	}

	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return fn(resp.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("call ollama chat API: %w", err)
	}
	return nil
}

func toOllamaMessages(messages []Message) []api.Message {
	converted := make([]api.Message, len(messages))
	for i, m := range messages {
		converted[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return converted
}
