package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sentinelai/sentinel/pkg/logger"
)

// ChatClient is the minimal completion surface the assistant needs
// from a language model provider.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAIOptions configures an OpenAI-compatible chat client.
type OpenAIOptions struct {
	APIKey      string
	APIBase     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
}

func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("openai client: api key is required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.APIBase != "" {
		cfg.BaseURL = opts.APIBase
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
	}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}

	logger.DebugCF("providers", "chat completion done", map[string]interface{}{
		"model":       c.model,
		"duration_ms": time.Since(start).Milliseconds(),
		"tokens":      resp.Usage.TotalTokens,
	})
	return resp.Choices[0].Message.Content, nil
}

// StaticClient returns canned responses in order, then repeats the
// last one. Useful for wiring the assistant without network access.
type StaticClient struct {
	Responses []string
	idx       int
}

func (s *StaticClient) Complete(_ context.Context, _, _ string) (string, error) {
	if len(s.Responses) == 0 {
		return "", fmt.Errorf("static client: no responses configured")
	}
	r := s.Responses[s.idx]
	if s.idx < len(s.Responses)-1 {
		s.idx++
	}
	return r, nil
}
