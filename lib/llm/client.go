// Package llm wraps the OpenAI chat completion API behind a small oracle
// interface so the recommendation pipeline can be exercised against fakes.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completion is a single oracle response plus its token cost.
type Completion struct {
	Text        string
	TotalTokens int
}

// Oracle is the reasoning service contract the pipeline depends on. The
// response is free text; callers must parse defensively.
type Oracle interface {
	Complete(ctx context.Context, system, user string, temperature float32) (Completion, error)
}

// Client is the production Oracle backed by OpenAI.
type Client struct {
	openai *openai.Client
	model  string
	logger *slog.Logger
}

// NewClient creates an oracle client. The model defaults to GPT-4 when empty.
func NewClient(apiKey, model string, logger *slog.Logger) *Client {
	if model == "" {
		model = openai.GPT4
	}
	return &Client{
		openai: openai.NewClient(apiKey),
		model:  model,
		logger: logger,
	}
}

// Complete sends one system+user message pair and returns the first choice.
// Temperature 0 requests deterministic decoding; anything above it is up to
// the model.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float32) (Completion, error) {
	start := time.Now()

	resp, err := c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("failed to get completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("completion returned no choices")
	}

	c.logger.Debug("Got completion",
		slog.String("model", c.model),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
		slog.Duration("elapsed", time.Since(start)))

	return Completion{
		Text:        resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
