// Package llm adapts the chat completion backend. DeepSeek exposes an
// OpenAI-compatible API, so the client is a go-openai client pointed at
// the DeepSeek base URL.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chimera-dev/chimera/internal/config"
	"github.com/chimera-dev/chimera/internal/observability"
	"github.com/chimera-dev/chimera/internal/session"
)

// System prompts and sampling temperature per conversational mode.
var modeProfiles = map[session.Mode]struct {
	prompt      string
	temperature float32
}{
	session.ModeExpert: {
		prompt:      "Ты эксперт, который даёт точные и структурированные объяснения. Отвечай по существу, опираясь на факты.",
		temperature: 0.3,
	},
	session.ModeCreative: {
		prompt:      "Ты творческий рассказчик. Придумывай яркие образы и неожиданные повороты, пиши живо и увлекательно.",
		temperature: 0.9,
	},
	session.ModeTalk: {
		prompt:      "Ты дружелюбный собеседник. Поддерживай лёгкий разговор, будь внимателен к настроению человека.",
		temperature: 0.7,
	},
}

// Client generates replies through an OpenAI-compatible completion API.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a completion client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Generate produces a reply for the prompt in the given mode. The
// request enforces its own timeout independently of the caller's retry
// pipeline.
func (c *Client) Generate(ctx context.Context, prompt string, mode session.Mode) (string, error) {
	profile, ok := modeProfiles[mode]
	if !ok {
		profile = modeProfiles[session.ModeTalk]
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "llm.generate")
	defer span.End()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: profile.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: profile.prompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
