package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/retry"
)

// AnthropicOracle is a concrete Oracle backed by Anthropic's Messages API.
// It collects a single-turn streamed completion into one string; no tool
// calling, vision or multi-turn conversation management is implemented,
// since the spec treats the oracle as text-in/text-out only.
type AnthropicOracle struct {
	client     anthropic.Client
	model      string
	maxTokens  int64
	maxRetries int
}

// AnthropicConfig configures an AnthropicOracle.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int64
	MaxRetries int
}

// NewAnthropicOracle creates an AnthropicOracle from cfg, defaulting the
// model, token budget and retry count the way the executor/planner's own
// defaults are set.
func NewAnthropicOracle(cfg AnthropicConfig) *AnthropicOracle {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &AnthropicOracle{
		client:     anthropic.NewClient(opts...),
		model:      model,
		maxTokens:  maxTokens,
		maxRetries: maxRetries,
	}
}

// Generate sends prompt as a single user message and collects the
// streamed response into one string.
func (o *AnthropicOracle) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(o.model),
		MaxTokens: o.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var out string
	result := retry.Do(ctx, retry.Config{
		MaxAttempts:  o.maxRetries + 1,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       true,
	}, func() error {
		var b strings.Builder
		stream := o.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				b.WriteString(delta.Text)
			}
		}
		if err := stream.Err(); err != nil {
			return err
		}
		out = b.String()
		return nil
	})

	if result.Err != nil {
		return "", fmt.Errorf("anthropic oracle: %w", result.Err)
	}
	if out == "" {
		return "", errors.New("anthropic oracle: empty completion")
	}
	return out, nil
}
