package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Omkar-S-Kulkarni/2fast2mcplocalmcpserverclient/internal/retry"
)

// OpenAIOracle is a concrete Oracle backed by OpenAI's chat completions
// API, exercising a second real SDK against the same narrow interface
// AnthropicOracle implements.
type OpenAIOracle struct {
	client     *openai.Client
	model      string
	maxTokens  int
	maxRetries int
}

// OpenAIConfig configures an OpenAIOracle.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
}

// NewOpenAIOracle creates an OpenAIOracle from cfg.
func NewOpenAIOracle(cfg OpenAIConfig) *OpenAIOracle {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &OpenAIOracle{
		client:     openai.NewClient(cfg.APIKey),
		model:      model,
		maxTokens:  maxTokens,
		maxRetries: maxRetries,
	}
}

// Generate sends prompt as a single user message and collects the
// streamed chat completion into one string.
func (o *OpenAIOracle) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Stream:    true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
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
		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return err
		}
		defer stream.Close()

		var b strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				continue
			}
			b.WriteString(resp.Choices[0].Delta.Content)
		}
		out = b.String()
		return nil
	})

	if result.Err != nil {
		return "", fmt.Errorf("openai oracle: %w", result.Err)
	}
	if out == "" {
		return "", errors.New("openai oracle: empty completion")
	}
	return out, nil
}
