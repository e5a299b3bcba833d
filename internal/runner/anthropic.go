// ABOUTME: Anthropic-backed runner driving the Messages API for one run
// ABOUTME: Text blocks stream as message chunks, tool_use blocks as tool_use chunks

package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 4096

// AnthropicRunner drives the Anthropic Messages API. Each run is a single
// turn: the prompt goes out as the user message and every content block of
// the response comes back as one chunk.
type AnthropicRunner struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	logger    *slog.Logger
}

// AnthropicConfig configures the runner. An empty APIKey falls back to the
// ANTHROPIC_API_KEY environment variable; an empty Model uses the SDK's
// current Sonnet.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// NewAnthropicRunner creates a runner backed by the Anthropic API.
func NewAnthropicRunner(cfg AnthropicConfig) (*AnthropicRunner, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &AnthropicRunner{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
		logger:    slog.Default().With("component", "runner", "kind", "anthropic"),
	}, nil
}

func (r *AnthropicRunner) Run(ctx context.Context, req Request) (<-chan Chunk, error) {
	ch := make(chan Chunk)
	go func() {
		defer close(ch)

		system := fmt.Sprintf("You are %s, an agent on a task team. Work the task to completion and report what you did.", req.AgentName)
		userPrompt := req.Prompt
		if req.Context != "" {
			userPrompt = req.Prompt + "\n\nRecent discussion:\n" + req.Context
		}

		resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     r.model,
			MaxTokens: r.maxTokens,
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("messages API call failed", "task_id", req.TaskID, "error", err)
			sendChunk(ctx, ch, errorChunk(fmt.Errorf("anthropic API: %w", err)))
			return
		}

		for _, block := range resp.Content {
			var chunk Chunk
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				chunk = messageChunk(variant.Text)
			case anthropic.ToolUseBlock:
				input, _ := json.Marshal(variant.Input)
				chunk = Chunk{Kind: ChunkToolUse, Content: fmt.Sprintf("%s %s", variant.Name, input), Timestamp: time.Now().UTC()}
			default:
				continue
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}

		sendChunk(ctx, ch, doneChunk())
	}()
	return ch, nil
}
