// Package llm abstracts the reasoning model behind small interfaces and
// ships an OpenAI-compatible chat-completions client with tool calling.
package llm

import (
	"context"
	"time"

	"scout/internal/types"
)

// Reasoner is the capability the agent loop needs from a model provider.
type Reasoner interface {
	// Chat sends the full dialogue with tool definitions and returns the
	// model's turn: text, tool calls, or both.
	Chat(ctx context.Context, messages []types.ChatMessage, tools []types.ToolDefinition) (*types.LLMToolResponse, error)

	// Complete sends a single system+user exchange and returns plain text.
	// Used by the intent classifier, router, summariser and plausibility
	// evaluation where no tool calling is involved.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config holds client construction parameters.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Temperature == 0 {
		c.Temperature = 0.1
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	return c
}
