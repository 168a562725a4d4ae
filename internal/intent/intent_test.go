package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"scout/internal/types"
)

// fakeModel returns a canned response or error.
type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) Chat(_ context.Context, _ []types.ChatMessage, _ []types.ToolDefinition) (*types.LLMToolResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.LLMToolResponse{Text: f.response}, nil
}

func (f *fakeModel) Complete(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestClassifyParsesModelJSON(t *testing.T) {
	c := NewClassifier(&fakeModel{response: `{"intent":"boolean","target":"OpenAI"}`})
	got := c.Classify(context.Background(), "Is OpenAI profitable?")
	assert.Equal(t, types.IntentBoolean, got.Intent)
	assert.Equal(t, "OpenAI", got.Target)
}

func TestClassifyToleratesCodeFences(t *testing.T) {
	c := NewClassifier(&fakeModel{response: "```json\n{\"intent\":\"specific\",\"target\":\"Artisan AI\"}\n```"})
	got := c.Classify(context.Background(), "Who is the CEO of Artisan AI?")
	assert.Equal(t, types.IntentSpecific, got.Intent)
}

func TestClassifyFallsBackOnGarbage(t *testing.T) {
	c := NewClassifier(&fakeModel{response: "I think this is a yes/no question."})
	got := c.Classify(context.Background(), "Is OpenAI profitable?")
	assert.Equal(t, types.IntentBoolean, got.Intent)
}

func TestClassifyFallsBackOnModelError(t *testing.T) {
	c := NewClassifier(&fakeModel{err: errors.New("timeout")})
	got := c.Classify(context.Background(), "Who founded Stripe?")
	assert.Equal(t, types.IntentSpecific, got.Intent)
}

func TestClassifyRejectsUnknownIntent(t *testing.T) {
	c := NewClassifier(&fakeModel{response: `{"intent":"mystery"}`})
	got := c.Classify(context.Background(), "Tell me about quantum computing")
	assert.Equal(t, types.IntentContextual, got.Intent)
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		query string
		want  types.Intent
	}{
		{"Is OpenAI profitable?", types.IntentBoolean},
		{"Are electric cars cheaper?", types.IntentBoolean},
		{"Does Stripe operate in Japan?", types.IntentBoolean},
		{"Who is the CEO of Artisan AI?", types.IntentSpecific},
		{"What is the revenue of Shell?", types.IntentSpecific},
		{"When was SpaceX founded?", types.IntentSpecific},
		{"Tell me about the semiconductor market", types.IntentContextual},
		{"", types.IntentContextual},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, Heuristic(tt.query).Intent)
		})
	}
}
