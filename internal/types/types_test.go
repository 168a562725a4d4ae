package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDType(t *testing.T) {
	tests := []struct {
		in   any
		want DType
	}{
		{true, DTypeBoolean},
		{float64(42), DTypeNumber},
		{3, DTypeNumber},
		{"short", DTypeString},
		{"https://example.com/page", DTypeURL},
		{strings.Repeat("long ", 40), DTypeText},
		{map[string]any{"k": "v"}, DTypeText},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferDType(tt.in), "InferDType(%v)", tt.in)
	}
}

func TestValidDType(t *testing.T) {
	for _, valid := range []string{"boolean", "string", "number", "date", "url", "text"} {
		assert.True(t, ValidDType(valid), valid)
	}
	assert.False(t, ValidDType("decimal"))
	assert.False(t, ValidDType(""))
}

func TestChatMessageRoundTrip(t *testing.T) {
	msg := ChatMessage{
		Role: RoleAssistant,
		ToolCalls: []ToolCall{
			{ID: "call_1", Name: "web_search", Args: json.RawMessage(`{"query":"x"}`)},
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var back ChatMessage
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Len(t, back.ToolCalls, 1)
	assert.Equal(t, "call_1", back.ToolCalls[0].ID)
	assert.True(t, back.HasToolCalls())
}

func TestHasToolCalls(t *testing.T) {
	assert.False(t, UserMessage("q").HasToolCalls())
	assert.False(t, AssistantMessage("a").HasToolCalls())
	assert.True(t, ChatMessage{
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c", Name: "t"}},
	}.HasToolCalls())
}

func TestNeutralRouterOutput(t *testing.T) {
	out := NeutralRouterOutput([]VariableDef{{Name: "a"}, {Name: "b"}})

	assert.Equal(t, AttrAllowed, out.AttrConstraints["a"])
	assert.Equal(t, AttrAllowed, out.AttrConstraints["b"])
	assert.Equal(t, 1, out.EvidencePolicy.MinCorroboration)
	assert.False(t, out.EvidencePolicy.RequireAuthority)
	assert.NotNil(t, out.VocabHints.Boost)
}
