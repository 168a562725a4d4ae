package memory

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/types"
)

func TestHistoryLazyCreate(t *testing.T) {
	h := NewHistory(4)
	assert.Empty(t, h.Get("fresh"))
	assert.Equal(t, 0, h.Len("fresh"))
}

func TestHistoryAppendAndWindow(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Append("s", types.UserMessage(fmt.Sprintf("m%d", i)))
	}
	h.Trim("s")

	got := h.Get("s")
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[0].Content)
	assert.Equal(t, "m4", got[2].Content)
}

func TestTrimRepairsOrphanToolResult(t *testing.T) {
	h := NewHistory(2)

	assistant := types.ChatMessage{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "web_search", Args: json.RawMessage(`{"query":"x"}`)},
		},
	}
	h.Append("s",
		types.UserMessage("question"),
		assistant,
		types.ToolResultMessage("call_1", "results"),
		types.AssistantMessage("answer"),
	)

	h.Trim("s")
	got := h.Get("s")

	// The window keeps [tool result, answer]; the assistant message that
	// emitted call_1 must be prepended so no tool result is orphaned.
	require.Len(t, got, 3)
	assert.Equal(t, types.RoleAssistant, got[0].Role)
	require.Len(t, got[0].ToolCalls, 1)
	assert.Equal(t, "call_1", got[0].ToolCalls[0].ID)
	assert.Equal(t, types.RoleTool, got[1].Role)
	assert.Equal(t, "call_1", got[1].ToolCallID)
}

func TestTrimNoOrphanLeftBehind(t *testing.T) {
	h := NewHistory(4)

	for i := 0; i < 6; i++ {
		callID := fmt.Sprintf("call_%d", i)
		h.Append("s",
			types.ChatMessage{
				Role:      types.RoleAssistant,
				ToolCalls: []types.ToolCall{{ID: callID, Name: "web_search", Args: json.RawMessage(`{}`)}},
			},
			types.ToolResultMessage(callID, "ok"),
		)
	}
	h.Trim("s")

	got := h.Get("s")
	seen := make(map[string]bool)
	for _, m := range got {
		for _, call := range m.ToolCalls {
			seen[call.ID] = true
		}
		if m.Role == types.RoleTool {
			assert.True(t, seen[m.ToolCallID],
				"tool result %s has no preceding assistant message", m.ToolCallID)
		}
	}
}

func TestTrimUnderWindowIsNoop(t *testing.T) {
	h := NewHistory(8)
	h.Append("s", types.UserMessage("only one"))
	h.Trim("s")
	assert.Equal(t, 1, h.Len("s"))
}

func TestHistorySessionsAreIndependent(t *testing.T) {
	h := NewHistory(8)
	h.Append("a", types.UserMessage("for a"))
	h.Append("b", types.UserMessage("for b"))

	require.Len(t, h.Get("a"), 1)
	assert.Equal(t, "for a", h.Get("a")[0].Content)
	assert.Equal(t, "for b", h.Get("b")[0].Content)
}

func TestGetReturnsCopy(t *testing.T) {
	h := NewHistory(8)
	h.Append("s", types.UserMessage("original"))

	got := h.Get("s")
	got[0].Content = "mutated"

	assert.Equal(t, "original", h.Get("s")[0].Content)
}
