// Package memory provides the two conversational memories: a bounded
// in-process per-session message history and a durable per-user
// long-term store.
package memory

import (
	"sync"

	"scout/internal/types"
)

// History keeps per-session ordered message logs with bounded retention.
type History struct {
	mu       sync.Mutex
	window   int
	sessions map[string][]types.ChatMessage
}

// NewHistory builds a History with the given retention window.
func NewHistory(window int) *History {
	if window <= 0 {
		window = 8
	}
	return &History{
		window:   window,
		sessions: make(map[string][]types.ChatMessage),
	}
}

// Get returns a copy of the session's messages, creating an empty history
// on first use.
func (h *History) Get(sessionID string) []types.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs, ok := h.sessions[sessionID]
	if !ok {
		h.sessions[sessionID] = nil
		return nil
	}
	out := make([]types.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Append adds messages to the session in order.
func (h *History) Append(sessionID string, msgs ...types.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = append(h.sessions[sessionID], msgs...)
}

// Len returns the number of messages held for the session.
func (h *History) Len(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// Trim keeps the last window messages. If the first kept message is a
// tool result, the assistant message that emitted the matching tool call
// is prepended so the model never sees an orphan tool result.
func (h *History) Trim(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := h.sessions[sessionID]
	if len(msgs) <= h.window {
		return
	}

	start := len(msgs) - h.window
	kept := msgs[start:]

	if first := kept[0]; first.Role == types.RoleTool && first.ToolCallID != "" {
		if origin := findToolCallOrigin(msgs[:start], first.ToolCallID); origin != nil {
			kept = append([]types.ChatMessage{*origin}, kept...)
		}
	}

	out := make([]types.ChatMessage, len(kept))
	copy(out, kept)
	h.sessions[sessionID] = out
}

// findToolCallOrigin scans backwards for the assistant message carrying
// the given tool-call id.
func findToolCallOrigin(msgs []types.ChatMessage, callID string) *types.ChatMessage {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != types.RoleAssistant {
			continue
		}
		for _, call := range m.ToolCalls {
			if call.ID == callID {
				return &msgs[i]
			}
		}
	}
	return nil
}

// Window returns the configured retention window.
func (h *History) Window() int {
	return h.window
}
