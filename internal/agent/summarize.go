package agent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"scout/internal/types"
)

const summarizePrompt = `You condense a research conversation into durable facts about the USER
(their interests, recurring subjects, preferences). Respond with STRICT
JSON only: {"facts": ["...", "..."]}
Rules:
- 3 to 8 bullets, each a standalone sentence of 5 to 300 characters.
- Only include things likely to stay true across sessions.
- No transient tool output, no restating the answers themselves.`

// summarize condenses an over-window session history into long-term
// memory bullets. All errors are swallowed; memory is best-effort.
func (e *Engine) summarize(ctx context.Context, sessionID, username string) {
	if e.svc.History.Len(sessionID) <= e.svc.History.Window() {
		return
	}

	transcript := renderTranscript(e.svc.History.Get(sessionID))
	if transcript == "" {
		return
	}

	raw, err := e.svc.Aux.Complete(ctx, summarizePrompt, transcript)
	if err != nil {
		e.log.Debug("session summarisation failed", zap.Error(err))
		return
	}

	facts := parseSummaryFacts(raw)
	for _, fact := range facts {
		if err := e.svc.LongTerm.Add(ctx, username, fact, []string{"summary"}); err != nil {
			e.log.Debug("memory upsert failed", zap.Error(err))
		}
	}
}

func renderTranscript(msgs []types.ChatMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		// Tool payloads are noise for user-level summarisation.
		if m.Role == types.RoleTool {
			continue
		}
		content := m.Content
		if content == "" {
			continue
		}
		if len(content) > 600 {
			content = content[:600]
		}
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func parseSummaryFacts(raw string) []string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var parsed struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &parsed); err != nil {
		return nil
	}

	out := make([]string, 0, len(parsed.Facts))
	for _, fact := range parsed.Facts {
		fact = strings.TrimSpace(fact)
		if len(fact) >= 5 && len(fact) <= 300 {
			out = append(out, fact)
		}
		if len(out) == 8 {
			break
		}
	}
	return out
}
