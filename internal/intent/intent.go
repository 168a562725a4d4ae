// Package intent classifies user queries into {boolean, specific,
// contextual} with an optional target noun phrase.
package intent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/types"
)

const systemPrompt = `You classify research queries. Respond with STRICT JSON only, no prose:
{"intent": "boolean" | "specific" | "contextual", "target": "<noun phrase or empty>"}

- "boolean": the query expects a yes/no answer.
- "specific": the query asks for a concrete fact (who/what/when/where).
- "contextual": the query asks for background, analysis, or anything open-ended.
- "target": the main noun phrase the question is about, or "" if unclear.`

// Classification is the classifier's output.
type Classification struct {
	Intent types.Intent `json:"intent"`
	Target string       `json:"target,omitempty"`
}

// Classifier wraps the auxiliary model.
type Classifier struct {
	model llm.Reasoner
	log   *zap.Logger
}

// NewClassifier builds a classifier over the given model.
func NewClassifier(model llm.Reasoner) *Classifier {
	return &Classifier{model: model, log: logging.Named("intent")}
}

// Classify runs the model and falls back to the interrogative heuristic
// when the response is not valid JSON.
func (c *Classifier) Classify(ctx context.Context, query string) Classification {
	raw, err := c.model.Complete(ctx, systemPrompt, query)
	if err == nil {
		if cls, ok := parseClassification(raw); ok {
			return cls
		}
	} else {
		c.log.Warn("intent model call failed, using heuristic", zap.Error(err))
	}
	return Heuristic(query)
}

func parseClassification(raw string) (Classification, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var cls Classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &cls); err != nil {
		return Classification{}, false
	}
	switch cls.Intent {
	case types.IntentBoolean, types.IntentSpecific, types.IntentContextual:
		return cls, true
	}
	return Classification{}, false
}

// Heuristic classifies by the leading interrogative word.
func Heuristic(query string) Classification {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(fields) == 0 {
		return Classification{Intent: types.IntentContextual}
	}
	switch strings.TrimRight(fields[0], "?,.!") {
	case "is", "are", "does", "do", "can", "will", "was", "were", "has", "have", "did", "should":
		return Classification{Intent: types.IntentBoolean}
	case "who", "what", "when", "where", "which", "how":
		return Classification{Intent: types.IntentSpecific}
	}
	return Classification{Intent: types.IntentContextual}
}
