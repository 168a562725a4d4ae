package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const plausibilityPrompt = `You evaluate factual claims for plausibility. For each claim, judge
whether it is plausible given general world knowledge and any provided
context. Respond with STRICT JSON only:
{"evaluations": [{"claim": "...", "plausible": true|false,
                  "confidence": 0.0-1.0, "reasoning": "one sentence"}]}`

// EvaluatePlausibilityTool adjudicates conflicting claims via the
// auxiliary model.
func EvaluatePlausibilityTool() *Tool {
	return &Tool{
		Name: "evaluate_plausibility",
		Description: "Evaluate whether claims are plausible. Use when sources " +
			"conflict and you need a tiebreaker.",
		CacheOnRepeat: true,
		Schema: Schema{
			Required: []string{"claims"},
			Properties: map[string]Property{
				"claims": {
					Type:        "array",
					Description: "The claims to evaluate",
					Items:       &Items{Type: "string"},
					MinItems:    1,
				},
				"context": {
					Type:        "string",
					Description: "Optional context the claims should be judged against",
				},
			},
		},
		Execute: executeEvaluatePlausibility,
	}
}

type plausibilityEvaluation struct {
	Claim      string  `json:"claim"`
	Plausible  bool    `json:"plausible"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type plausibilityResult struct {
	Evaluations []plausibilityEvaluation `json:"evaluations"`
}

func executeEvaluatePlausibility(ctx context.Context, run *Run, args map[string]any) (string, error) {
	rawClaims := args["claims"].([]any)
	claims := make([]string, 0, len(rawClaims))
	for _, c := range rawClaims {
		if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
			claims = append(claims, s)
		}
	}
	if len(claims) == 0 {
		return errorPayload("SCHEMA_VALIDATION_ERROR", "claims must contain at least one non-empty string"), nil
	}

	var sb strings.Builder
	sb.WriteString("Claims:\n")
	for i, claim := range claims {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, claim)
	}
	if contextText, ok := args["context"].(string); ok && contextText != "" {
		sb.WriteString("\nContext:\n")
		sb.WriteString(contextText)
	}

	raw, err := run.deps.Aux.Complete(ctx, plausibilityPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("evaluate plausibility: %w", err)
	}

	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var result plausibilityResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &result); err != nil {
		// Unparseable model output degrades to neutral evaluations.
		for _, claim := range claims {
			result.Evaluations = append(result.Evaluations, plausibilityEvaluation{
				Claim: claim, Plausible: true, Confidence: 0.5,
				Reasoning: "model output unparseable; defaulting to neutral",
			})
		}
	}

	run.record(Outcome{Tool: "evaluate_plausibility", OK: true,
		Quality: len(result.Evaluations),
		Detail:  fmt.Sprintf("%d claim(s) evaluated", len(claims))})

	payload, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
