package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"scout/internal/intent"
	"scout/internal/tools"
	"scout/internal/types"
)

// finalSchema is the JSON shape the model's final answer must match.
const finalSchema = `{
  "intent": "boolean" | "specific" | "contextual",
  "variables": [
    {
      "subject": {"name": "<entity name>", "type": "<entity type>"},
      "name": "<snake_case variable name>",
      "type": "boolean" | "string" | "number" | "date" | "url" | "text",
      "value": <the answer value>,
      "confidence": <0.0-1.0>,
      "sources": [{"title": "<optional>", "url": "<required>", "snippet": "<optional>"}]
    }
  ],
  "notes": "<optional caveats>"
}`

// buildSystemPrompt assembles the run's system message: date, tool
// contract, budget nudge, corroboration policy and router hints.
func buildSystemPrompt(now time.Time, caps Caps, routerOut types.RouterOutput) string {
	var sb strings.Builder

	sb.WriteString("You are a research agent. You answer questions about entities by gathering evidence with tools and emitting one final JSON answer.\n\n")
	fmt.Fprintf(&sb, "Current date: %s\n\n", now.Format("2006-01-02"))

	sb.WriteString("Tool contract:\n")
	sb.WriteString("- Call tools one at a time; never repeat an identical call.\n")
	sb.WriteString("- Check knowledge_query before searching the web.\n")
	sb.WriteString("- web_search queries must use terms from the question or entity.\n")
	sb.WriteString("- Use latest_finder when recency matters; evaluate_plausibility when sources conflict.\n")
	fmt.Fprintf(&sb, "- Budget: at most %d reasoning steps and %d web searches. Spend them where evidence is weakest.\n\n",
		caps.MaxSteps, caps.MaxWebSearches)

	policy := routerOut.EvidencePolicy
	fmt.Fprintf(&sb, "Citation policy: every variable needs at least %d source(s). ", policy.MinCorroboration)
	sb.WriteString("Dates, numbers and short strings need at least 2 agreeing sources. ")
	if policy.RequireAuthority {
		sb.WriteString("At least one source must be authoritative (government, encyclopedia, major outlet). ")
	}
	if policy.FreshnessDays > 0 {
		fmt.Fprintf(&sb, "Prefer sources newer than %d days. ", policy.FreshnessDays)
	}
	sb.WriteString("\n\n")

	if len(routerOut.VocabHints.Boost) > 0 {
		fmt.Fprintf(&sb, "Relevant vocabulary: %s\n", strings.Join(routerOut.VocabHints.Boost, ", "))
	}
	if len(routerOut.VocabHints.Penalize) > 0 {
		fmt.Fprintf(&sb, "Avoid searches about: %s\n", strings.Join(routerOut.VocabHints.Penalize, ", "))
	}
	if routerOut.EntityType != "" {
		fmt.Fprintf(&sb, "The subject is most likely a %s.\n", routerOut.EntityType)
	}

	sb.WriteString("\nWhen you have enough evidence, respond with ONLY the final JSON (no prose, no code fences).")
	return sb.String()
}

// buildIntroMessage renders the opening user message: query, target,
// expected variables, trusted facts and the answer schema.
func buildIntroMessage(req Request, cls intent.Classification, trusted []types.Fact) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Question: %s\n", req.Query)
	if req.Entity != "" {
		fmt.Fprintf(&sb, "Entity: %s\n", req.Entity)
	}
	if cls.Target != "" {
		fmt.Fprintf(&sb, "Target: %s\n", cls.Target)
	}
	fmt.Fprintf(&sb, "Question type: %s\n", cls.Intent)

	if len(req.Variables) > 0 {
		sb.WriteString("\nExpected variables:\n")
		for _, def := range req.Variables {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", def.Name, def.Type, def.Description)
		}
	}

	if len(trusted) > 0 {
		sb.WriteString("\nVerified facts already on record (treat as ground truth):\n")
		for _, fact := range trusted {
			value, _ := json.Marshal(fact.Value)
			fmt.Fprintf(&sb, "- %s = %s", fact.Name, string(value))
			if fact.Confidence != nil {
				fmt.Fprintf(&sb, " (confidence %.2f)", *fact.Confidence)
			}
			sb.WriteByte('\n')
		}
	}

	sb.WriteString("\nYour final answer must match this JSON schema exactly:\n")
	sb.WriteString(finalSchema)
	return sb.String()
}

const subjectNudge = `Every variable in your final JSON must carry a "subject" with the entity name and type. Re-emit the final JSON with subjects filled in.`

const stopToolsNudge = `Stop using tools now. Respond with ONLY the final JSON answer based on the evidence you have.`

// buildOutcomesMessage summarises recent tool outcomes so the model
// avoids repeating failures. Returns "" when there is nothing to say.
func buildOutcomesMessage(outcomes []tools.Outcome) string {
	if len(outcomes) == 0 {
		return ""
	}

	var successes, failures []tools.Outcome
	for _, o := range outcomes {
		if o.OK {
			successes = append(successes, o)
		} else {
			failures = append(failures, o)
		}
	}
	if len(successes) > 3 {
		successes = successes[len(successes)-3:]
	}
	if len(failures) > 5 {
		failures = failures[len(failures)-5:]
	}

	payload, err := json.Marshal(map[string]any{
		"tool_outcomes": map[string]any{
			"recent_successes": successes,
			"recent_failures":  failures,
		},
	})
	if err != nil {
		return ""
	}
	return string(payload) +
		"\nDo not repeat the failed calls. Prefer calls similar to the recent successes."
}
