// Package router runs the inference pre-pass that guides the agent loop:
// an entity-type guess, per-variable attribute constraints, vocabulary
// hints and the evidence policy.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"scout/internal/llm"
	"scout/internal/logging"
	"scout/internal/types"
)

const systemPrompt = `You are a research-routing pre-pass. Given a query, an optional entity hint
and the expected variables, respond with STRICT JSON only:
{
  "entity_type": "company|person|product|place|event|concept|artifact|organization|other or empty",
  "attr_constraints": {"<variable_name>": "required" | "allowed" | "forbidden"},
  "vocab_hints": {"boost": ["terms that make a web search relevant"],
                  "penalize": ["terms that signal an irrelevant search"]},
  "evidence_policy": {"min_corroboration": 1-5,
                      "require_authority": true|false,
                      "freshness_days": <days or 0>}
}
Raise min_corroboration and require_authority only for claims that are
high-stakes or frequently misreported. Omit nothing; use neutral values
when unsure.`

// Router produces RouterOutput via the auxiliary model.
type Router struct {
	model llm.Reasoner
	log   *zap.Logger
}

// New builds a Router over the given model.
func New(model llm.Reasoner) *Router {
	return &Router{model: model, log: logging.Named("router")}
}

// rawOutput tolerates loosely-typed model JSON before coercion.
type rawOutput struct {
	EntityType      string            `json:"entity_type"`
	AttrConstraints map[string]string `json:"attr_constraints"`
	VocabHints      struct {
		Boost    []any `json:"boost"`
		Penalize []any `json:"penalize"`
	} `json:"vocab_hints"`
	EvidencePolicy struct {
		MinCorroboration int  `json:"min_corroboration"`
		RequireAuthority bool `json:"require_authority"`
		FreshnessDays    int  `json:"freshness_days"`
	} `json:"evidence_policy"`
}

// Infer runs the pre-pass. Any failure degrades to the neutral fallback.
func (r *Router) Infer(ctx context.Context, query, entityHint string, expected []types.VariableDef) types.RouterOutput {
	prompt := buildPrompt(query, entityHint, expected)

	raw, err := r.model.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		r.log.Warn("router model call failed, using neutral output", zap.Error(err))
		return types.NeutralRouterOutput(expected)
	}

	out, ok := parse(raw)
	if !ok {
		r.log.Warn("router output unparseable, using neutral output")
		return types.NeutralRouterOutput(expected)
	}
	return normalize(out, expected)
}

func buildPrompt(query, entityHint string, expected []types.VariableDef) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n", query)
	if entityHint != "" {
		fmt.Fprintf(&sb, "Entity hint: %s\n", entityHint)
	}
	if len(expected) > 0 {
		sb.WriteString("Expected variables:\n")
		for _, def := range expected {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", def.Name, def.Type, def.Description)
		}
	}
	return sb.String()
}

func parse(raw string) (rawOutput, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out rawOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return rawOutput{}, false
	}
	return out, true
}

// normalize completes constraints, clamps the policy and coerces hints.
func normalize(raw rawOutput, expected []types.VariableDef) types.RouterOutput {
	out := types.RouterOutput{
		EntityType:      strings.ToLower(strings.TrimSpace(raw.EntityType)),
		AttrConstraints: make(map[string]types.AttrConstraint),
		VocabHints: types.VocabHints{
			Boost:    coerceStrings(raw.VocabHints.Boost),
			Penalize: coerceStrings(raw.VocabHints.Penalize),
		},
		EvidencePolicy: types.EvidencePolicy{
			MinCorroboration: clamp(raw.EvidencePolicy.MinCorroboration, 1, 5),
			RequireAuthority: raw.EvidencePolicy.RequireAuthority,
			FreshnessDays:    raw.EvidencePolicy.FreshnessDays,
		},
	}

	for name, val := range raw.AttrConstraints {
		switch types.AttrConstraint(strings.ToLower(val)) {
		case types.AttrRequired:
			out.AttrConstraints[name] = types.AttrRequired
		case types.AttrForbidden:
			out.AttrConstraints[name] = types.AttrForbidden
		default:
			out.AttrConstraints[name] = types.AttrAllowed
		}
	}

	// Every expected variable not otherwise marked is allowed.
	for _, def := range expected {
		if _, ok := out.AttrConstraints[def.Name]; !ok {
			out.AttrConstraints[def.Name] = types.AttrAllowed
		}
	}
	return out
}

func coerceStrings(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
