package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scout/internal/types"
)

// maxKnowledgeDepth bounds the knowledge_query -> nested agent ->
// knowledge_query cycle.
const maxKnowledgeDepth = 2

// KnowledgeQueryTool answers from the canonical fact store, recursing
// into a nested research run when a requested variable is missing.
func KnowledgeQueryTool() *Tool {
	return &Tool{
		Name: "knowledge_query",
		Description: "Look up stored facts about a known entity. Use before " +
			"searching the web; the store holds previously verified answers.",
		CacheOnRepeat: true,
		Schema: Schema{
			Required: []string{"entity"},
			Properties: map[string]Property{
				"entity": {
					Type:        "string",
					Description: "Entity name to look up",
					MinLength:   1,
				},
				"variable_name": {
					Type:        "string",
					Description: "Specific variable to fetch (snake_case)",
				},
				"question": {
					Type:        "string",
					Description: "Free-form question to filter facts by relevance",
				},
			},
		},
		Execute: executeKnowledgeQuery,
	}
}

func executeKnowledgeQuery(ctx context.Context, run *Run, args map[string]any) (string, error) {
	entityName := args["entity"].(string)
	variableName, _ := args["variable_name"].(string)
	question, _ := args["question"].(string)

	ref, err := run.deps.Resolver.TryResolveExisting(ctx, entityName)
	if err != nil {
		return "", fmt.Errorf("knowledge query: %w", err)
	}
	if ref == nil {
		return unresolvedPayload(ctx, run, entityName)
	}

	if variableName != "" {
		return lookupVariable(ctx, run, ref.ID, ref.Name, variableName, question)
	}
	return listFacts(ctx, run, ref.ID, question)
}

// unresolvedPayload reports a miss with fuzzy suggestions; it never
// creates an entity.
func unresolvedPayload(ctx context.Context, run *Run, entityName string) (string, error) {
	refs, err := run.deps.Resolver.SearchByName(ctx, entityName, 5)
	if err != nil {
		refs = nil
	}
	suggestions := make([]string, 0, len(refs))
	for _, r := range refs {
		suggestions = append(suggestions, r.Name)
	}

	run.record(Outcome{Tool: "knowledge_query", OK: false,
		Detail: fmt.Sprintf("entity %q unresolved", entityName)})

	payload, err := json.Marshal(map[string]any{
		"code":        "ENTITY_UNRESOLVED",
		"entity":      entityName,
		"suggestions": suggestions,
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func lookupVariable(ctx context.Context, run *Run, entityID, entityName, variableName, question string) (string, error) {
	fact, err := run.deps.Facts.GetFact(ctx, entityID, variableName)
	if err != nil {
		return "", fmt.Errorf("knowledge query: %w", err)
	}
	if fact != nil {
		return factPayload(run, *fact)
	}

	// Synonym pass: the caller may use a different name for a stored
	// variable.
	similar, err := run.deps.Facts.FindSimilarFactNames(ctx, entityID, variableName, 5)
	if err == nil {
		for _, name := range similar {
			if fact, err := run.deps.Facts.GetFact(ctx, entityID, name); err == nil && fact != nil {
				return factPayload(run, *fact)
			}
		}
	}

	// Recurse into a nested research run to fill the gap, then retry.
	if run.depth < maxKnowledgeDepth && run.deps.Research != nil {
		query := question
		if query == "" {
			query = fmt.Sprintf("What is the %s of %s?",
				strings.ReplaceAll(variableName, "_", " "), entityName)
		}
		if err := run.deps.Research(ctx, query, entityName, variableName, run.depth); err == nil {
			if fact, err := run.deps.Facts.GetFact(ctx, entityID, variableName); err == nil && fact != nil {
				return factPayload(run, *fact)
			}
		}
	}

	run.record(Outcome{Tool: "knowledge_query", OK: false,
		Detail: fmt.Sprintf("no fact %q for %q", variableName, entityName)})

	payload, err := json.Marshal(map[string]any{
		"code":     "FACT_NOT_FOUND",
		"entity":   entityName,
		"variable": variableName,
		"similar":  similar,
	})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func listFacts(ctx context.Context, run *Run, entityID, question string) (string, error) {
	all, err := run.deps.Facts.GetFactsForEntity(ctx, entityID)
	if err != nil {
		return "", fmt.Errorf("knowledge query: %w", err)
	}

	if question != "" {
		all = filterByOverlap(all, question)
	}

	run.record(Outcome{Tool: "knowledge_query", OK: true, Quality: len(all),
		Detail: fmt.Sprintf("%d fact(s)", len(all))})

	payload, err := json.Marshal(all)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// filterByOverlap keeps facts whose name shares a word with the
// question; when nothing overlaps the full list is returned.
func filterByOverlap(all []types.Fact, question string) []types.Fact {
	words := make(map[string]bool)
	for _, tok := range informativeTokens(question) {
		words[tok] = true
	}

	var filtered []types.Fact
	for _, fact := range all {
		for _, tok := range strings.Split(fact.Name, "_") {
			if words[tok] {
				filtered = append(filtered, fact)
				break
			}
		}
	}
	if len(filtered) == 0 {
		return all
	}
	return filtered
}

func factPayload(run *Run, fact types.Fact) (string, error) {
	run.record(Outcome{Tool: "knowledge_query", OK: true, Quality: 1,
		Detail: fmt.Sprintf("fact %q found", fact.Name)})
	payload, err := json.Marshal(fact)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}
