package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"scout/internal/search"
)

func floatPtr(f float64) *float64 { return &f }

// WebSearchTool performs a provider-backed web search, optionally
// fetching page content for the top results.
func WebSearchTool() *Tool {
	return &Tool{
		Name: "web_search",
		Description: "Search the web. Returns a JSON array of results with " +
			"title, url, snippet and (optionally) fetched page content.",
		CountsAgainstWebBudget: true,
		Schema: Schema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "The search query; must be specific to the research subject",
					MinLength:   2,
				},
				"num": {
					Type:        "integer",
					Description: "Number of results to return",
					Default:     3,
					Minimum:     floatPtr(1),
					Maximum:     floatPtr(10),
				},
				"include_content": {
					Type:        "boolean",
					Description: "Fetch result pages and include their text",
					Default:     true,
				},
				"days": {
					Type:        "integer",
					Description: "Restrict results to the last N days",
					Minimum:     floatPtr(1),
					Maximum:     floatPtr(365),
				},
				"depth": {
					Type:        "string",
					Description: "Search depth",
					Default:     "advanced",
					Enum:        []string{"basic", "advanced"},
				},
			},
		},
		Execute: executeWebSearch,
	}
}

const maxContentFetches = 8

func executeWebSearch(ctx context.Context, run *Run, args map[string]any) (string, error) {
	query := args["query"].(string)

	if !run.queryIsRelevant(query) {
		run.record(Outcome{Tool: "web_search", OK: false,
			Detail: fmt.Sprintf("query %q rejected: unrelated to the research subject", query)})
		return errorPayload("IRRELEVANT_QUERY",
			"the query does not relate to the research subject; use terms from the question or entity"), nil
	}

	req := search.Request{Query: query, Num: 3, Depth: "advanced"}
	if n, ok := asNumber(args["num"]); ok {
		req.Num = int(n)
	}
	if d, ok := asNumber(args["days"]); ok {
		req.Days = int(d)
	}
	if depth, ok := args["depth"].(string); ok {
		req.Depth = depth
	}
	includeContent := true
	if ic, ok := args["include_content"].(bool); ok {
		includeContent = ic
	}

	results, err := run.deps.Backend.Search(ctx, req)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}

	if includeContent && len(results) > 0 {
		fillContent(ctx, run, results)
	}

	run.record(Outcome{Tool: "web_search", OK: true, Quality: len(results),
		Detail: fmt.Sprintf("%q returned %d result(s)", query, len(results))})

	payload, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("web search: encode results: %w", err)
	}
	return string(payload), nil
}

// fillContent fetches up to maxContentFetches result pages in parallel
// and fills content, using it as the snippet when one is missing.
func fillContent(ctx context.Context, run *Run, results []search.Result) {
	n := len(results)
	if n > maxContentFetches {
		n = maxContentFetches
	}

	urls := make([]string, n)
	for i := 0; i < n; i++ {
		urls[i] = results[i].URL
	}

	pages := run.deps.Fetcher.FetchAll(ctx, urls)
	for i, page := range pages {
		if page.Err != nil || page.Content == "" {
			continue
		}
		results[i].Content = page.Content
		if results[i].Snippet == "" {
			snippet := page.Content
			if len(snippet) > 400 {
				snippet = snippet[:400]
			}
			results[i].Snippet = snippet
		}
	}
}
