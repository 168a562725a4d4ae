// Package search provides the web-search capability: provider-backed
// query execution (Tavily or SerpAPI) plus parallel page fetching with
// tag stripping.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scout/internal/config"
)

// Result is one search hit. Providers that return full page text put it
// in Content; Snippet may be filled from Content when the provider sends
// no separate summary.
type Result struct {
	Title     string `json:"title,omitempty"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet,omitempty"`
	Content   string `json:"content,omitempty"`
	Published string `json:"published,omitempty"`
}

// Request holds provider-independent search parameters.
type Request struct {
	Query string
	Num   int
	Days  int    // restrict to the last N days when > 0
	Depth string // basic or advanced, provider permitting
}

// Backend executes web searches against a concrete provider.
type Backend interface {
	Search(ctx context.Context, req Request) ([]Result, error)
	Name() string
}

// NewBackend selects a backend from configuration.
func NewBackend(cfg config.SearchConfig) (Backend, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "tavily":
		if cfg.TavilyKey == "" {
			return nil, fmt.Errorf("search: TAVILY_API_KEY is not set")
		}
		return NewTavily(cfg.TavilyKey, 30*time.Second), nil
	case "serpapi":
		if cfg.SerpAPIKey == "" {
			return nil, fmt.Errorf("search: SERPAPI_API_KEY is not set")
		}
		return NewSerpAPI(cfg.SerpAPIKey, 30*time.Second), nil
	default:
		return nil, fmt.Errorf("search: unknown provider %q", cfg.Provider)
	}
}
