package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scout/internal/config"
)

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tv-key", req["api_key"])
		assert.Equal(t, "openai revenue", req["query"])
		assert.Equal(t, "advanced", req["search_depth"])
		assert.EqualValues(t, 7, req["days"])

		fmt.Fprint(w, `{"results": [
			{"title": "Report", "url": "https://example.com/r",
			 "content": "OpenAI revenue grew", "published_date": "2026-08-01"}
		]}`)
	}))
	defer srv.Close()

	tavily := NewTavily("tv-key", 2*time.Second)
	tavily.baseURL = srv.URL

	got, err := tavily.Search(context.Background(), Request{Query: "openai revenue", Num: 3, Days: 7})
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Tavily's content doubles as the snippet.
	assert.Equal(t, "OpenAI revenue grew", got[0].Snippet)
	assert.Equal(t, "OpenAI revenue grew", got[0].Content)
	assert.Equal(t, "2026-08-01", got[0].Published)
}

func TestSerpAPISearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "serp-key", q.Get("api_key"))
		assert.Equal(t, "openai revenue", q.Get("q"))
		assert.Equal(t, "qdr:d7", q.Get("tbs"))

		fmt.Fprint(w, `{"organic_results": [
			{"title": "Report", "link": "https://example.com/r", "snippet": "grew", "date": "Aug 1, 2026"}
		]}`)
	}))
	defer srv.Close()

	serp := NewSerpAPI("serp-key", 2*time.Second)
	serp.baseURL = srv.URL

	got, err := serp.Search(context.Background(), Request{Query: "openai revenue", Num: 3, Days: 7})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/r", got[0].URL)
	assert.Equal(t, "grew", got[0].Snippet)
}

func TestSerpAPIErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error": "Invalid API key"}`)
	}))
	defer srv.Close()

	serp := NewSerpAPI("bad", 2*time.Second)
	serp.baseURL = srv.URL

	_, err := serp.Search(context.Background(), Request{Query: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

func TestNewBackendSelection(t *testing.T) {
	_, err := NewBackend(config.SearchConfig{Provider: "tavily"})
	assert.Error(t, err, "missing key must fail")

	b, err := NewBackend(config.SearchConfig{Provider: "tavily", TavilyKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "tavily", b.Name())

	b, err = NewBackend(config.SearchConfig{Provider: "serpapi", SerpAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "serpapi", b.Name())

	_, err = NewBackend(config.SearchConfig{Provider: "bing"})
	assert.Error(t, err)
}
