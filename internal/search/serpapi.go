package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SerpAPI calls the SerpAPI Google search endpoint.
type SerpAPI struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewSerpAPI builds a SerpAPI backend.
func NewSerpAPI(apiKey string, timeout time.Duration) *SerpAPI {
	return &SerpAPI{
		apiKey:     apiKey,
		baseURL:    "https://serpapi.com",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements Backend.
func (s *SerpAPI) Name() string { return "serpapi" }

type serpAPIResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic_results"`
	Error string `json:"error"`
}

// Search implements Backend.
func (s *SerpAPI) Search(ctx context.Context, req Request) ([]Result, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", req.Query)
	params.Set("api_key", s.apiKey)
	if req.Num > 0 {
		params.Set("num", strconv.Itoa(req.Num))
	}
	if req.Days > 0 {
		// qdr:dN limits Google results to the last N days.
		params.Set("tbs", "qdr:d"+strconv.Itoa(req.Days))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.baseURL+"/search.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: create request: %w", err)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("serpapi: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("serpapi: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serpapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed serpAPIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("serpapi: parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", parsed.Error)
	}

	results := make([]Result, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		results = append(results, Result{
			Title:     r.Title,
			URL:       r.Link,
			Snippet:   r.Snippet,
			Published: r.Date,
		})
	}
	return results, nil
}
