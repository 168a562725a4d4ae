package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"scout/internal/citation"
	"scout/internal/search"
)

const (
	latestMaxIterations     = 5
	latestFetchesPerIter    = 10
	latestMinCredible       = 2
	latestCredibilityScore  = 65
	latestAgreementWindow   = 48 * time.Hour
	latestInitialDaysWindow = 365
)

// LatestFinderTool finds the most recent corroborated publication date
// for a topic by iteratively narrowing the search window.
func LatestFinderTool() *Tool {
	return &Tool{
		Name: "latest_finder",
		Description: "Find the most recent news or publication about a topic. " +
			"Returns the newest corroborated date with its sources.",
		CountsAgainstWebBudget: true,
		Schema: Schema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "The topic to find the latest information about",
					MinLength:   2,
				},
			},
		},
		Execute: executeLatestFinder,
	}
}

// latestCandidate is one dated article.
type latestCandidate struct {
	Title     string    `json:"title,omitempty"`
	URL       string    `json:"url"`
	Host      string    `json:"host"`
	Published time.Time `json:"published"`
}

type latestCorroboration struct {
	DistinctSources      int  `json:"distinct_sources"`
	MinRequired          int  `json:"min_required"`
	CredibilityThreshold int  `json:"credibility_threshold"`
	OK                   bool `json:"ok"`
}

type latestResult struct {
	Query          string              `json:"query"`
	LatestDate     string              `json:"latest_date,omitempty"`
	Sources        []latestCandidate   `json:"sources"`
	Corroboration  latestCorroboration `json:"corroboration"`
	TotalCollected int                 `json:"total_collected"`
	Iterations     int                 `json:"iterations"`
}

func executeLatestFinder(ctx context.Context, run *Run, args map[string]any) (string, error) {
	query := args["query"].(string)
	now := run.deps.Now().UTC()

	rewrites := recencyRewrites(query, now)
	collected := make(map[string]latestCandidate)

	window := latestInitialDaysWindow
	iterations := 0

	for iterations < latestMaxIterations {
		iterations++

		newSeen := gatherIteration(ctx, run, rewrites, window, collected)
		if newSeen == 0 {
			break
		}

		best := newestDate(collected)
		if best.IsZero() {
			continue
		}

		// Shrink the window to the gap between now and the best date so
		// later iterations only surface newer material.
		gapDays := int(now.Sub(best).Hours()/24) + 1
		if gapDays < 1 {
			gapDays = 1
		}
		if gapDays >= window {
			break
		}
		window = gapDays
	}

	result := summarizeLatest(query, collected, iterations)

	run.record(Outcome{Tool: "latest_finder", OK: true,
		Quality: result.Corroboration.DistinctSources,
		Detail:  fmt.Sprintf("%q: %d article(s), latest %s", query, result.TotalCollected, result.LatestDate)})

	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("latest finder: encode result: %w", err)
	}
	return string(payload), nil
}

// recencyRewrites generates query variants biased toward fresh coverage.
func recencyRewrites(query string, now time.Time) []string {
	return []string{
		query + " latest news",
		query + " announcement",
		fmt.Sprintf("%s update %d", query, now.Year()),
	}
}

// gatherIteration runs every rewrite, fetches the unseen result pages and
// mines publication dates. Returns how many new articles were collected.
func gatherIteration(ctx context.Context, run *Run, rewrites []string, windowDays int, collected map[string]latestCandidate) int {
	type pending struct {
		title string
		url   string
		pub   string
	}
	var fresh []pending

	for _, q := range rewrites {
		results, err := run.deps.Backend.Search(ctx, search.Request{
			Query: q, Num: 5, Days: windowDays, Depth: "advanced",
		})
		if err != nil {
			continue
		}
		for _, res := range results {
			if res.URL == "" {
				continue
			}
			if _, seen := collected[res.URL]; seen {
				continue
			}
			already := false
			for _, p := range fresh {
				if p.url == res.URL {
					already = true
					break
				}
			}
			if already {
				continue
			}
			fresh = append(fresh, pending{title: res.Title, url: res.URL, pub: res.Published})
			if len(fresh) >= latestFetchesPerIter {
				break
			}
		}
		if len(fresh) >= latestFetchesPerIter {
			break
		}
	}

	if len(fresh) == 0 {
		return 0
	}

	urls := make([]string, len(fresh))
	for i, p := range fresh {
		urls[i] = p.url
	}

	// Raw pages keep their markup so date mining can see JSON-LD and
	// meta tags.
	dates := make([]time.Time, len(fresh))
	pages := fetchRawAll(ctx, run, urls)
	for i := range fresh {
		if pages[i] != "" {
			dates[i] = search.ExtractPublishedDate(pages[i])
		}
		if dates[i].IsZero() && fresh[i].pub != "" {
			dates[i] = parseProviderDate(fresh[i].pub)
		}
	}

	added := 0
	for i, p := range fresh {
		if dates[i].IsZero() {
			continue
		}
		collected[p.url] = latestCandidate{
			Title:     p.title,
			URL:       p.url,
			Host:      hostOf(p.url),
			Published: dates[i].UTC(),
		}
		added++
	}
	// Count every unseen URL as progress even when no date was minable,
	// so an iteration that only surfaces known articles ends the loop.
	if added == 0 {
		return len(fresh)
	}
	return added
}

func fetchRawAll(ctx context.Context, run *Run, urls []string) []string {
	out := make([]string, len(urls))
	pages := run.deps.Fetcher.FetchAllRaw(ctx, urls)
	for i, p := range pages {
		if p.Err == nil {
			out[i] = p.Content
		}
	}
	return out
}

func newestDate(collected map[string]latestCandidate) time.Time {
	var best time.Time
	for _, c := range collected {
		if c.Published.After(best) {
			best = c.Published
		}
	}
	return best
}

// summarizeLatest picks the newest date on which at least two distinct
// credible hosts agree within the 48 h window; without such agreement the
// newest date overall is reported with corroboration.ok = false.
func summarizeLatest(query string, collected map[string]latestCandidate, iterations int) latestResult {
	candidates := make([]latestCandidate, 0, len(collected))
	for _, c := range collected {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Published.After(candidates[j].Published)
	})

	result := latestResult{
		Query:   query,
		Sources: candidates,
		Corroboration: latestCorroboration{
			MinRequired:          latestMinCredible,
			CredibilityThreshold: latestCredibilityScore,
		},
		TotalCollected: len(candidates),
		Iterations:     iterations,
	}
	if len(candidates) == 0 {
		return result
	}

	for _, anchor := range candidates {
		hosts := agreeingCredibleHosts(candidates, anchor.Published)
		if len(hosts) >= latestMinCredible {
			result.LatestDate = anchor.Published.Format("2006-01-02")
			result.Corroboration.DistinctSources = len(hosts)
			result.Corroboration.OK = true
			return result
		}
	}

	newest := candidates[0]
	result.LatestDate = newest.Published.Format("2006-01-02")
	result.Corroboration.DistinctSources = len(agreeingCredibleHosts(candidates, newest.Published))
	return result
}

func agreeingCredibleHosts(candidates []latestCandidate, anchor time.Time) map[string]bool {
	hosts := make(map[string]bool)
	for _, c := range candidates {
		if citation.AuthorityScore(c.URL) < latestCredibilityScore {
			continue
		}
		gap := anchor.Sub(c.Published)
		if gap < 0 {
			gap = -gap
		}
		if gap <= latestAgreementWindow {
			hosts[c.Host] = true
		}
	}
	return hosts
}

func parseProviderDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "Jan 2, 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t
		}
	}
	return time.Time{}
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}
