package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	maxPageBytes   = 2 << 20
	maxContentLen  = 8000
	fetchUserAgent = "Mozilla/5.0 (compatible; scout/1.0)"
)

var multiSpacePattern = regexp.MustCompile(`\s+`)

// Page is the fetched and cleaned text of one URL.
type Page struct {
	URL     string
	Content string
	Err     error
}

// Fetcher retrieves pages in parallel with a per-request timeout.
type Fetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	maxFanout  int
}

// NewFetcher builds a fetcher. timeout bounds each individual request;
// maxFanout bounds concurrency.
func NewFetcher(timeout time.Duration, maxFanout int) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxFanout <= 0 {
		maxFanout = 8
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		maxFanout:  maxFanout,
	}
}

// FetchAll fetches every URL concurrently, honouring the parent context.
// Individual failures land in the page's Err; the slice order matches the
// input. All goroutines have joined when FetchAll returns.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Page {
	pages := make([]Page, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxFanout)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			content, err := f.fetchOne(gctx, u)
			pages[i] = Page{URL: u, Content: content, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

// FetchAllRaw fetches every URL concurrently and returns uncleaned
// bodies, for callers that mine the markup itself (date extraction).
func (f *Fetcher) FetchAllRaw(ctx context.Context, urls []string) []Page {
	pages := make([]Page, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxFanout)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			content, err := f.get(gctx, u)
			pages[i] = Page{URL: u, Content: content, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return pages
}

func (f *Fetcher) fetchOne(ctx context.Context, pageURL string) (string, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return CleanHTML(body), nil
}

func (f *Fetcher) get(ctx context.Context, pageURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("fetch: read body: %w", err)
	}
	return string(raw), nil
}

// CleanHTML strips scripts, styles and tags, collapses whitespace and
// truncates to the content limit.
func CleanHTML(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		// Not parseable as HTML; treat as plain text.
		return truncate(collapse(raw))
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return truncate(collapse(sb.String()))
}

func collapse(s string) string {
	return strings.TrimSpace(multiSpacePattern.ReplaceAllString(s, " "))
}

func truncate(s string) string {
	if len(s) > maxContentLen {
		return s[:maxContentLen]
	}
	return s
}
