package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCleanHTMLStripsMarkup(t *testing.T) {
	raw := `<html><head>
		<script>alert("nope")</script>
		<style>body { color: red }</style>
	</head><body>
		<h1>Title</h1>
		<p>First    paragraph.</p>
		<noscript>fallback</noscript>
	</body></html>`

	got := CleanHTML(raw)

	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "First paragraph.")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color: red")
	assert.NotContains(t, got, "fallback")
	assert.NotContains(t, got, "<")
}

func TestCleanHTMLTruncates(t *testing.T) {
	raw := "<p>" + strings.Repeat("word ", 5000) + "</p>"
	got := CleanHTML(raw)
	assert.LessOrEqual(t, len(got), maxContentLen)
}

func TestFetchAllJoinsAllGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	defer http.DefaultTransport.(*http.Transport).CloseIdleConnections()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body>page %s</body></html>", r.URL.Path)
	}))
	defer srv.Close()

	f := NewFetcher(2*time.Second, 4)
	urls := make([]string, 10)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/p%d", srv.URL, i)
	}

	pages := f.FetchAll(context.Background(), urls)

	require.Len(t, pages, 10)
	for i, p := range pages {
		require.NoError(t, p.Err)
		assert.Contains(t, p.Content, fmt.Sprintf("page /p%d", i))
	}
}

func TestFetchAllRecordsIndividualFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "<html><body>fine</body></html>")
	}))
	defer srv.Close()

	f := NewFetcher(2*time.Second, 2)
	pages := f.FetchAll(context.Background(), []string{srv.URL + "/good", srv.URL + "/bad"})

	require.Len(t, pages, 2)
	assert.NoError(t, pages[0].Err)
	assert.Contains(t, pages[0].Content, "fine")
	assert.Error(t, pages[1].Err)
}

func TestFetchHonoursPerRequestTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	f := NewFetcher(100*time.Millisecond, 2)

	start := time.Now()
	pages := f.FetchAll(context.Background(), []string{slow.URL})
	took := time.Since(start)

	require.Len(t, pages, 1)
	assert.Error(t, pages[0].Err)
	assert.Less(t, took, 2*time.Second)
}

func TestFetchAbortsOnContextCancel(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	f := NewFetcher(10*time.Second, 2)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	pages := f.FetchAll(ctx, []string{slow.URL})
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, pages, 1)
	assert.Error(t, pages[0].Err)
}
