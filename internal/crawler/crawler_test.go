package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crawlsched/internal/scheduler"
)

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<a href="/a">a</a>
			<a href="/b#section">b</a>
			<a href="https://elsewhere.example/x">external</a>
			<a href="mailto:someone@example.com">mail</a>
		</body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/c">c</a><a href="/">home</a></body></html>`)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	})
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>leaf</body></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func crawlConfig(t *testing.T, startURL string, depth, pages int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"start_url":           startURL,
		"max_depth":           depth,
		"max_pages":           pages,
		"concurrency":         2,
		"requests_per_second": 500,
	})
	require.NoError(t, err)
	return raw
}

func TestCrawler_Execute(t *testing.T) {
	server := testSite(t)
	c := New(zerolog.Nop())

	var (
		mu    sync.Mutex
		pages []string
		done  int
	)
	hooks := scheduler.Hooks{
		OnLog: func(string) {},
		OnPage: func(url string) {
			mu.Lock()
			pages = append(pages, url)
			mu.Unlock()
		},
		OnDone: func(n int) { done = n },
	}

	result, err := c.Execute(context.Background(), crawlConfig(t, server.URL, 3, 10), hooks)
	require.NoError(t, err)
	assert.Equal(t, 4, result.PagesCrawled)
	assert.Equal(t, 4, result.PagesFound) // start page plus /a, /b, /c; external links excluded
	assert.Equal(t, result.PagesCrawled, done)
	assert.Len(t, pages, 4)
}

func TestCrawler_DepthLimit(t *testing.T) {
	server := testSite(t)
	c := New(zerolog.Nop())

	result, err := c.Execute(context.Background(), crawlConfig(t, server.URL, 1, 10), scheduler.Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.PagesCrawled, "start page plus its two direct links")
	assert.Equal(t, 4, result.PagesFound, "/c is discovered but not fetched")
}

func TestCrawler_PageBudget(t *testing.T) {
	server := testSite(t)
	c := New(zerolog.Nop())

	result, err := c.Execute(context.Background(), crawlConfig(t, server.URL, 5, 1), scheduler.Hooks{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.PagesCrawled)
}

func TestCrawler_InvalidConfig(t *testing.T) {
	c := New(zerolog.Nop())

	_, err := c.Execute(context.Background(), json.RawMessage(`{not json`), scheduler.Hooks{})
	assert.Error(t, err)

	_, err = c.Execute(context.Background(), json.RawMessage(`{"start_url":"ftp://example.com"}`), scheduler.Hooks{})
	assert.Error(t, err)

	_, err = c.Execute(context.Background(), json.RawMessage(`{"start_url":""}`), scheduler.Hooks{})
	assert.Error(t, err)
}

func TestCrawler_StartPageUnreachable(t *testing.T) {
	server := testSite(t)
	c := New(zerolog.Nop())

	result, err := c.Execute(context.Background(), crawlConfig(t, server.URL+"/missing", 2, 10), scheduler.Hooks{})
	assert.Error(t, err)
	assert.Zero(t, result.PagesCrawled)
}
