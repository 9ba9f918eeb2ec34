// Package crawler implements the crawl worker: a bounded-concurrency,
// rate-limited, breadth-first crawl of a single host.
package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"crawlsched/internal/models"
	"crawlsched/internal/scheduler"
)

const (
	defaultMaxDepth       = 2
	defaultMaxPages       = 100
	defaultConcurrency    = 4
	defaultRequestsPerSec = 2.0
	defaultTimeout        = 15 * time.Second
	defaultUserAgent      = "crawlsched/1.0"
)

type Crawler struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Crawler {
	return &Crawler{log: log}
}

func withDefaults(cfg models.CrawlConfig) models.CrawlConfig {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSec
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return cfg
}

// Execute crawls breadth-first from the configured start URL, staying on
// the start host, until the depth or page budget is exhausted. Fetches are
// bounded by a weighted semaphore and paced by a token-bucket limiter.
func (c *Crawler) Execute(ctx context.Context, config json.RawMessage, hooks scheduler.Hooks) (scheduler.Result, error) {
	var cfg models.CrawlConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return scheduler.Result{}, fmt.Errorf("invalid crawl config: %w", err)
	}
	cfg = withDefaults(cfg)

	start, err := url.Parse(cfg.StartURL)
	if err != nil || start.Host == "" || (start.Scheme != "http" && start.Scheme != "https") {
		return scheduler.Result{}, fmt.Errorf("invalid start url %q", cfg.StartURL)
	}

	timeout := defaultTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}
	client := &http.Client{Timeout: timeout}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	sem := semaphore.NewWeighted(int64(cfg.Concurrency))

	var (
		mu      sync.Mutex
		crawled int
		lastErr error
	)
	visited := map[string]bool{start.String(): true}
	frontier := []string{start.String()}

	c.onLog(hooks, fmt.Sprintf("crawl started at %s", start))

	for depth := 0; depth <= cfg.MaxDepth && len(frontier) > 0; depth++ {
		c.onLog(hooks, fmt.Sprintf("depth %d: %d pages queued", depth, len(frontier)))

		var wg sync.WaitGroup
		var next []string
		for _, pageURL := range frontier {
			mu.Lock()
			budgetLeft := crawled < cfg.MaxPages
			mu.Unlock()
			if !budgetLeft {
				break
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				mu.Lock()
				defer mu.Unlock()
				return scheduler.Result{PagesCrawled: crawled, PagesFound: len(visited)}, err
			}
			wg.Add(1)
			go func(pageURL string) {
				defer sem.Release(1)
				defer wg.Done()

				if err := limiter.Wait(ctx); err != nil {
					return
				}
				links, err := c.fetch(ctx, client, cfg.UserAgent, pageURL)
				if err != nil {
					c.log.Warn().Err(err).Str("url", pageURL).Msg("fetch failed")
					mu.Lock()
					lastErr = err
					mu.Unlock()
					return
				}

				if hooks.OnPage != nil {
					hooks.OnPage(pageURL)
				}

				mu.Lock()
				crawled++
				for _, link := range links {
					if visited[link] {
						continue
					}
					if u, err := url.Parse(link); err != nil || u.Host != start.Host {
						continue
					}
					visited[link] = true
					next = append(next, link)
				}
				mu.Unlock()
			}(pageURL)
		}
		wg.Wait()
		frontier = next
	}

	mu.Lock()
	result := scheduler.Result{PagesCrawled: crawled, PagesFound: len(visited)}
	err = lastErr
	mu.Unlock()

	if hooks.OnDone != nil {
		hooks.OnDone(result.PagesCrawled)
	}
	if result.PagesCrawled == 0 {
		if err == nil {
			err = fmt.Errorf("no pages fetched")
		}
		return result, fmt.Errorf("crawl of %s failed: %w", cfg.StartURL, err)
	}
	return result, nil
}

func (c *Crawler) onLog(hooks scheduler.Hooks, msg string) {
	if hooks.OnLog != nil {
		hooks.OnLog(msg)
	}
}

// fetch retrieves a page and returns the absolute http(s) links it contains.
func (c *Crawler) fetch(ctx context.Context, client *http.Client, userAgent, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: status %d", pageURL, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "text/html") {
		return nil, nil
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	return extractLinks(resp.Body, base), nil
}

func extractLinks(body io.Reader, base *url.URL) []string {
	var links []string
	tokenizer := html.NewTokenizer(body)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if string(key) == "href" {
					if link := resolveLink(base, string(val)); link != "" {
						links = append(links, link)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
