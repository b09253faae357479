// Package crawler fetches and parses HTML pages under a base URL with two
// decoupled worker pools. Fetchers issue polite GETs, canonicalize URLs and
// extract links; processors hand each (url, html) pair to a user-supplied
// sink. A controller loop owns the visited set and decides termination from
// channel slack plus an active-worker counter.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// urlBlacklist holds paths that are never visited.
var urlBlacklist = []string{"/cdn-cgi/l/email-protection"}

// controllerPause is the idle wait between termination checks.
const controllerPause = 5 * time.Millisecond

// Config controls crawl behavior.
type Config struct {
	// CrawlConcurrency is the fetcher pool size.
	CrawlConcurrency int
	// ProcessConcurrency is the processor pool size.
	ProcessConcurrency int
	// Delay is slept after each fetch completes, before the fetcher takes
	// another URL. Concurrent fetchers therefore keep a minimum
	// inter-request spacing of roughly Delay/CrawlConcurrency.
	Delay time.Duration
	// UserAgent identifies the crawler to the target site.
	UserAgent string
	// Timeout bounds each outbound request.
	Timeout time.Duration
}

// DefaultConfig returns the default crawl configuration.
func DefaultConfig() Config {
	return Config{
		CrawlConcurrency:   10,
		ProcessConcurrency: 10,
		Delay:              5 * time.Millisecond,
		UserAgent:          "DocsmithBot/0.1.0 (docsmith.dev)",
		Timeout:            30 * time.Second,
	}
}

// SkipReason explains why a discovered URL was not enqueued.
type SkipReason int

const (
	SkipAlreadyVisited SkipReason = iota
	SkipBlacklisted
	SkipHostMismatch
	SkipOutsideBasePath
)

func (r SkipReason) String() string {
	switch r {
	case SkipAlreadyVisited:
		return "already visited"
	case SkipBlacklisted:
		return "blacklisted"
	case SkipHostMismatch:
		return "host mismatch"
	case SkipOutsideBasePath:
		return "outside base path"
	default:
		return "unknown"
	}
}

// ProcessFunc receives each fetched page. It is invoked concurrently, up to
// ProcessConcurrency calls at a time, with no ordering guarantee.
type ProcessFunc func(ctx context.Context, pageURL *url.URL, html string)

// Crawler crawls all pages under a base URL.
type Crawler struct {
	baseURL *url.URL
	cfg     Config
	client  *http.Client
	visited map[string]struct{}
	logger  *slog.Logger
}

// New creates a Crawler for the given base URL.
func New(baseURL string, cfg Config, logger *slog.Logger) (*Crawler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("crawler: parse base url %s: %w", baseURL, err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("crawler: base url %s has no host", baseURL)
	}

	return &Crawler{
		baseURL: base,
		cfg:     cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.CrawlConcurrency,
				MaxIdleConnsPerHost: cfg.CrawlConcurrency,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		visited: make(map[string]struct{}),
		logger:  logger,
	}, nil
}

// page is one fetched document awaiting processing.
type page struct {
	url  *url.URL
	html string
}

// discovery reports a fetched URL and the links found on it.
type discovery struct {
	from  *url.URL
	links []*url.URL
}

// Crawl fetches every page reachable under the base URL and hands each one
// to onPage. It returns once both queues have drained, no fetch is in
// flight, and the processors have finished draining pending pages.
// Cancelling ctx stops the crawl early; in-flight fetches complete or error
// and pending pages are still drained before Crawl returns.
func (c *Crawler) Crawl(ctx context.Context, onPage ProcessFunc) error {
	crawlCap := c.cfg.CrawlConcurrency * 400
	processCap := c.cfg.ProcessConcurrency * 10

	toVisit := make(chan *url.URL, crawlCap)
	newURLs := make(chan discovery, crawlCap)
	pages := make(chan page, processCap)

	// active counts URLs that are queued or being fetched: it is raised when
	// a URL is enqueued and lowered once its fetch has been fully handled.
	var active atomic.Int64

	// Seed. Visited bookkeeping happens at enqueue time so no URL is ever
	// enqueued twice.
	c.visited[c.baseURL.String()] = struct{}{}
	active.Add(1)
	toVisit <- c.baseURL

	var processors sync.WaitGroup
	processors.Add(c.cfg.ProcessConcurrency)
	for range c.cfg.ProcessConcurrency {
		go func() {
			defer processors.Done()
			for p := range pages {
				onPage(ctx, p.url, p.html)
			}
		}()
	}

	var fetchers sync.WaitGroup
	fetchers.Add(c.cfg.CrawlConcurrency)
	for range c.cfg.CrawlConcurrency {
		go func() {
			defer fetchers.Done()
			c.fetchLoop(ctx, toVisit, newURLs, pages, &active)
		}()
	}
	fetchersDone := make(chan struct{})
	go func() {
		fetchers.Wait()
		close(fetchersDone)
	}()

	// Controller loop: sole owner of the visited set.
	for {
		select {
		case d := <-newURLs:
			c.visited[d.from.String()] = struct{}{}
			for _, u := range d.links {
				if reason, ok := c.shouldVisit(u); !ok {
					c.logger.Debug("crawler: skipping url", "url", u.String(), "reason", reason.String())
					continue
				}
				c.visited[u.String()] = struct{}{}
				active.Add(1)
				toVisit <- u
			}
			continue
		default:
		}

		// All three conditions are checked in the same iteration: the counter
		// is raised before a URL is enqueued, and a fetcher lowers it only
		// after publishing its discoveries, so the check cannot race a URL
		// that is queued, just dequeued, or still being fetched.
		if len(newURLs) == 0 && len(toVisit) == 0 && active.Load() == 0 {
			break
		}
		if ctx.Err() != nil {
			break
		}

		time.Sleep(controllerPause)
	}

	c.logger.Info("crawler: finished", "visited", len(c.visited))

	// Release the pools: fetchers exit when toVisit closes (draining any
	// late discoveries meanwhile), processors exit when pages closes.
	close(toVisit)
	for {
		select {
		case <-newURLs:
			continue
		case <-fetchersDone:
		}
		break
	}
	close(pages)
	processors.Wait()

	c.client.CloseIdleConnections()
	return ctx.Err()
}

// fetchLoop is one fetcher worker: fetch, canonicalize, extract links,
// publish, then sleep the politeness delay.
func (c *Crawler) fetchLoop(ctx context.Context, toVisit <-chan *url.URL, newURLs chan<- discovery, pages chan<- page, active *atomic.Int64) {
	for queued := range toVisit {
		c.logger.Debug("crawler: fetching", "url", queued.String())

		finalURL, html, err := c.fetch(ctx, queued)
		if err != nil {
			c.logger.Warn("crawler: fetch failed", "url", queued.String(), "err", err)
			// Still report the attempt so the controller records it visited.
			newURLs <- discovery{from: queued}
			c.sleep(ctx)
			active.Add(-1)
			continue
		}

		canonical := cleanURL(finalURL, c.baseURL)
		links := ExtractLinks(html, c.baseURL)

		pages <- page{url: canonical, html: html}
		newURLs <- discovery{from: canonical, links: links}

		c.sleep(ctx)
		active.Add(-1)
	}
}

// fetch issues one GET and returns the final URL after redirects with the
// response body.
func (c *Crawler) fetch(ctx context.Context, u *url.URL) (*url.URL, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Connection", "keep-alive")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return resp.Request.URL, string(body), nil
}

func (c *Crawler) sleep(ctx context.Context) {
	if c.cfg.Delay <= 0 {
		return
	}
	select {
	case <-time.After(c.cfg.Delay):
	case <-ctx.Done():
	}
}

// shouldVisit applies the visit predicate: same host, under the base path,
// not yet visited, not blacklisted.
func (c *Crawler) shouldVisit(u *url.URL) (SkipReason, bool) {
	if u.Host != c.baseURL.Host {
		return SkipHostMismatch, false
	}
	if !strings.HasPrefix(u.Path, c.baseURL.Path) {
		return SkipOutsideBasePath, false
	}
	if _, ok := c.visited[u.String()]; ok {
		return SkipAlreadyVisited, false
	}
	for _, blocked := range urlBlacklist {
		if u.Path == blocked {
			return SkipBlacklisted, false
		}
	}
	return 0, true
}
