// Package fetch retrieves discovered detail pages with bounded concurrency.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/artner/artmap-crawler/internal/exhibit"
	"github.com/artner/artmap-crawler/internal/extract"
	"github.com/artner/artmap-crawler/internal/metrics"
)

// Config controls the detail fetch stage.
type Config struct {
	// Concurrency caps simultaneously in-flight requests. Default 10.
	Concurrency int
	// Timeout bounds each individual request. Default 10s.
	Timeout time.Duration
	// Delay is the fixed politeness pause between request starts.
	Delay time.Duration
	UserAgent string
}

// Fetcher downloads detail pages and feeds them through the extractor.
// The underlying HTTP transport is shared read-only by all workers.
type Fetcher struct {
	cfg       Config
	extractor *extract.Extractor
	base      *colly.Collector
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New builds a Fetcher. A nil transport uses a pooled default; tests inject
// a counting transport to assert the concurrency bound.
func New(cfg Config, extractor *extract.Extractor, transport http.RoundTripper, logger *zap.Logger) *Fetcher {
	metrics.Init()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Clones share the visited-URL store; successive runs revisit the same
	// detail pages, so the built-in dedup must stay off.
	c.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if transport == nil {
		transport = newHTTPTransport()
	}
	// Clones also share the backend HTTP client. Transport and timeout are
	// fixed here once; per-request writes would race between workers.
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	var limiter *rate.Limiter
	if cfg.Delay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}

	return &Fetcher{
		cfg:       cfg,
		extractor: extractor,
		base:      c,
		limiter:   limiter,
		logger:    logger,
	}
}

// FetchAll fetches every link's detail page and returns exactly one Detail
// per input, in input order. Per-item failures never drop an item or affect
// siblings: the failed entry keeps its summary fields and carries FetchError.
// The call returns once all items finished (barrier semantics).
func (f *Fetcher) FetchAll(ctx context.Context, links []exhibit.DiscoveredLink) []exhibit.Detail {
	results := make([]exhibit.Detail, len(links))
	sem := make(chan struct{}, f.cfg.Concurrency)
	var wg sync.WaitGroup

	for i, link := range links {
		wg.Add(1)
		go func(i int, link exhibit.DiscoveredLink) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = f.fetchOne(ctx, link)
		}(i, link)
	}
	wg.Wait()
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, link exhibit.DiscoveredLink) exhibit.Detail {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return f.failed(link, fmt.Errorf("politeness wait: %w", err))
		}
	}

	metrics.IncFetchInFlight()
	html, err := f.get(ctx, link.URL)
	metrics.DecFetchInFlight()
	if err != nil {
		metrics.ObserveDetailFetch("error")
		f.logger.Warn("detail fetch failed", zap.String("url", link.URL), zap.Error(err))
		return f.failed(link, err)
	}

	metrics.ObserveDetailFetch("ok")
	return f.extractor.Extract(html, link)
}

// failed keeps whatever the listing already told us about the item.
func (f *Fetcher) failed(link exhibit.DiscoveredLink, err error) exhibit.Detail {
	detail := f.extractor.Extract("", link)
	detail.FetchError = err.Error()
	return detail
}

// get clones the base collector for callback isolation only; the clone reuses
// the base's backend client and settings untouched.
func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	collector := f.base.Clone()

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("visit %s: %w", url, err)
		}
	}
	if fetchErr != nil {
		return "", fmt.Errorf("fetch %s (status %d): %w", url, status, fetchErr)
	}
	return string(body), nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
