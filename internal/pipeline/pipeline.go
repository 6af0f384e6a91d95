// Package pipeline sequences listing discovery, detail fetching, and
// persistence into one synchronous crawl run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/artner/artmap-crawler/internal/exhibit"
	"github.com/artner/artmap-crawler/internal/metrics"
	"github.com/artner/artmap-crawler/internal/normalize"
	"github.com/artner/artmap-crawler/internal/publisher"
)

// Discoverer surfaces detail-page links from the listing page.
type Discoverer interface {
	Discover(ctx context.Context) ([]exhibit.DiscoveredLink, error)
}

// Fetcher resolves discovered links into extracted details.
type Fetcher interface {
	FetchAll(ctx context.Context, links []exhibit.DiscoveredLink) []exhibit.Detail
}

// Saver upserts one parsed record.
type Saver interface {
	Save(ctx context.Context, rec exhibit.Record) (exhibit.Outcome, error)
}

// RunOptions carries per-run overrides from the API caller. Zero values fall
// back to configured defaults.
type RunOptions struct {
	MaxScroll int
	// ScrollDelay is honored only when ScrollDelayProvided is set, so an
	// explicit zero delay is distinguishable from "use the default".
	ScrollDelay         time.Duration
	ScrollDelayProvided bool
	Debug               bool
}

// Notification is the payload published after every run.
type Notification struct {
	Success    bool  `json:"success"`
	Found      int   `json:"found"`
	Saved      int   `json:"saved"`
	Updated    int   `json:"updated"`
	Skipped    int   `json:"skipped"`
	DurationMs int64 `json:"duration_ms"`
}

// DiscovererFactory builds a Discoverer for one run, honoring the caller's
// scroll overrides. Each run gets its own browser session.
type DiscovererFactory func(opts RunOptions) Discoverer

// Pipeline runs the crawl end to end and aggregates a RunSummary.
type Pipeline struct {
	newDiscoverer DiscovererFactory
	fetcher       Fetcher
	saver         Saver
	notifier      publisher.Publisher
	logger        *zap.Logger
}

// New assembles a Pipeline. A nil notifier disables notifications.
func New(newDiscoverer DiscovererFactory, fetcher Fetcher, saver Saver, notifier publisher.Publisher, logger *zap.Logger) *Pipeline {
	if notifier == nil {
		notifier = publisher.Noop{}
	}
	metrics.Init()
	return &Pipeline{
		newDiscoverer: newDiscoverer,
		fetcher:       fetcher,
		saver:         saver,
		notifier:      notifier,
		logger:        logger,
	}
}

// Run executes one crawl. Browser failures abort the run and are returned to
// the caller; every other failure is recorded per item and the run proceeds.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (exhibit.RunSummary, error) {
	start := time.Now()
	summary := exhibit.RunSummary{StartTime: start}

	links, err := p.newDiscoverer(opts).Discover(ctx)
	if err != nil {
		summary.Message = "listing discovery failed"
		summary.Finalize(time.Now())
		metrics.ObserveRun("error", time.Since(start))
		p.notify(ctx, summary)
		return summary, fmt.Errorf("discover listings: %w", err)
	}
	summary.Found = len(links)
	metrics.ObserveDiscovered(len(links))
	p.logger.Info("listing discovery finished", zap.Int("links", len(links)))

	details := p.fetcher.FetchAll(ctx, links)
	summary.Exhibitions = details

	for _, d := range details {
		p.persist(ctx, d, &summary)
	}

	summary.Success = true
	summary.Message = fmt.Sprintf("crawl completed: %d found, %d saved, %d updated, %d skipped",
		summary.Found, summary.Saved, summary.Updated, summary.Skipped)
	summary.Finalize(time.Now())
	metrics.ObserveRun("ok", time.Since(start))
	p.logger.Info("crawl run finished",
		zap.Int("found", summary.Found),
		zap.Int("saved", summary.Saved),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("duration_seconds", summary.DurationSeconds))

	p.notify(ctx, summary)
	if !opts.Debug {
		summary.Errors = nil
	}
	return summary, nil
}

// CrawlOne fetches and extracts a single detail page without persisting it.
func (p *Pipeline) CrawlOne(ctx context.Context, url string) exhibit.Detail {
	details := p.fetcher.FetchAll(ctx, []exhibit.DiscoveredLink{{URL: url}})
	return details[0]
}

func (p *Pipeline) persist(ctx context.Context, d exhibit.Detail, summary *exhibit.RunSummary) {
	if d.FetchError != "" {
		summary.Skipped++
		summary.AddError(d.DetailURL, "fetch", errors.New(d.FetchError))
		return
	}

	startDate, endDate, err := normalize.ParsePeriod(d.Period)
	if err != nil {
		summary.Skipped++
		summary.AddError(d.DetailURL, "parse", fmt.Errorf("parse period %q: %w", d.Period, err))
		p.logger.Warn("period unparseable, skipping item",
			zap.String("url", d.DetailURL),
			zap.String("period", d.Period))
		return
	}

	rec := exhibit.Record{Detail: d, StartDate: startDate, EndDate: endDate}
	outcome, err := p.saver.Save(ctx, rec)
	if err != nil {
		summary.Skipped++
		summary.AddError(d.DetailURL, "persist", err)
		p.logger.Warn("persist failed, skipping item",
			zap.String("url", d.DetailURL),
			zap.Error(err))
		return
	}

	switch outcome {
	case exhibit.OutcomeCreated:
		summary.Saved++
	case exhibit.OutcomeUpdated:
		summary.Updated++
	default:
		summary.Skipped++
	}
}

func (p *Pipeline) notify(ctx context.Context, summary exhibit.RunSummary) {
	payload := Notification{
		Success:    summary.Success,
		Found:      summary.Found,
		Saved:      summary.Saved,
		Updated:    summary.Updated,
		Skipped:    summary.Skipped,
		DurationMs: int64(summary.DurationSeconds * 1000),
	}
	if _, err := p.notifier.Publish(ctx, payload); err != nil {
		p.logger.Warn("run notification failed", zap.Error(err))
	}
}
