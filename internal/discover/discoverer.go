// Package discover drives the browser-backed listing discovery stage.
package discover

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/artner/artmap-crawler/internal/exhibit"
	"github.com/artner/artmap-crawler/internal/normalize"
)

// BrowserError marks a fatal failure of the automation session itself.
// Anything else during discovery is tolerated and yields fewer links.
type BrowserError struct {
	Op  string
	Err error
}

func (e *BrowserError) Error() string { return fmt.Sprintf("browser %s: %v", e.Op, e.Err) }

func (e *BrowserError) Unwrap() error { return e.Err }

// PageSource is the minimal browser capability the discoverer needs. The
// production implementation drives headless Chrome; tests replay canned HTML.
type PageSource interface {
	Navigate(ctx context.Context, url string) error
	// ScrollToBottom scrolls the page and reports the resulting scroll height.
	ScrollToBottom(ctx context.Context) (int64, error)
	HTML(ctx context.Context) (string, error)
	Close()
}

// SourceFactory opens a fresh browser session for one discovery run.
type SourceFactory func(ctx context.Context) (PageSource, error)

// Config controls the scroll loop.
type Config struct {
	ListingURL  string
	BaseURL     string
	LinkPattern string
	MaxScroll   int
	ScrollDelay time.Duration
}

// maxStalls is how many consecutive zero-new-link iterations end the loop.
// The site's infinite scroll occasionally stalls, so neither the stall count
// nor the height plateau is reliable alone.
const maxStalls = 3

// Discoverer enumerates detail-page links from the infinite-scroll listing.
type Discoverer struct {
	newSource SourceFactory
	cfg       Config
	logger    *zap.Logger
}

// New builds a Discoverer. The factory is invoked once per Discover call so
// the browser session is scoped to the run and always released.
func New(factory SourceFactory, cfg Config, logger *zap.Logger) *Discoverer {
	if cfg.LinkPattern == "" {
		cfg.LinkPattern = "exhibition/view.php"
	}
	if cfg.MaxScroll <= 0 {
		cfg.MaxScroll = 30
	}
	if cfg.ScrollDelay <= 0 {
		cfg.ScrollDelay = 2 * time.Second
	}
	return &Discoverer{newSource: factory, cfg: cfg, logger: logger}
}

// Discover loads the listing page, simulates infinite scroll and returns the
// de-duplicated detail links in discovery order. It fails only with a
// *BrowserError; a stalled or partially loaded page just yields fewer links.
func (d *Discoverer) Discover(ctx context.Context) ([]exhibit.DiscoveredLink, error) {
	source, err := d.newSource(ctx)
	if err != nil {
		return nil, &BrowserError{Op: "start", Err: err}
	}
	defer source.Close()

	if err := source.Navigate(ctx, d.cfg.ListingURL); err != nil {
		return nil, &BrowserError{Op: "navigate", Err: err}
	}

	seen := make(map[string]struct{})
	var links []exhibit.DiscoveredLink
	var lastHeight int64
	stalls := 0

	for i := 0; i < d.cfg.MaxScroll; i++ {
		height, err := source.ScrollToBottom(ctx)
		if err != nil {
			return nil, &BrowserError{Op: "scroll", Err: err}
		}
		if err := d.settle(ctx); err != nil {
			return nil, &BrowserError{Op: "settle", Err: err}
		}

		html, err := source.HTML(ctx)
		if err != nil {
			return nil, &BrowserError{Op: "snapshot", Err: err}
		}

		added := d.collectLinks(html, seen, &links)
		d.logger.Debug("scroll iteration",
			zap.Int("iteration", i+1),
			zap.Int("new_links", added),
			zap.Int64("scroll_height", height),
		)

		if added == 0 {
			stalls++
			if stalls >= maxStalls {
				d.logger.Info("discovery stopped: no new links", zap.Int("iterations", i+1))
				break
			}
		} else {
			stalls = 0
		}
		if i > 0 && height == lastHeight {
			d.logger.Info("discovery stopped: scroll height plateau", zap.Int("iterations", i+1))
			break
		}
		lastHeight = height
	}

	d.logger.Info("discovery complete", zap.Int("links", len(links)))
	return links, nil
}

func (d *Discoverer) settle(ctx context.Context) error {
	timer := time.NewTimer(d.cfg.ScrollDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collectLinks scans the current DOM for detail anchors and appends any URL
// not seen before. Summary fields are read best-effort from the enclosing
// listing card; a missing field yields an empty string, never an error.
func (d *Discoverer) collectLinks(html string, seen map[string]struct{}, links *[]exhibit.DiscoveredLink) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		d.logger.Warn("listing snapshot unparseable", zap.Error(err))
		return 0
	}

	added := 0
	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		if !strings.Contains(href, d.cfg.LinkPattern) {
			return
		}
		url := d.absolutize(href)
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		*links = append(*links, d.summarize(anchor, url))
		added++
	})
	return added
}

func (d *Discoverer) absolutize(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base := strings.TrimSuffix(d.cfg.BaseURL, "/")
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

func (d *Discoverer) summarize(anchor *goquery.Selection, url string) exhibit.DiscoveredLink {
	link := exhibit.DiscoveredLink{URL: url}
	card := anchor.Closest(".new_exh_list")
	if card.Length() == 0 {
		return link
	}
	link.Title = normalize.CleanText(card.Find("span.title").First().Text())
	// The card's anchor precedes the spans, so count spans only: the venue is
	// the third span and the period the fifth, with filler spans between.
	link.Venue = normalize.CleanText(card.Find("span:nth-of-type(3)").First().Text())
	link.Period = normalize.CleanText(card.Find("span:nth-of-type(5)").First().Text())
	if src, ok := card.Find("img").First().Attr("src"); ok {
		link.ThumbnailURL = normalize.ResolveImageURL(src, d.cfg.BaseURL)
	}
	return link
}
