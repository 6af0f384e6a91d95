package discover

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserConfig controls the headless Chrome session behind ChromedpSource.
type BrowserConfig struct {
	UserAgent  string
	NavTimeout time.Duration
}

// ChromedpSource implements PageSource with a single exclusive headless
// Chrome session. Discovery is deliberately single-threaded; parallel browser
// sessions are not worth their cost and fragility here.
type ChromedpSource struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	cfg           BrowserConfig
}

// NewChromedpSource launches headless Chrome and warms it up so a broken
// environment fails the run immediately rather than on first navigation.
func NewChromedpSource(ctx context.Context, cfg BrowserConfig) (*ChromedpSource, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpSource{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		cfg:           cfg,
	}, nil
}

// Close releases the browser and its allocator.
func (s *ChromedpSource) Close() {
	s.browserCancel()
	s.allocCancel()
}

// Navigate loads url and waits for the document body to be ready.
func (s *ChromedpSource) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := s.taskContext(ctx)
	defer cancel()

	actions := []chromedp.Action{
		s.networkSetup(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// ScrollToBottom scrolls the window to the document end and returns the
// resulting scroll height, which the discoverer uses to detect a plateau.
func (s *ChromedpSource) ScrollToBottom(ctx context.Context) (int64, error) {
	runCtx, cancel := s.taskContext(ctx)
	defer cancel()

	var height int64
	script := `(() => { window.scrollTo(0, document.body.scrollHeight); return document.body.scrollHeight; })()`
	if err := chromedp.Run(runCtx, chromedp.Evaluate(script, &height)); err != nil {
		return 0, fmt.Errorf("scroll to bottom: %w", err)
	}
	return height, nil
}

// HTML snapshots the rendered DOM.
func (s *ChromedpSource) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.taskContext(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot dom: %w", err)
	}
	return html, nil
}

func (s *ChromedpSource) taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.NavTimeout)
	stop := forwardCancel(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *ChromedpSource) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// forwardCancel propagates cancellation of the caller's context into a task
// context derived from the long-lived browser context.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
