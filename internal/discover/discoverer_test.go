package discover

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSource replays canned HTML snapshots, one per scroll iteration. Once
// the script runs out the last snapshot repeats, mimicking a stalled page.
type fakeSource struct {
	pages     []string
	heights   []int64
	scrolls   int
	scrollErr error
	closed    bool
}

func (f *fakeSource) idx() int {
	i := f.scrolls - 1
	if i >= len(f.pages) {
		i = len(f.pages) - 1
	}
	return i
}

func (f *fakeSource) Navigate(context.Context, string) error { return nil }

func (f *fakeSource) ScrollToBottom(context.Context) (int64, error) {
	f.scrolls++
	if f.scrollErr != nil && f.scrolls == len(f.pages) {
		return 0, f.scrollErr
	}
	return f.heights[f.idx()], nil
}

func (f *fakeSource) HTML(context.Context) (string, error) {
	return f.pages[f.idx()], nil
}

func (f *fakeSource) Close() { f.closed = true }

func listingPage(ids ...int) string {
	html := "<html><body>"
	for _, id := range ids {
		html += fmt.Sprintf(`
<div class="new_exh_list">
  <a href="/exhibition/view.php?idx=%d"><img src="/data/thumb%d.jpg"></a>
  <span class="title">전시 %d</span><span></span><span>미술관 %d</span><span></span><span>2024.01.01 - 2024.03.01</span>
</div>`, id, id, id, id)
	}
	return html + "</body></html>"
}

func newTestDiscoverer(t *testing.T, src *fakeSource, cfg Config) *Discoverer {
	t.Helper()
	cfg.ListingURL = "https://art-map.co.kr/exhibition/new_list.php?type=ing"
	cfg.BaseURL = "https://art-map.co.kr"
	if cfg.ScrollDelay == 0 {
		cfg.ScrollDelay = time.Millisecond
	}
	factory := func(context.Context) (PageSource, error) { return src, nil }
	return New(factory, cfg, zaptest.NewLogger(t))
}

func TestDiscoverDeduplicatesAndStopsOnStall(t *testing.T) {
	t.Parallel()

	// Two new links, then one more (with a repeat), then nothing new three
	// times in a row. Heights keep growing so only the stall rule can stop it.
	src := &fakeSource{
		pages: []string{
			listingPage(1, 2),
			listingPage(1, 2, 3),
			listingPage(1, 2, 3),
			listingPage(1, 2, 3),
			listingPage(1, 2, 3),
			listingPage(1, 2, 3),
		},
		heights: []int64{100, 200, 300, 400, 500, 600},
	}
	d := newTestDiscoverer(t, src, Config{MaxScroll: 30})

	links, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "https://art-map.co.kr/exhibition/view.php?idx=1", links[0].URL)
	assert.Equal(t, "https://art-map.co.kr/exhibition/view.php?idx=3", links[2].URL)
	assert.True(t, src.closed, "browser session must be released")
}

func TestDiscoverReadsInlineSummary(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages:   []string{listingPage(7), listingPage(7)},
		heights: []int64{100, 100},
	}
	d := newTestDiscoverer(t, src, Config{MaxScroll: 30})

	links, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "전시 7", links[0].Title)
	assert.Equal(t, "미술관 7", links[0].Venue)
	assert.Equal(t, "2024.01.01 - 2024.03.01", links[0].Period)
	assert.Equal(t, "https://art-map.co.kr/data/thumb7.jpg", links[0].ThumbnailURL)
}

func TestDiscoverStopsOnHeightPlateau(t *testing.T) {
	t.Parallel()

	// Every snapshot has a fresh link, so the stall rule never fires; the
	// frozen scroll height must end the loop instead.
	src := &fakeSource{
		pages:   []string{listingPage(1), listingPage(1, 2), listingPage(1, 2, 3)},
		heights: []int64{100, 100, 100},
	}
	d := newTestDiscoverer(t, src, Config{MaxScroll: 30})

	links, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, links, 2, "loop should stop at the second iteration")
}

func TestDiscoverHonorsIterationCap(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages:   []string{listingPage(1), listingPage(1, 2), listingPage(1, 2, 3)},
		heights: []int64{100, 200, 300},
	}
	d := newTestDiscoverer(t, src, Config{MaxScroll: 2})

	links, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

func TestDiscoverSessionStartFailureIsFatal(t *testing.T) {
	t.Parallel()

	factory := func(context.Context) (PageSource, error) {
		return nil, errors.New("chrome not found")
	}
	d := New(factory, Config{
		ListingURL:  "https://art-map.co.kr/exhibition/new_list.php",
		BaseURL:     "https://art-map.co.kr",
		ScrollDelay: time.Millisecond,
	}, zaptest.NewLogger(t))

	_, err := d.Discover(context.Background())
	var browserErr *BrowserError
	require.ErrorAs(t, err, &browserErr)
	assert.Equal(t, "start", browserErr.Op)
}

func TestDiscoverMidRunCrashIsFatalAndReleasesSession(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		pages:     []string{listingPage(1), listingPage(1, 2)},
		heights:   []int64{100, 200},
		scrollErr: errors.New("target crashed"),
	}
	d := newTestDiscoverer(t, src, Config{MaxScroll: 30})

	_, err := d.Discover(context.Background())
	var browserErr *BrowserError
	require.ErrorAs(t, err, &browserErr)
	assert.True(t, src.closed, "browser session must be released on failure")
}
