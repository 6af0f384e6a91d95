package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/artner/artmap-crawler/internal/exhibit"
	"github.com/artner/artmap-crawler/internal/extract"
)

func detailPage(title string) string {
	return fmt.Sprintf(`<html><body>
<div style="text-align:center; font-size:26px">%s</div>
<table><tr><th>기간</th><td>2024.03.01 - 2024.05.31</td></tr></table>
</body></html>`, title)
}

func newTestFetcher(t *testing.T, cfg Config) *Fetcher {
	t.Helper()
	return New(cfg, extract.New("https://art-map.co.kr"), nil, zaptest.NewLogger(t))
}

func TestFetchAllIsolatesPerItemFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "idx=3") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, detailPage("전시 "+r.URL.Query().Get("idx")))
	}))
	defer server.Close()

	links := make([]exhibit.DiscoveredLink, 5)
	for i := range links {
		links[i] = exhibit.DiscoveredLink{
			URL:   fmt.Sprintf("%s/exhibition/view.php?idx=%d", server.URL, i+1),
			Title: fmt.Sprintf("목록 제목 %d", i+1),
		}
	}

	f := newTestFetcher(t, Config{Concurrency: 10, Timeout: 5 * time.Second})
	details := f.FetchAll(context.Background(), links)

	require.Len(t, details, 5, "one output per input, no silent drops")
	failed := 0
	for i, d := range details {
		assert.Equal(t, links[i].URL, d.DetailURL)
		if d.FetchError != "" {
			failed++
			// The failed item keeps its inline summary title.
			assert.Equal(t, links[i].Title, d.Title)
			continue
		}
		assert.Equal(t, fmt.Sprintf("전시 %d", i+1), d.Title)
	}
	assert.Equal(t, 1, failed)
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		fmt.Fprint(w, detailPage("제목"))
	}))
	defer server.Close()

	links := make([]exhibit.DiscoveredLink, 40)
	for i := range links {
		links[i] = exhibit.DiscoveredLink{URL: fmt.Sprintf("%s/exhibition/view.php?idx=%d", server.URL, i)}
	}

	f := newTestFetcher(t, Config{Concurrency: 10, Timeout: 5 * time.Second})
	details := f.FetchAll(context.Background(), links)

	require.Len(t, details, 40)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(10),
		"no more than 10 requests may be in flight at once")
}

func TestFetchAllTimeoutBecomesFetchError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, detailPage("느린 전시"))
	}))
	defer server.Close()

	link := exhibit.DiscoveredLink{
		URL:    server.URL + "/exhibition/view.php?idx=1",
		Title:  "느린 전시",
		Venue:  "어느 미술관",
		Period: "2024.01.01 - 2024.02.01",
	}

	f := newTestFetcher(t, Config{Concurrency: 2, Timeout: 50 * time.Millisecond})
	details := f.FetchAll(context.Background(), []exhibit.DiscoveredLink{link})

	require.Len(t, details, 1)
	assert.NotEmpty(t, details[0].FetchError)
	assert.Equal(t, "느린 전시", details[0].Title)
	assert.Equal(t, "어느 미술관", details[0].Venue)
	assert.Equal(t, "2024.01.01 - 2024.02.01", details[0].Period)
}

func TestFetchAllSharedBackendSurvivesRepeatedRuns(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage("전시 "+r.URL.Query().Get("idx")))
	}))
	defer server.Close()

	links := make([]exhibit.DiscoveredLink, 8)
	for i := range links {
		links[i] = exhibit.DiscoveredLink{URL: fmt.Sprintf("%s/exhibition/view.php?idx=%d", server.URL, i)}
	}

	// The collector backend is configured once and shared by every clone;
	// a second run over the same URLs must behave exactly like the first.
	f := newTestFetcher(t, Config{Concurrency: 4, Timeout: 5 * time.Second})
	for run := 0; run < 2; run++ {
		details := f.FetchAll(context.Background(), links)
		require.Len(t, details, len(links), "run %d", run)
		for i, d := range details {
			assert.Emptyf(t, d.FetchError, "run %d item %d", run, i)
			assert.Equal(t, fmt.Sprintf("전시 %d", i), d.Title)
		}
	}
}

func TestFetchAllEmptyInput(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(t, Config{})
	assert.Empty(t, f.FetchAll(context.Background(), nil))
}
