package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/fetcher"
	"github.com/IshaanNene/ibscout/internal/parser"
	"github.com/IshaanNene/ibscout/internal/pipeline"
	"github.com/IshaanNene/ibscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// directorySite serves a two-page listing whose second page links back to
// the first, plus detail pages. School 003 always fails.
type directorySite struct {
	detailHits atomic.Int64
	failPage2  bool
}

func (d *directorySite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/list" && r.URL.Query().Get("page") == "":
		fmt.Fprint(w, `<html><body>
			<a href="/school/001/">One</a>
			<a href="/school/002/">Two</a>
			<a class="Button Button--widest" data-module="load-more" href="/list?page=2">View more schools</a>
		</body></html>`)
	case r.URL.Path == "/list" && r.URL.Query().Get("page") == "2":
		if d.failPage2 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<html><body>
			<a href="/school/002/">Two again</a>
			<a href="/school/003/">Three</a>
			<a aria-label="Next page" href="/list">Back to start</a>
		</body></html>`)
	case strings.HasPrefix(r.URL.Path, "/school/"):
		d.detailHits.Add(1)
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/school/"), "/")
		if id == "003" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `<html><body>
			<h1 class="Heading Heading--blue Heading--h1 u-marginBottomL"> School %s </h1>
			<dl class="PropertyList">
				<div class="PropertyList-item"><dt class="PropertyList-key">Region:</dt><dd class="PropertyList-value">Europe</dd></div>
			</dl>
		</body></html>`, id)
	default:
		http.NotFound(w, r)
	}
}

type memoryStorage struct {
	records []*types.Record
	closed  bool
}

func (m *memoryStorage) Store(records []*types.Record) error {
	m.records = append(m.records, records...)
	return nil
}

func (m *memoryStorage) Close() error {
	m.closed = true
	return nil
}

func newTestCrawler(t *testing.T, site http.Handler, mutate func(*config.Config)) *Crawler {
	t.Helper()
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Directory.BaseURL = srv.URL
	cfg.Directory.ListingURL = srv.URL + "/list"
	cfg.Fetcher.RequestTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	hf, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	retrier := fetcher.NewRetrier(hf, cfg.Fetcher.MaxAttempts, cfg.Fetcher.RetryDelay, fetcher.NoopSleeper{}, testLogger)
	t.Cleanup(func() { retrier.Close() })

	c := New(cfg, retrier, parser.NewDetailExtractor(nil, testLogger), pipeline.FromConfig(&cfg.Pipeline, testLogger), testLogger)
	c.SetSleeper(fetcher.NoopSleeper{})
	return c
}

func TestCollectIDsFollowsPagination(t *testing.T) {
	c := newTestCrawler(t, &directorySite{}, nil)

	ids, err := c.CollectIDs(context.Background())
	if err != nil {
		t.Fatalf("collect error: %v", err)
	}

	want := []string{"001", "002", "002", "003"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("expected %v, got %v", want, ids)
	}
	if got := c.Stats().PagesFetched.Load(); got != 2 {
		t.Errorf("expected 2 pages fetched (loop guard), got %d", got)
	}
}

func TestCollectIDsStopsOnFailedPage(t *testing.T) {
	c := newTestCrawler(t, &directorySite{failPage2: true}, nil)

	ids, err := c.CollectIDs(context.Background())
	if err != nil {
		t.Fatalf("collect error: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"001", "002"}) {
		t.Errorf("expected ids from first page only, got %v", ids)
	}
	if got := c.Stats().PagesFailed.Load(); got != 1 {
		t.Errorf("expected 1 failed page, got %d", got)
	}
}

func TestCollectIDsMaxPages(t *testing.T) {
	c := newTestCrawler(t, &directorySite{}, func(cfg *config.Config) {
		cfg.Directory.MaxPages = 1
	})

	ids, _ := c.CollectIDs(context.Background())
	if len(ids) != 2 {
		t.Errorf("expected 2 ids from one page, got %v", ids)
	}
}

func TestScrapeRecordsSkipsFailures(t *testing.T) {
	site := &directorySite{}
	c := newTestCrawler(t, site, nil)

	records, err := c.ScrapeRecords(context.Background(), []string{"001", "003", "002", "001"})
	if err != nil {
		t.Fatalf("scrape error: %v", err)
	}

	var got []string
	for _, r := range records {
		got = append(got, r.GetString("ID"))
	}
	if !reflect.DeepEqual(got, []string{"001", "002", "001"}) {
		t.Errorf("expected duplicates kept and failure skipped, got %v", got)
	}
	if records[0].GetString("School name") != "School 001" {
		t.Errorf("expected trimmed school name, got %q", records[0].GetString("School name"))
	}
	if got := c.Stats().RecordsFailed.Load(); got != 1 {
		t.Errorf("expected 1 failed record, got %d", got)
	}
	// 3 successes plus 3 attempts for the failing id.
	if got := site.detailHits.Load(); got != 6 {
		t.Errorf("expected 6 detail requests, got %d", got)
	}
}

func TestScrapeRecordsMaxRecords(t *testing.T) {
	c := newTestCrawler(t, &directorySite{}, func(cfg *config.Config) {
		cfg.Directory.MaxRecords = 2
	})

	records, _ := c.ScrapeRecords(context.Background(), []string{"001", "002", "004"})
	if len(records) != 2 {
		t.Errorf("expected 2 records, got %d", len(records))
	}
}

func TestRunExportsRecords(t *testing.T) {
	c := newTestCrawler(t, &directorySite{}, nil)
	store := &memoryStorage{}

	if err := c.Run(context.Background(), store); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !store.closed {
		t.Error("storage must be closed")
	}
	if len(store.records) != 3 {
		t.Fatalf("expected 3 records (001, 002, 002), got %d", len(store.records))
	}
	if store.records[2].GetString("Region") != "Europe" {
		t.Errorf("expected region, got %q", store.records[2].GetString("Region"))
	}

	snap := c.Snapshot()
	if snap["records_scraped"] != int64(3) {
		t.Errorf("expected 3 scraped in snapshot, got %v", snap["records_scraped"])
	}
	if _, ok := snap["requests_sent"]; !ok {
		t.Error("expected fetcher traffic in snapshot")
	}
}

func TestRunCancelledStillExports(t *testing.T) {
	c := newTestCrawler(t, &directorySite{}, nil)
	store := &memoryStorage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx, store)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !store.closed {
		t.Error("storage must be closed even when cancelled")
	}
}

// --- Delay Tests ---

type countingSleeper struct {
	calls []time.Duration
}

func (s *countingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func TestDelaysOnlyBetweenRequests(t *testing.T) {
	c := newTestCrawler(t, &directorySite{}, nil)
	sleeper := &countingSleeper{}
	c.SetSleeper(sleeper)

	ids, _ := c.CollectIDs(context.Background())
	if len(sleeper.calls) != 1 {
		t.Fatalf("expected 1 listing delay for 2 pages, got %d", len(sleeper.calls))
	}
	if d := sleeper.calls[0]; d < 3*time.Second || d > 7*time.Second {
		t.Errorf("listing delay %s outside 3s-7s", d)
	}

	sleeper.calls = nil
	c.ScrapeRecords(context.Background(), ids[:2])
	if len(sleeper.calls) != 1 {
		t.Fatalf("expected 1 detail delay for 2 records, got %d", len(sleeper.calls))
	}
	if d := sleeper.calls[0]; d < 2*time.Second || d > 5*time.Second {
		t.Errorf("detail delay %s outside 2s-5s", d)
	}
}

// --- URL Tests ---

func TestDetailURL(t *testing.T) {
	c := New(config.DefaultConfig(), nil, nil, nil, testLogger)
	got, err := c.DetailURL("001234")
	if err != nil {
		t.Fatalf("detail url error: %v", err)
	}
	if got != "https://www.ibo.org/school/001234/" {
		t.Errorf("unexpected detail url %q", got)
	}
}

func TestVisitedPagesCanonical(t *testing.T) {
	v := NewVisitedPages()
	v.MarkSeen("https://WWW.ibo.org:443/list/?b=2&a=1#top")

	if !v.IsSeen("https://www.ibo.org/list?a=1&b=2") {
		t.Error("expected canonical match")
	}
	if v.IsSeen("https://www.ibo.org/list?a=1&b=3") {
		t.Error("different query must not match")
	}
	if v.Count() != 1 {
		t.Errorf("expected 1 entry, got %d", v.Count())
	}
}

func TestPageKeyKeepsDistinctPages(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"https://www.ibo.org/find/?page=2", "https://www.ibo.org/find?page=2", true},
		{"http://www.ibo.org:80/find", "http://www.ibo.org/find", true},
		{"https://www.ibo.org:8443/find", "https://www.ibo.org/find", false},
		{"https://www.ibo.org/find?page=2", "https://www.ibo.org/find?page=3", false},
		{"https://www.ibo.org/find?a=1&a=2", "https://www.ibo.org/find?a=2&a=1", false},
	}

	for _, tt := range tests {
		if got := pageKey(tt.a) == pageKey(tt.b); got != tt.same {
			t.Errorf("pageKey(%q) == pageKey(%q): got %v, want %v", tt.a, tt.b, got, tt.same)
		}
	}
}
