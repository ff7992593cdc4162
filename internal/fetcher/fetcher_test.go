package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Fetcher.RequestTimeout = 5 * time.Second
	cfg.Fetcher.UserAgents = []string{"ibscout-test-agent"}
	return cfg
}

// --- HTTP Fetcher Tests ---

func TestHTTPFetcherSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	f, err := NewHTTPFetcher(testConfig(), testLogger)
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	defer f.Close()

	resp, err := f.Fetch(context.Background(), srv.URL+"/school/1/")
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if got.Get("User-Agent") != "ibscout-test-agent" {
		t.Errorf("expected pool user agent, got %q", got.Get("User-Agent"))
	}
	if got.Get("Referer") != "https://www.ibo.org/" {
		t.Errorf("expected referer, got %q", got.Get("Referer"))
	}
	if got.Get("Sec-Fetch-Mode") != "navigate" {
		t.Errorf("expected Sec-Fetch-Mode navigate, got %q", got.Get("Sec-Fetch-Mode"))
	}
	if got.Get("DNT") != "1" {
		t.Errorf("expected DNT 1, got %q", got.Get("DNT"))
	}
}

func TestHTTPFetcherDecodesBrotli(t *testing.T) {
	const page = "<html><body><h1>brotli</h1></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(page))
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(testConfig(), testLogger)
	defer f.Close()

	resp, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if string(resp.Body) != page {
		t.Errorf("expected decoded body, got %q", resp.Body)
	}
}

func TestHTTPFetcherDecodesDeflate(t *testing.T) {
	const page = "<html><body><h1>deflate</h1></body></html>"

	tests := []struct {
		name   string
		writer func(*bytes.Buffer) io.WriteCloser
	}{
		{"zlib", func(b *bytes.Buffer) io.WriteCloser { return zlib.NewWriter(b) }},
		{"raw", func(b *bytes.Buffer) io.WriteCloser {
			fw, _ := flate.NewWriter(b, flate.DefaultCompression)
			return fw
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var buf bytes.Buffer
				zw := tt.writer(&buf)
				zw.Write([]byte(page))
				zw.Close()
				w.Header().Set("Content-Encoding", "deflate")
				w.Write(buf.Bytes())
			}))
			defer srv.Close()

			f, _ := NewHTTPFetcher(testConfig(), testLogger)
			defer f.Close()

			resp, err := f.Fetch(context.Background(), srv.URL)
			if err != nil {
				t.Fatalf("fetch error: %v", err)
			}
			if string(resp.Body) != page {
				t.Errorf("expected decoded body, got %q", resp.Body)
			}
		})
	}
}

func TestHTTPFetcherRejectsOversizedBody(t *testing.T) {
	page := "<html><body>" + strings.Repeat("x", 200) + "</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Fetcher.MaxBodySize = 100
	f, _ := NewHTTPFetcher(cfg, testLogger)
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, types.ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.IsRetryable() {
		t.Errorf("oversized body must be a non-retryable FetchError, got %v", err)
	}

	cfg.Fetcher.MaxBodySize = int64(len(page))
	f2, _ := NewHTTPFetcher(cfg, testLogger)
	defer f2.Close()

	resp, err := f2.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("body at the limit must be accepted: %v", err)
	}
	if string(resp.Body) != page {
		t.Errorf("expected full body, got %d bytes", len(resp.Body))
	}
}

func TestHTTPFetcherAcceptsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(testConfig(), testLogger)
	defer f.Close()

	resp, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("empty 200 should not fail: %v", err)
	}
	if len(resp.Body) != 0 {
		t.Errorf("expected empty body, got %q", resp.Body)
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(testConfig(), testLogger)
	defer f.Close()

	_, err := f.Fetch(context.Background(), srv.URL)
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", fe.StatusCode)
	}
	if !fe.IsRetryable() {
		t.Error("status failures are retried")
	}
}

func TestHTTPFetcherKeepsSessionCookies(t *testing.T) {
	var sawCookie bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			sawCookie = true
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f, _ := NewHTTPFetcher(testConfig(), testLogger)
	defer f.Close()

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
			t.Fatalf("fetch %d error: %v", i, err)
		}
	}
	if !sawCookie {
		t.Error("expected cookie set on first response to be sent on the second request")
	}
}

func TestHTTPFetcherInvalidURL(t *testing.T) {
	f, _ := NewHTTPFetcher(testConfig(), testLogger)
	defer f.Close()

	_, err := f.Fetch(context.Background(), "not a url")
	if !errors.Is(err, types.ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL, got %v", err)
	}
}

// --- Retrier Tests ---

type stubFetcher struct {
	calls   int
	failFor int
	err     error
}

func (s *stubFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	s.calls++
	if s.calls <= s.failFor {
		return nil, s.err
	}
	return types.NewResponse(rawURL, 200, nil, []byte("<html></html>"), "", 0), nil
}

func (s *stubFetcher) Close() error { return nil }
func (s *stubFetcher) Type() string { return "stub" }

type recordingSleeper struct {
	sleeps []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func TestRetrierSucceedsAfterFailures(t *testing.T) {
	stub := &stubFetcher{failFor: 2, err: &types.FetchError{URL: "u", Err: errors.New("reset"), Retryable: true}}
	sleeper := &recordingSleeper{}
	r := NewRetrier(stub, 3, 5*time.Second, sleeper, testLogger)

	resp, err := r.Fetch(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if resp == nil || stub.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", stub.calls)
	}
	if len(sleeper.sleeps) != 2 {
		t.Fatalf("expected 2 sleeps, got %d", len(sleeper.sleeps))
	}
	for _, d := range sleeper.sleeps {
		if d != 5*time.Second {
			t.Errorf("expected fixed 5s delay, got %s", d)
		}
	}
	if r.RequestsSent() != 3 {
		t.Errorf("expected 3 requests sent, got %d", r.RequestsSent())
	}
}

func TestRetrierGivesUp(t *testing.T) {
	stub := &stubFetcher{failFor: 100, err: errors.New("connection refused")}
	sleeper := &recordingSleeper{}
	r := NewRetrier(stub, 3, time.Second, sleeper, testLogger)

	_, err := r.Fetch(context.Background(), "https://example.com")
	if !errors.Is(err, types.ErrMaxRetries) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if stub.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", stub.calls)
	}
	if len(sleeper.sleeps) != 2 {
		t.Errorf("expected 2 sleeps between 3 attempts, got %d", len(sleeper.sleeps))
	}
}

func TestRetrierStopsOnBlocked(t *testing.T) {
	stub := &stubFetcher{failFor: 100, err: &types.FetchError{URL: "u", Err: types.ErrBlocked}}
	r := NewRetrier(stub, 3, time.Second, &recordingSleeper{}, testLogger)

	_, err := r.Fetch(context.Background(), "https://example.com")
	if !errors.Is(err, types.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("blocked URLs must not be retried, got %d calls", stub.calls)
	}
}

func TestRetrierStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubFetcher{failFor: 100, err: errors.New("boom")}
	r := NewRetrier(stub, 3, time.Second, RealSleeper{}, testLogger)

	if _, err := r.Fetch(ctx, "https://example.com"); err == nil {
		t.Fatal("expected error")
	}
	if stub.calls != 1 {
		t.Errorf("expected 1 call after cancellation, got %d", stub.calls)
	}
}

// --- Robots Tests ---

func TestRobotsGuard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	stub := &stubFetcher{}
	g := NewRobotsGuard(stub, 5*time.Second, testLogger)

	if _, err := g.Fetch(context.Background(), srv.URL+"/school/1/"); err != nil {
		t.Fatalf("allowed path failed: %v", err)
	}
	_, err := g.Fetch(context.Background(), srv.URL+"/private/x")
	if !errors.Is(err, types.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("blocked request must not reach the fetcher, got %d calls", stub.calls)
	}
}

func TestRobotsGuardMissingFileAllows(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	g := NewRobotsGuard(&stubFetcher{}, 5*time.Second, testLogger)
	ok, err := g.IsAllowed(context.Background(), srv.URL+"/anything")
	if err != nil || !ok {
		t.Errorf("expected allowed when robots.txt is missing, got %v, %v", ok, err)
	}
}

// --- Delay Tests ---

func TestRandomBetween(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := RandomBetween(2*time.Second, 5*time.Second)
		if d < 2*time.Second || d > 5*time.Second {
			t.Fatalf("delay %s out of range", d)
		}
	}
	if d := RandomBetween(time.Second, time.Second); d != time.Second {
		t.Errorf("expected fixed delay for equal bounds, got %s", d)
	}
}

func TestRealSleeperHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := (RealSleeper{}).Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleep should return immediately on cancelled context")
	}
}
