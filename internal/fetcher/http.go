package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// HTTPFetcher implements Fetcher with a single resty client reused for the
// whole crawl, so cookies and keep-alive connections carry across pages.
type HTTPFetcher struct {
	client     *resty.Client
	cfg        *config.FetcherConfig
	logger     *slog.Logger
	userAgents []string
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		DisableCompression:  true, // brotli is decoded by hand, so Accept-Encoding is set explicitly
	}

	fc := cfg.Fetcher
	redirectPolicy := resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if !fc.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= fc.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", fc.MaxRedirects)
		}
		return nil
	})

	client := resty.New().
		SetTransport(transport).
		SetCookieJar(jar).
		SetTimeout(fc.RequestTimeout).
		SetRedirectPolicy(redirectPolicy)

	return &HTTPFetcher{
		client:     client,
		cfg:        &cfg.Fetcher,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: fc.UserAgents,
	}, nil
}

// Fetch executes a GET request and returns the decoded response.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("%w: %v", types.ErrInvalidURL, err)}
	}

	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeaders(f.headers()).
		Get(rawURL)
	duration := time.Since(start)

	if err != nil {
		return nil, &types.FetchError{
			URL:       rawURL,
			Err:       err,
			Retryable: ctx.Err() == nil,
		}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		snippet := resp.Body()
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode(),
			Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode(), strings.TrimSpace(string(snippet))),
			Retryable:  true,
		}
	}

	body, err := decodeBody(resp.Header().Get("Content-Encoding"), resp.Body(), f.cfg.MaxBodySize)
	if errors.Is(err, types.ErrBodyTooLarge) {
		return nil, &types.FetchError{URL: rawURL, StatusCode: resp.StatusCode(), Err: err}
	}
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Err: fmt.Errorf("decode body: %w", err), Retryable: true}
	}
	if len(body) == 0 {
		f.logger.Warn("empty response body", "url", rawURL, "status", resp.StatusCode())
	}

	finalURL := rawURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	f.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode(),
		"content_type", resp.Header().Get("Content-Type"),
		"size", len(body),
		"duration", duration,
	)

	return types.NewResponse(rawURL, resp.StatusCode(), resp.Header(), body, finalURL, duration), nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.GetClient().CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// headers builds the browser-like header set sent with every request.
func (f *HTTPFetcher) headers() map[string]string {
	h := map[string]string{
		"User-Agent":                f.randomUserAgent(),
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept-Encoding":           "gzip, deflate, br",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "same-origin",
		"Sec-Fetch-User":            "?1",
		"DNT":                       "1",
	}
	if f.cfg.Referer != "" {
		h["Referer"] = f.cfg.Referer
	}
	return h
}

// randomUserAgent picks a User-Agent from the pool at random.
func (f *HTTPFetcher) randomUserAgent() string {
	if len(f.userAgents) == 0 {
		return "ibscout/" + config.Version
	}
	return f.userAgents[rand.Intn(len(f.userAgents))]
}

// decodeBody undoes Content-Encoding and refuses bodies over limit bytes.
// resty already gunzips some responses while leaving the header in place,
// so gzip is only decoded when the magic bytes are still present.
func decodeBody(encoding string, raw []byte, limit int64) ([]byte, error) {
	var reader io.Reader = bytes.NewReader(raw)

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
			gz, err := gzip.NewReader(reader)
			if err != nil {
				return nil, err
			}
			defer gz.Close()
			reader = gz
		}
	case "deflate":
		rc, err := deflateReader(raw)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		reader = rc
	case "br":
		reader = brotli.NewReader(reader)
	}

	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", types.ErrBodyTooLarge, limit)
	}
	return body, nil
}

// deflateReader reads HTTP deflate, which is a zlib stream. Some servers send
// a bare deflate stream instead, recognisable by the missing zlib header.
func deflateReader(raw []byte) (io.ReadCloser, error) {
	if len(raw) >= 2 && raw[0]&0x0f == 8 && (uint16(raw[0])<<8|uint16(raw[1]))%31 == 0 {
		return zlib.NewReader(bytes.NewReader(raw))
	}
	return flate.NewReader(bytes.NewReader(raw)), nil
}
