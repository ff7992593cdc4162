package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/IshaanNene/ibscout/internal/types"
)

// RobotsGuard refuses URLs disallowed by the host's robots.txt before
// handing them to the wrapped fetcher. robots.txt is fetched once per host.
type RobotsGuard struct {
	next   Fetcher
	client *http.Client
	groups map[string]*robotstxt.Group
	mu     sync.Mutex
	logger *slog.Logger
}

// NewRobotsGuard wraps next.
func NewRobotsGuard(next Fetcher, timeout time.Duration, logger *slog.Logger) *RobotsGuard {
	return &RobotsGuard{
		next:   next,
		client: &http.Client{Timeout: timeout},
		groups: make(map[string]*robotstxt.Group),
		logger: logger.With("component", "robots_guard"),
	}
}

// Fetch implements Fetcher.
func (g *RobotsGuard) Fetch(ctx context.Context, rawURL string) (*types.Response, error) {
	allowed, err := g.IsAllowed(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &types.FetchError{URL: rawURL, Err: types.ErrBlocked}
	}
	return g.next.Fetch(ctx, rawURL)
}

// IsAllowed reports whether rawURL may be fetched. A robots.txt that cannot
// be retrieved allows everything.
func (g *RobotsGuard) IsAllowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}

	group := g.group(ctx, u)
	if group == nil {
		return true, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), nil
}

func (g *RobotsGuard) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	origin := u.Scheme + "://" + u.Host

	g.mu.Lock()
	defer g.mu.Unlock()

	if group, ok := g.groups[origin]; ok {
		return group
	}

	var group *robotstxt.Group
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err == nil {
		var resp *http.Response
		resp, err = g.client.Do(req)
		if err == nil {
			defer resp.Body.Close()
			var data *robotstxt.RobotsData
			data, err = robotstxt.FromResponse(resp)
			if err == nil {
				group = data.FindGroup("ibscout")
			}
		}
	}
	if err != nil {
		g.logger.Warn("robots.txt unavailable, allowing all", "origin", origin, "error", err)
	}

	g.groups[origin] = group
	return group
}

// Close closes the wrapped fetcher.
func (g *RobotsGuard) Close() error {
	return g.next.Close()
}

// Type returns the wrapped fetcher type.
func (g *RobotsGuard) Type() string {
	return g.next.Type()
}
