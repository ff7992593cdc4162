package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/types"
)

// Fetcher is the interface for all page fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the page at rawURL.
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the configured fetcher stack: the transport (http or browser),
// an optional robots.txt guard, and the fixed-delay retrier on top.
func New(cfg *config.Config, logger *slog.Logger) (*Retrier, error) {
	var (
		base Fetcher
		err  error
	)

	switch cfg.Fetcher.Type {
	case "browser":
		base, err = NewBrowserFetcher(cfg, logger)
	case "http", "":
		base, err = NewHTTPFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Fetcher.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Fetcher.RespectRobotsTxt {
		base = NewRobotsGuard(base, cfg.Fetcher.RequestTimeout, logger)
	}

	return NewRetrier(base, cfg.Fetcher.MaxAttempts, cfg.Fetcher.RetryDelay, RealSleeper{}, logger), nil
}
