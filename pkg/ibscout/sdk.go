// Package ibscout provides a public SDK for embedding the directory scraper
// as a library.
//
// Example usage:
//
//	s, err := ibscout.New(
//	    ibscout.WithMaxPages(2),
//	    ibscout.WithOutput("csv", "./output/schools.csv"),
//	    ibscout.WithRule(ibscout.Rule{Name: "Phone", Type: "regex", Pattern: `Tel:\s*([+\d ]+)`}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.Export(ctx); err != nil {
//	    log.Fatal(err)
//	}
package ibscout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/engine"
	"github.com/IshaanNene/ibscout/internal/fetcher"
	"github.com/IshaanNene/ibscout/internal/parser"
	"github.com/IshaanNene/ibscout/internal/pipeline"
	"github.com/IshaanNene/ibscout/internal/storage"
	"github.com/IshaanNene/ibscout/internal/types"
)

// Record is one scraped school with its fields in page order.
type Record = types.Record

// Rule is an extra extraction rule applied to every detail page.
type Rule = config.ParseRule

// Scraper is the high-level API for using ibscout as a library.
type Scraper struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher *fetcher.Retrier
	crawler *engine.Crawler
}

// Option configures a Scraper.
type Option func(*config.Config)

// WithBaseURL sets the site origin detail paths are resolved against.
func WithBaseURL(u string) Option {
	return func(c *config.Config) { c.Directory.BaseURL = u }
}

// WithListingURL sets the first listing page.
func WithListingURL(u string) Option {
	return func(c *config.Config) { c.Directory.ListingURL = u }
}

// WithMaxPages caps the number of listing pages visited.
func WithMaxPages(n int) Option {
	return func(c *config.Config) { c.Directory.MaxPages = n }
}

// WithMaxRecords caps the number of records scraped.
func WithMaxRecords(n int) Option {
	return func(c *config.Config) { c.Directory.MaxRecords = n }
}

// WithDelays sets the jittered pause ranges for listing and detail pages.
func WithDelays(listingMin, listingMax, detailMin, detailMax time.Duration) Option {
	return func(c *config.Config) {
		c.Delay = config.DelayConfig{
			ListingMin: listingMin,
			ListingMax: listingMax,
			DetailMin:  detailMin,
			DetailMax:  detailMax,
		}
	}
}

// WithoutDelay disables pauses between requests.
func WithoutDelay() Option {
	return func(c *config.Config) { c.Delay = config.DelayConfig{} }
}

// WithRetries sets the attempt count and the fixed pause between attempts.
func WithRetries(attempts int, delay time.Duration) Option {
	return func(c *config.Config) {
		c.Fetcher.MaxAttempts = attempts
		c.Fetcher.RetryDelay = delay
	}
}

// WithBrowser fetches pages with headless Chromium instead of plain HTTP.
func WithBrowser() Option {
	return func(c *config.Config) { c.Fetcher.Type = "browser" }
}

// WithRobotsRespect enables/disables robots.txt compliance.
func WithRobotsRespect(respect bool) Option {
	return func(c *config.Config) { c.Fetcher.RespectRobotsTxt = respect }
}

// WithOutput sets the export format and path.
func WithOutput(format, path string) Option {
	return func(c *config.Config) {
		c.Storage.Type = format
		c.Storage.OutputPath = path
	}
}

// WithRule adds extra extraction rules.
func WithRule(rules ...Rule) Option {
	return func(c *config.Config) { c.Parser.Rules = append(c.Parser.Rules, rules...) }
}

// WithColumns keeps only the named columns (ID is always kept).
func WithColumns(columns ...string) Option {
	return func(c *config.Config) { c.Pipeline.Columns = columns }
}

// WithLogging sets the log format ("text" or "json") and destination
// ("stdout" or "stderr"). Scrapers log text to stderr by default.
func WithLogging(format, output string) Option {
	return func(c *config.Config) {
		c.Logging.Format = format
		c.Logging.Output = output
	}
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(c *config.Config) { c.Logging.Level = "debug" }
}

// New creates a Scraper from the default configuration plus opts.
func New(opts ...Option) (*Scraper, error) {
	cfg := config.DefaultConfig()
	cfg.Logging.Output = "stderr"
	for _, opt := range opts {
		opt(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	logger := config.NewLogger(&cfg.Logging, false)

	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	crawler := engine.New(cfg, f,
		parser.NewDetailExtractor(cfg.Parser.Rules, logger),
		pipeline.FromConfig(&cfg.Pipeline, logger),
		logger,
	)

	return &Scraper{
		cfg:     cfg,
		logger:  logger,
		fetcher: f,
		crawler: crawler,
	}, nil
}

// IDs walks the listing pages and returns every school id found.
func (s *Scraper) IDs(ctx context.Context) ([]string, error) {
	return s.crawler.CollectIDs(ctx)
}

// Scrape walks the listing and returns the extracted records without
// exporting them.
func (s *Scraper) Scrape(ctx context.Context) ([]*Record, error) {
	ids, err := s.crawler.CollectIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.crawler.ScrapeRecords(ctx, ids)
}

// ScrapeIDs extracts the given ids only.
func (s *Scraper) ScrapeIDs(ctx context.Context, ids ...string) ([]*Record, error) {
	return s.crawler.ScrapeRecords(ctx, ids)
}

// Export runs the full crawl and writes the configured output.
func (s *Scraper) Export(ctx context.Context) error {
	store, err := storage.New(&s.cfg.Storage, s.logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	return s.crawler.Run(ctx, store)
}

// Stats returns crawl statistics.
func (s *Scraper) Stats() map[string]any {
	return s.crawler.Snapshot()
}

// Close releases the fetcher.
func (s *Scraper) Close() error {
	return s.fetcher.Close()
}
