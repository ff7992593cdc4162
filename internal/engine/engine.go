package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/fetcher"
	"github.com/IshaanNene/ibscout/internal/parser"
	"github.com/IshaanNene/ibscout/internal/types"
)

// Stats tracks crawl statistics.
type Stats struct {
	PagesFetched   atomic.Int64
	PagesFailed    atomic.Int64
	IDsCollected   atomic.Int64
	RecordsScraped atomic.Int64
	RecordsFailed  atomic.Int64
	RecordsDropped atomic.Int64
	StartTime      time.Time
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"pages_fetched":   s.PagesFetched.Load(),
		"pages_failed":    s.PagesFailed.Load(),
		"ids_collected":   s.IDsCollected.Load(),
		"records_scraped": s.RecordsScraped.Load(),
		"records_failed":  s.RecordsFailed.Load(),
		"records_dropped": s.RecordsDropped.Load(),
		"elapsed":         time.Since(s.StartTime).Round(time.Millisecond).String(),
	}
}

// Fetcher retrieves a page. Retrying is the fetcher's business.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)
}

// Extractor turns a fetched detail page into a record.
type Extractor interface {
	Extract(resp *types.Response, id string) (*types.Record, error)
}

// Pipeline post-processes records. A nil record means drop.
type Pipeline interface {
	Process(rec *types.Record) (*types.Record, error)
}

// Storage receives the scraped records once the crawl is over.
type Storage interface {
	Store(records []*types.Record) error
	Close() error
}

// trafficCounter is implemented by fetchers that count their own traffic.
type trafficCounter interface {
	RequestsSent() int64
	BytesDownloaded() int64
}

// Crawler walks the paginated listing, then visits every collected id.
// Requests are strictly sequential.
type Crawler struct {
	cfg       *config.Config
	fetcher   Fetcher
	extractor Extractor
	pipeline  Pipeline
	sleeper   fetcher.Sleeper
	logger    *slog.Logger
	stats     *Stats
}

// New creates a Crawler. pipeline may be nil.
func New(cfg *config.Config, f Fetcher, extractor Extractor, pipeline Pipeline, logger *slog.Logger) *Crawler {
	return &Crawler{
		cfg:       cfg,
		fetcher:   f,
		extractor: extractor,
		pipeline:  pipeline,
		sleeper:   fetcher.RealSleeper{},
		logger:    logger.With("component", "crawler"),
		stats:     &Stats{StartTime: time.Now()},
	}
}

// SetSleeper replaces the sleeper used for politeness delays.
func (c *Crawler) SetSleeper(s fetcher.Sleeper) {
	c.sleeper = s
}

// Stats returns the current crawl statistics.
func (c *Crawler) Stats() *Stats {
	return c.stats
}

// Snapshot returns the crawl statistics plus fetcher traffic when available.
func (c *Crawler) Snapshot() map[string]any {
	snap := c.stats.Snapshot()
	if tc, ok := c.fetcher.(trafficCounter); ok {
		snap["requests_sent"] = tc.RequestsSent()
		snap["bytes_downloaded"] = tc.BytesDownloaded()
	}
	return snap
}

// CollectIDs follows the listing's next links from the configured start URL
// and returns every id found, in page order. A page that cannot be fetched
// ends pagination; ids collected before it are still returned. The error is
// non-nil only when ctx was cancelled.
func (c *Crawler) CollectIDs(ctx context.Context) ([]string, error) {
	var ids []string
	visited := NewVisitedPages()
	current := c.cfg.Directory.ListingURL
	maxPages := c.cfg.Directory.MaxPages

	for page := 1; current != ""; page++ {
		if err := ctx.Err(); err != nil {
			return ids, err
		}

		c.logger.Info("fetching page", "page", page, "url", current)
		visited.MarkSeen(current)

		resp, err := c.fetcher.Fetch(ctx, current)
		if err != nil {
			c.stats.PagesFailed.Add(1)
			c.logger.Error("failed to fetch listing page, ending pagination", "page", page, "url", current, "error", err)
			if ctx.Err() != nil {
				return ids, ctx.Err()
			}
			break
		}
		c.stats.PagesFetched.Add(1)

		doc, err := resp.Document()
		if err != nil {
			c.stats.PagesFailed.Add(1)
			c.logger.Error("failed to parse listing page, ending pagination", "page", page, "url", current, "error", err)
			break
		}

		pageIDs := parser.ExtractRecordIDs(doc, c.cfg.Directory.IDLinkPrefix)
		ids = append(ids, pageIDs...)
		c.stats.IDsCollected.Add(int64(len(pageIDs)))
		c.logger.Info("collected ids", "page", page, "count", len(pageIDs), "total", len(ids))

		current, err = c.nextPage(doc, resp.FinalURL, visited)
		if err != nil {
			c.logger.Warn("cannot resolve next page link, ending pagination", "page", page, "error", err)
			break
		}
		if current == "" {
			break
		}
		if maxPages > 0 && page >= maxPages {
			c.logger.Info("page limit reached, ending pagination", "max_pages", maxPages)
			break
		}

		if err := c.sleeper.Sleep(ctx, fetcher.RandomBetween(c.cfg.Delay.ListingMin, c.cfg.Delay.ListingMax)); err != nil {
			return ids, err
		}
	}

	c.logger.Info("total ids collected", "count", len(ids))
	return ids, nil
}

// nextPage returns the absolute URL of the next listing page, or "" when
// there is none or it was already visited.
func (c *Crawler) nextPage(doc *goquery.Document, pageURL string, visited *VisitedPages) (string, error) {
	href := parser.ExtractNextPageURL(doc)
	if href == "" {
		c.logger.Info("no more pages found, ending pagination")
		return "", nil
	}

	next, err := parser.ResolveNextURL(pageURL, href)
	if err != nil {
		return "", err
	}
	if visited.IsSeen(next) {
		c.logger.Warn("next page already visited, ending pagination", "url", next)
		return "", nil
	}
	return next, nil
}

// ScrapeRecords fetches and extracts the detail page of every id in order.
// Failed ids are logged and skipped. The error is non-nil only when ctx was
// cancelled, in which case the records gathered so far are returned with it.
func (c *Crawler) ScrapeRecords(ctx context.Context, ids []string) ([]*types.Record, error) {
	var records []*types.Record
	maxRecords := c.cfg.Directory.MaxRecords

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		if maxRecords > 0 && len(records) >= maxRecords {
			c.logger.Info("record limit reached", "max_records", maxRecords)
			break
		}
		if i > 0 {
			if err := c.sleeper.Sleep(ctx, fetcher.RandomBetween(c.cfg.Delay.DetailMin, c.cfg.Delay.DetailMax)); err != nil {
				return records, err
			}
		}

		c.logger.Info("scraping record", "id", id, "index", i+1, "total", len(ids))

		rec, err := c.ScrapeRecord(ctx, id)
		if err != nil {
			c.stats.RecordsFailed.Add(1)
			c.logger.Error("failed to scrape record", "id", id, "error", err)
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			continue
		}
		if rec == nil {
			c.stats.RecordsDropped.Add(1)
			continue
		}

		records = append(records, rec)
		c.stats.RecordsScraped.Add(1)
	}

	return records, nil
}

// ScrapeRecord fetches and extracts a single id. A nil record with a nil
// error means the pipeline dropped it.
func (c *Crawler) ScrapeRecord(ctx context.Context, id string) (*types.Record, error) {
	detailURL, err := c.DetailURL(id)
	if err != nil {
		return nil, err
	}

	resp, err := c.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return nil, err
	}

	rec, err := c.extractor.Extract(resp, id)
	if err != nil {
		return nil, err
	}

	if c.pipeline != nil {
		processed, err := c.pipeline.Process(rec)
		if err != nil {
			return nil, err
		}
		if processed == nil {
			c.logger.Warn("pipeline dropped record", "id", id)
			return nil, nil
		}
		rec = processed
	}
	return rec, nil
}

// DetailURL builds the detail page URL for id.
func (c *Crawler) DetailURL(id string) (string, error) {
	path := strings.ReplaceAll(c.cfg.Directory.DetailPath, "{id}", id)
	u, err := parser.ResolveNextURL(c.cfg.Directory.BaseURL, path)
	if err != nil {
		return "", fmt.Errorf("detail url for %q: %w", id, err)
	}
	return u, nil
}

// Run collects ids, scrapes every record and exports them to store. The
// store is always closed. Cancellation still exports what was gathered and
// is reported as the returned error.
func (c *Crawler) Run(ctx context.Context, store Storage) error {
	c.stats.StartTime = time.Now()
	c.logger.Info("crawl starting",
		"listing_url", c.cfg.Directory.ListingURL,
		"max_pages", c.cfg.Directory.MaxPages,
		"max_records", c.cfg.Directory.MaxRecords,
	)

	ids, runErr := c.CollectIDs(ctx)
	var records []*types.Record
	if runErr == nil {
		records, runErr = c.ScrapeRecords(ctx, ids)
	}
	if runErr != nil {
		c.logger.Warn("crawl interrupted, exporting gathered records", "records", len(records), "error", runErr)
	}

	storeErr := store.Store(records)
	closeErr := store.Close()

	c.logger.Info("crawl finished", "stats", c.Snapshot())

	if storeErr != nil {
		return fmt.Errorf("store records: %w", storeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("export records: %w", closeErr)
	}
	return runErr
}
