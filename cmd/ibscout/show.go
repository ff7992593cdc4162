package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/fetcher"
)

// showCmd creates the "show" subcommand.
func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>...",
		Short: "Scrape the given school ids and print their fields",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(&cfg.Logging, true)

			ctx, cancel := signalContext(logger)
			defer cancel()

			return showRecords(ctx, cfg, logger, cmd.OutOrStdout(), args)
		},
	}
}

// showRecords scrapes each id and renders its fields as a table. Ids that
// fail are logged and skipped.
func showRecords(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer, ids []string) error {
	crawler, f, err := newCrawler(cfg, logger)
	if err != nil {
		return err
	}
	defer f.Close()

	sleeper := fetcher.RealSleeper{}
	for i, id := range ids {
		if i > 0 {
			if err := sleeper.Sleep(ctx, fetcher.RandomBetween(cfg.Delay.DetailMin, cfg.Delay.DetailMax)); err != nil {
				return err
			}
		}

		rec, err := crawler.ScrapeRecord(ctx, id)
		if err != nil {
			logger.Error("failed to scrape record", "id", id, "error", err)
			continue
		}
		if rec == nil {
			logger.Warn("record dropped by pipeline", "id", id)
			continue
		}

		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetTitle(fmt.Sprintf("School %s", id))
		t.AppendHeader(table.Row{"Field", "Value"})
		for _, k := range rec.Keys() {
			t.AppendRow(table.Row{k, rec.GetString(k)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	}
	return nil
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			applyCLIOverrides(cfg)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Key", "Value"})
			for _, row := range configRows(cfg) {
				t.AppendRow(row)
			}
			t.SetStyle(table.StyleRounded)
			t.Render()

			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return nil
		},
	}
}

func configRows(cfg *config.Config) []table.Row {
	mongoURI := "(disabled)"
	if cfg.Storage.Mongo.URI != "" {
		mongoURI = cfg.Storage.Mongo.URI
		if u, err := url.Parse(mongoURI); err == nil {
			mongoURI = u.Redacted()
		}
	}

	rows := []table.Row{
		{"directory.base_url", cfg.Directory.BaseURL},
		{"directory.listing_url", cfg.Directory.ListingURL},
		{"directory.detail_path", cfg.Directory.DetailPath},
		{"directory.id_link_prefix", cfg.Directory.IDLinkPrefix},
		{"directory.max_pages", cfg.Directory.MaxPages},
		{"directory.max_records", cfg.Directory.MaxRecords},
		{"fetcher.type", cfg.Fetcher.Type},
		{"fetcher.request_timeout", cfg.Fetcher.RequestTimeout},
		{"fetcher.max_attempts", cfg.Fetcher.MaxAttempts},
		{"fetcher.retry_delay", cfg.Fetcher.RetryDelay},
		{"fetcher.referer", cfg.Fetcher.Referer},
		{"fetcher.user_agents", fmt.Sprintf("%d configured", len(cfg.Fetcher.UserAgents))},
		{"fetcher.max_body_size", cfg.Fetcher.MaxBodySize},
		{"fetcher.respect_robots_txt", cfg.Fetcher.RespectRobotsTxt},
		{"delay.listing", fmt.Sprintf("%s - %s", cfg.Delay.ListingMin, cfg.Delay.ListingMax)},
		{"delay.detail", fmt.Sprintf("%s - %s", cfg.Delay.DetailMin, cfg.Delay.DetailMax)},
		{"parser.rules", len(cfg.Parser.Rules)},
		{"pipeline.trim", cfg.Pipeline.Trim},
		{"pipeline.columns", strings.Join(cfg.Pipeline.Columns, ", ")},
		{"pipeline.rename", len(cfg.Pipeline.Rename)},
		{"storage.type", cfg.Storage.Type},
		{"storage.output_path", cfg.Storage.OutputPath},
		{"storage.sheet", cfg.Storage.Sheet},
		{"storage.mongo.uri", mongoURI},
		{"logging.level", cfg.Logging.Level},
		{"logging.format", cfg.Logging.Format},
		{"logging.output", cfg.Logging.Output},
	}
	return rows
}
