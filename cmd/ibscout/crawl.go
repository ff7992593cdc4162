package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/storage"
)

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the directory and export every school",
		Long: `Follow the listing pages from the configured start URL, scrape each
school's detail page and write the result to the configured output.`,
		Args: cobra.NoArgs,
		RunE: runCrawl,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path")
	cmd.Flags().StringVarP(&outputType, "format", "f", "", "output format: xlsx, csv, json, jsonl")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum listing pages to visit (0 = unlimited)")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "maximum records to scrape (0 = unlimited)")
	cmd.Flags().StringVar(&mongoURI, "mongo-uri", "", "also write records to this MongoDB")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(&cfg.Logging, false)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return crawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// crawl runs the full crawl and prints a summary to out. The output sink is
// opened only once the crawler is built, so a setup failure leaves the
// previous export untouched.
func crawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	crawler, f, err := newCrawler(cfg, logger)
	if err != nil {
		return err
	}
	defer f.Close()

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	start := time.Now()
	err = crawler.Run(ctx, store)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	stats := crawler.Snapshot()
	fmt.Fprintf(out, "\nCrawl finished in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "   Pages:    %v fetched, %v failed\n", stats["pages_fetched"], stats["pages_failed"])
	fmt.Fprintf(out, "   IDs:      %v collected\n", stats["ids_collected"])
	fmt.Fprintf(out, "   Records:  %v scraped, %v failed, %v dropped\n", stats["records_scraped"], stats["records_failed"], stats["records_dropped"])
	fmt.Fprintf(out, "   Output:   %s\n", cfg.Storage.OutputPath)
	if err != nil {
		fmt.Fprintln(out, "   Interrupted: partial results were exported.")
	}

	return nil
}

// idsCmd creates the "ids" subcommand.
func idsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ids",
		Short: "Walk the listing pages and print every school id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(&cfg.Logging, true)

			ctx, cancel := signalContext(logger)
			defer cancel()

			return printIDs(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum listing pages to visit (0 = unlimited)")
	return cmd
}

// printIDs walks the listing pages and writes one id per line. Ids found
// before a cancellation are still printed.
func printIDs(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	crawler, f, err := newCrawler(cfg, logger)
	if err != nil {
		return err
	}
	defer f.Close()

	ids, err := crawler.CollectIDs(ctx)
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
