package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ibscout/internal/config"
	"github.com/IshaanNene/ibscout/internal/engine"
	"github.com/IshaanNene/ibscout/internal/fetcher"
	"github.com/IshaanNene/ibscout/internal/parser"
	"github.com/IshaanNene/ibscout/internal/pipeline"
)

var (
	cfgFile     string
	verbose     bool
	outputPath  string
	outputType  string
	maxPages    int
	maxRecords  int
	fetcherType string
	noDelay     bool
	mongoURI    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ibscout",
		Short: "ibscout: IB school directory scraper",
		Long: `ibscout walks the paginated IB "find a school" directory, visits every
school's detail page and exports the extracted fields as a spreadsheet.

Requests are sequential with randomized pauses between them. Failed
requests are retried a fixed number of times and then skipped.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&fetcherType, "fetcher", "", "fetcher type: http, browser")
	rootCmd.PersistentFlags().BoolVar(&noDelay, "no-delay", false, "disable pauses between requests")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(idsCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ibscout %s\n", config.Version)
		},
	}
}

// loadConfig loads the config file, applies CLI overrides and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyCLIOverrides(cfg)

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if outputType != "" {
		cfg.Storage.Type = strings.ToLower(outputType)
	}
	if maxPages > 0 {
		cfg.Directory.MaxPages = maxPages
	}
	if maxRecords > 0 {
		cfg.Directory.MaxRecords = maxRecords
	}
	if fetcherType != "" {
		cfg.Fetcher.Type = strings.ToLower(fetcherType)
	}
	if noDelay {
		cfg.Delay = config.DelayConfig{}
	}
	if mongoURI != "" {
		cfg.Storage.Mongo.URI = mongoURI
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// setupLogger creates the command logger. When stdout carries command
// output, logs are forced to stderr.
func setupLogger(cfg *config.LoggingConfig, stdoutReserved bool) *slog.Logger {
	return config.NewLogger(cfg, stdoutReserved)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// newCrawler wires fetcher, extractor and pipeline into a crawler. The
// returned fetcher must be closed by the caller.
func newCrawler(cfg *config.Config, logger *slog.Logger) (*engine.Crawler, fetcher.Fetcher, error) {
	f, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create fetcher: %w", err)
	}

	extractor := parser.NewDetailExtractor(cfg.Parser.Rules, logger)
	pipe := pipeline.FromConfig(&cfg.Pipeline, logger)

	return engine.New(cfg, f, extractor, pipe, logger), f, nil
}
