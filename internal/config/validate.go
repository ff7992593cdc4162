package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := ValidateURL(cfg.Directory.BaseURL); err != nil {
		return fmt.Errorf("directory.base_url: %w", err)
	}
	if err := ValidateURL(cfg.Directory.ListingURL); err != nil {
		return fmt.Errorf("directory.listing_url: %w", err)
	}
	if !strings.Contains(cfg.Directory.DetailPath, "{id}") {
		return fmt.Errorf("directory.detail_path must contain {id}, got %q", cfg.Directory.DetailPath)
	}
	if cfg.Directory.IDLinkPrefix == "" {
		return fmt.Errorf("directory.id_link_prefix must not be empty")
	}
	if cfg.Directory.MaxPages < 0 {
		return fmt.Errorf("directory.max_pages must be >= 0, got %d", cfg.Directory.MaxPages)
	}
	if cfg.Directory.MaxRecords < 0 {
		return fmt.Errorf("directory.max_records must be >= 0, got %d", cfg.Directory.MaxRecords)
	}

	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("fetcher.max_attempts must be >= 1, got %d", cfg.Fetcher.MaxAttempts)
	}
	if cfg.Fetcher.RetryDelay < 0 {
		return fmt.Errorf("fetcher.retry_delay must be >= 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if err := validateRange("delay.listing", cfg.Delay.ListingMin, cfg.Delay.ListingMax); err != nil {
		return err
	}
	if err := validateRange("delay.detail", cfg.Delay.DetailMin, cfg.Delay.DetailMax); err != nil {
		return err
	}

	for i, rule := range cfg.Parser.Rules {
		if rule.Name == "" {
			return fmt.Errorf("parser.rules[%d]: name is required", i)
		}
		switch rule.Type {
		case "", "css", "xpath":
			if rule.Selector == "" {
				return fmt.Errorf("parser.rules[%d] (%s): selector is required", i, rule.Name)
			}
		case "regex":
			if rule.Pattern == "" {
				return fmt.Errorf("parser.rules[%d] (%s): pattern is required", i, rule.Name)
			}
		default:
			return fmt.Errorf("parser.rules[%d] (%s): unknown type %q (valid: css, xpath, regex)", i, rule.Name, rule.Type)
		}
	}

	for i, r := range cfg.Pipeline.Rename {
		if r.From == "" || r.To == "" {
			return fmt.Errorf("pipeline.rename[%d]: from and to are required", i)
		}
		if r.From == "ID" || r.To == "ID" {
			return fmt.Errorf("pipeline.rename[%d]: the ID column cannot be renamed", i)
		}
	}

	validStorageTypes := map[string]bool{
		"xlsx": true, "csv": true, "json": true, "jsonl": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: xlsx, csv, json, jsonl)", cfg.Storage.Type)
	}
	if cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path must not be empty")
	}
	if cfg.Storage.Type == "xlsx" && cfg.Storage.Sheet == "" {
		return fmt.Errorf("storage.sheet must not be empty for xlsx output")
	}
	if cfg.Storage.Mongo.URI != "" {
		if cfg.Storage.Mongo.Database == "" || cfg.Storage.Mongo.Collection == "" {
			return fmt.Errorf("storage.mongo.database and storage.mongo.collection are required when storage.mongo.uri is set")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		return fmt.Errorf("logging.output must be 'stdout' or 'stderr', got %q", cfg.Logging.Output)
	}

	return nil
}

func validateRange(name string, min, max time.Duration) error {
	if min < 0 || max < 0 {
		return fmt.Errorf("%s_min and %s_max must be >= 0", name, name)
	}
	if min > max {
		return fmt.Errorf("%s_min must be <= %s_max", name, name)
	}
	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
