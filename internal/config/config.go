package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// DefaultListingURL is the unfiltered "find an IB school" search.
const DefaultListingURL = "https://www.ibo.org/programmes/find-an-ib-school/?SearchFields.Region=&SearchFields.Country=&SearchFields.Keywords=&SearchFields.Language=&SearchFields.BoardingFacilities=&SearchFields.SchoolGender="

// Config is the root configuration for ibscout.
type Config struct {
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Delay     DelayConfig     `mapstructure:"delay"     yaml:"delay"`
	Parser    ParserConfig    `mapstructure:"parser"    yaml:"parser"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  yaml:"pipeline"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// DirectoryConfig describes the site being crawled.
type DirectoryConfig struct {
	BaseURL      string `mapstructure:"base_url"       yaml:"base_url"`
	ListingURL   string `mapstructure:"listing_url"    yaml:"listing_url"`
	DetailPath   string `mapstructure:"detail_path"    yaml:"detail_path"`
	IDLinkPrefix string `mapstructure:"id_link_prefix" yaml:"id_link_prefix"`
	MaxPages     int    `mapstructure:"max_pages"      yaml:"max_pages"`
	MaxRecords   int    `mapstructure:"max_records"    yaml:"max_records"`
}

// FetcherConfig controls page fetching and retries.
type FetcherConfig struct {
	Type             string        `mapstructure:"type"               yaml:"type"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"    yaml:"request_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts"       yaml:"max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"        yaml:"retry_delay"`
	Referer          string        `mapstructure:"referer"            yaml:"referer"`
	UserAgents       []string      `mapstructure:"user_agents"        yaml:"user_agents"`
	MaxBodySize      int64         `mapstructure:"max_body_size"      yaml:"max_body_size"`
	FollowRedirects  bool          `mapstructure:"follow_redirects"   yaml:"follow_redirects"`
	MaxRedirects     int           `mapstructure:"max_redirects"      yaml:"max_redirects"`
	RespectRobotsTxt bool          `mapstructure:"respect_robots_txt" yaml:"respect_robots_txt"`
	Stealth          bool          `mapstructure:"stealth"            yaml:"stealth"`
}

// DelayConfig holds the jittered pauses between requests.
type DelayConfig struct {
	ListingMin time.Duration `mapstructure:"listing_min" yaml:"listing_min"`
	ListingMax time.Duration `mapstructure:"listing_max" yaml:"listing_max"`
	DetailMin  time.Duration `mapstructure:"detail_min"  yaml:"detail_min"`
	DetailMax  time.Duration `mapstructure:"detail_max"  yaml:"detail_max"`
}

// ParserConfig controls detail page extraction.
type ParserConfig struct {
	Rules []ParseRule `mapstructure:"rules" yaml:"rules"`
}

// ParseRule defines a single extra extraction rule applied to detail pages.
type ParseRule struct {
	Name      string `mapstructure:"name"      yaml:"name"`
	Selector  string `mapstructure:"selector"  yaml:"selector"`
	Type      string `mapstructure:"type"      yaml:"type"` // css, xpath, regex
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
	Pattern   string `mapstructure:"pattern"   yaml:"pattern"`
}

// PipelineConfig controls record post-processing.
type PipelineConfig struct {
	Trim    bool          `mapstructure:"trim"    yaml:"trim"`
	Columns []string      `mapstructure:"columns" yaml:"columns"`
	Rename  []FieldRename `mapstructure:"rename"  yaml:"rename"`
}

// FieldRename maps an extracted field name to an output column name.
// It is a list rather than a map because viper lower-cases map keys.
type FieldRename struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to"   yaml:"to"`
}

// StorageConfig controls the export.
type StorageConfig struct {
	Type       string      `mapstructure:"type"        yaml:"type"`
	OutputPath string      `mapstructure:"output_path" yaml:"output_path"`
	Sheet      string      `mapstructure:"sheet"       yaml:"sheet"`
	Mongo      MongoConfig `mapstructure:"mongo"       yaml:"mongo"`
}

// MongoConfig enables an additional MongoDB sink when URI is set.
type MongoConfig struct {
	URI        string `mapstructure:"uri"        yaml:"uri"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// DefaultConfig returns a Config matching the public IB directory.
func DefaultConfig() *Config {
	return &Config{
		Directory: DirectoryConfig{
			BaseURL:      "https://www.ibo.org",
			ListingURL:   DefaultListingURL,
			DetailPath:   "/school/{id}/",
			IDLinkPrefix: "/school/",
		},
		Fetcher: FetcherConfig{
			Type:           "http",
			RequestTimeout: 30 * time.Second,
			MaxAttempts:    3,
			RetryDelay:     5 * time.Second,
			Referer:        "https://www.ibo.org/",
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			FollowRedirects: true,
			MaxRedirects:    10,
			Stealth:         true,
		},
		Delay: DelayConfig{
			ListingMin: 3 * time.Second,
			ListingMax: 7 * time.Second,
			DetailMin:  2 * time.Second,
			DetailMax:  5 * time.Second,
		},
		Pipeline: PipelineConfig{
			Trim: true,
		},
		Storage: StorageConfig{
			Type:       "xlsx",
			OutputPath: "ib_schools_detailed.xlsx",
			Sheet:      "Sheet1",
			Mongo: MongoConfig{
				Database:   "ibscout",
				Collection: "schools",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}
