package model

import (
	"math"
	"time"
)

// Defaults for the linkage engine.
const (
	DefaultThreshold = 0.15
	DefaultTopK      = 3
)

// Config holds all skylink configuration.
type Config struct {
	Linkage LinkageConfig `yaml:"linkage" mapstructure:"linkage"`
	NASA    NASAConfig    `yaml:"nasa" mapstructure:"nasa"`
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// LinkageConfig tunes the matching engine.
type LinkageConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"` // Minimum fuzzy score, in [0,1]
	TopK      int     `yaml:"top_k" mapstructure:"top_k"`         // Fuzzy candidates kept per observation, >= 1
	Workers   int     `yaml:"workers" mapstructure:"workers"`     // Parallel scoring workers (0 = one per CPU)
	Prefilter bool    `yaml:"prefilter" mapstructure:"prefilter"` // Use the inverted token index when threshold > 0
}

// Validate checks the values the engine cannot run without.
func (c LinkageConfig) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return &ConfigError{Field: "linkage.threshold", Value: c.Threshold, Reason: "must be within [0,1]"}
	}
	if c.TopK < 1 {
		return &ConfigError{Field: "linkage.top_k", Value: c.TopK, Reason: "must be at least 1"}
	}
	if c.Workers < 0 {
		return &ConfigError{Field: "linkage.workers", Value: c.Workers, Reason: "must not be negative"}
	}
	return nil
}

// NASAConfig configures the APOD and NeoWs feeds.
type NASAConfig struct {
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyFile        string  `yaml:"api_key_file,omitempty" mapstructure:"api_key_file"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	ArchiveURL        string  `yaml:"archive_url" mapstructure:"archive_url"`
	UseArchive        bool    `yaml:"use_archive" mapstructure:"use_archive"` // Scrape the APOD HTML archive instead of the API
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	PerDayLimit       int     `yaml:"per_day_limit" mapstructure:"per_day_limit"` // Max observations kept per day (0 = all)
	FetchWorkers      int     `yaml:"fetch_workers" mapstructure:"fetch_workers"`
	WithOrbits        bool    `yaml:"with_orbits" mapstructure:"with_orbits"` // Look up orbital data per object
}

// HTTPConfig holds HTTP client settings
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// OutputConfig controls exported artifacts.
type OutputConfig struct {
	Dir        string   `yaml:"dir" mapstructure:"dir"`
	Formats    []string `yaml:"formats" mapstructure:"formats"` // json, csv, parquet, html
	Verbose    bool     `yaml:"verbose" mapstructure:"verbose"`
	CheckMedia bool     `yaml:"check_media" mapstructure:"check_media"` // HEAD-probe image media URLs
}

// LLMConfig configures the optional narrative summary.
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // "", openai, anthropic, ollama
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	Strict    bool   `yaml:"strict" mapstructure:"strict"`   // Reject narratives citing unknown image ids
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console or json
	File   string `yaml:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Linkage: LinkageConfig{
			Threshold: DefaultThreshold,
			TopK:      DefaultTopK,
			Workers:   0,
			Prefilter: true,
		},
		NASA: NASAConfig{
			BaseURL:           "https://api.nasa.gov",
			ArchiveURL:        "https://apod.nasa.gov/apod",
			RequestsPerSecond: 1,
			Burst:             3,
			PerDayLimit:       25,
			FetchWorkers:      4,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "skylink/0.1 (+https://github.com/ppiankov/skylink)",
			MaxBodyBytes: 8_000_000,
			MaxRetries:   3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".skylink/cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Store: StoreConfig{
			Path: "skylink.db",
		},
		Output: OutputConfig{
			Dir:     "out",
			Formats: []string{"json", "csv"},
		},
		LLM: LLMConfig{
			Timeout:   30,
			Strict:    true,
			MaxTokens: 800,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
