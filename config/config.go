// Package config provides configuration loading and management for semdiff.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semdiff/classify"
	"github.com/c360studio/semdiff/diff"
	"github.com/c360studio/semdiff/match"
	"github.com/c360studio/semdiff/section"
	"github.com/c360studio/semdiff/verify"
)

// Config represents the complete semdiff configuration
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Segment  section.Config `yaml:"segment"`
	Match    match.Config   `yaml:"match"`
	Diff     diff.Config    `yaml:"diff"`
	Classify ClassifyConfig `yaml:"classify"`
	Verify   verify.Config  `yaml:"verify"`
	Fetch    FetchConfig    `yaml:"fetch"`
	NATS     NATSConfig     `yaml:"nats"`
	Server   ServerConfig   `yaml:"server"`
	Watch    WatchConfig    `yaml:"watch"`
	Batch    BatchConfig    `yaml:"batch"`
}

// ClassifyConfig configures change classification
type ClassifyConfig struct {
	// EditorialMaxChangeRatio is the largest changed-word share still editorial
	EditorialMaxChangeRatio float64 `yaml:"editorial_max_change_ratio"`
	// ReplacementsSubstantive flags any word swap as substantive
	ReplacementsSubstantive bool `yaml:"replacements_substantive"`
	// VocabularyFile points to a YAML vocabulary; it replaces the inline one
	VocabularyFile string `yaml:"vocabulary_file"`
	// Vocabulary is an inline vocabulary; empty classes use built-in defaults
	Vocabulary classify.Vocabulary `yaml:"vocabulary"`
}

// FetchConfig configures remote document retrieval
type FetchConfig struct {
	// Timeout bounds a single download
	Timeout time.Duration `yaml:"timeout"`
	// UserAgent is sent with every request
	UserAgent string `yaml:"user_agent"`
	// MaxBytes rejects documents larger than this
	MaxBytes int64 `yaml:"max_bytes"`
}

// NATSConfig configures result publishing
type NATSConfig struct {
	// URL is the NATS server URL (empty = publishing disabled)
	URL string `yaml:"url"`
	// SubjectPrefix is prepended to ".compare" and ".verify"
	SubjectPrefix string `yaml:"subject_prefix"`
	// Timeout bounds connection and flush
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	// Addr is the listen address
	Addr string `yaml:"addr"`
	// MaxBodyBytes limits request bodies
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// WatchConfig configures the file watcher
type WatchConfig struct {
	// Debounce coalesces bursts of file events
	Debounce time.Duration `yaml:"debounce"`
	// Mode is "compare" or "verify"
	Mode string `yaml:"mode"`
}

// BatchConfig configures multi-document runs
type BatchConfig struct {
	// Workers bounds parallel document pairs
	Workers int `yaml:"workers"`
	// Pattern selects files under the input directories
	Pattern string `yaml:"pattern"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Segment:  section.DefaultConfig(),
		Match:    match.DefaultConfig(),
		Diff:     diff.DefaultConfig(),
		Classify: ClassifyConfig{
			EditorialMaxChangeRatio: classify.DefaultConfig().EditorialMaxChangeRatio,
			ReplacementsSubstantive: classify.DefaultConfig().ReplacementsSubstantive,
		},
		Verify: verify.DefaultConfig(),
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			UserAgent: "semdiff/1.0",
			MaxBytes:  20 << 20,
		},
		NATS: NATSConfig{
			URL:           "", // Disabled
			SubjectPrefix: "semdiff.results",
			Timeout:       5 * time.Second,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 10 << 20,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
			Mode:     "compare",
		},
		Batch: BatchConfig{
			Workers: 4,
			Pattern: "**/*.{md,txt,html,pdf,docx}",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if err := c.Segment.Validate(); err != nil {
		return fmt.Errorf("segment: %w", err)
	}
	if err := c.Match.Validate(); err != nil {
		return fmt.Errorf("match: %w", err)
	}
	if err := c.Diff.Validate(); err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	if r := c.Classify.EditorialMaxChangeRatio; r < 0 || r > 1 {
		return fmt.Errorf("classify.editorial_max_change_ratio must be between 0 and 1")
	}
	if err := c.Verify.Validate(); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be positive")
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required when nats.url is set")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if c.Watch.Mode != "compare" && c.Watch.Mode != "verify" {
		return fmt.Errorf("watch.mode must be compare or verify, got %q", c.Watch.Mode)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be at least 1")
	}
	return nil
}

// ClassifierConfig resolves the classifier configuration, reading the
// vocabulary file when one is configured.
func (c *Config) ClassifierConfig() (classify.Config, error) {
	cfg := classify.Config{
		EditorialMaxChangeRatio: c.Classify.EditorialMaxChangeRatio,
		ReplacementsSubstantive: c.Classify.ReplacementsSubstantive,
		Vocabulary:              c.Classify.Vocabulary,
	}
	if c.Classify.VocabularyFile != "" {
		vocab, err := classify.LoadVocabulary(c.Classify.VocabularyFile)
		if err != nil {
			return classify.Config{}, err
		}
		cfg.Vocabulary = vocab
	}
	return cfg, nil
}

// ParseLevel maps a level name to a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// LoadFromFile loads configuration from a YAML file over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := loadInto(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

// loadInto decodes a YAML file over an existing config, so keys absent from
// the file keep their current values
func loadInto(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values). The CLI merges its flag values this way.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	// Classify
	if other.Classify.EditorialMaxChangeRatio != 0 {
		c.Classify.EditorialMaxChangeRatio = other.Classify.EditorialMaxChangeRatio
	}
	if other.Classify.VocabularyFile != "" {
		c.Classify.VocabularyFile = other.Classify.VocabularyFile
	}

	// Fetch
	if other.Fetch.Timeout != 0 {
		c.Fetch.Timeout = other.Fetch.Timeout
	}
	if other.Fetch.UserAgent != "" {
		c.Fetch.UserAgent = other.Fetch.UserAgent
	}
	if other.Fetch.MaxBytes != 0 {
		c.Fetch.MaxBytes = other.Fetch.MaxBytes
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.SubjectPrefix != "" {
		c.NATS.SubjectPrefix = other.NATS.SubjectPrefix
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.MaxBodyBytes != 0 {
		c.Server.MaxBodyBytes = other.Server.MaxBodyBytes
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.Mode != "" {
		c.Watch.Mode = other.Watch.Mode
	}

	// Batch
	if other.Batch.Workers != 0 {
		c.Batch.Workers = other.Batch.Workers
	}
	if other.Batch.Pattern != "" {
		c.Batch.Pattern = other.Batch.Pattern
	}
}
