// Package config assembles the run configuration once at startup; every
// component receives the values it needs explicitly instead of consulting
// globals.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/TomerMadmon/md5-cracker/internal/store"
)

// Config represents the application configuration.
type Config struct {
	Input    Input        `yaml:"input"`
	Store    store.Config `yaml:"store"`
	Pipeline Pipeline     `yaml:"pipeline"`
	LogLevel string       `yaml:"log_level"`
}

// Input selects where partition files come from.
type Input struct {
	// Source is "file" or "s3".
	Source string `yaml:"source"`
	// Dir is the partition directory (file source).
	Dir string `yaml:"dir"`
	S3  S3     `yaml:"s3"`
}

// S3 configures the object-storage source.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Pipeline represents pipeline-specific configuration.
type Pipeline struct {
	Concurrency    int    `yaml:"concurrency"`
	BatchSize      int    `yaml:"batch_size"`
	Retries        int    `yaml:"retries"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
	Checkpoint     string `yaml:"checkpoint"`
	FlushEvery     int    `yaml:"flush_every"`
	ResetState     bool   `yaml:"reset_state"`
	ClearStore     bool   `yaml:"clear_store"`
	DryRun         bool   `yaml:"dry_run"`
	ShowProgress   bool   `yaml:"show_progress"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// Load loads configuration from file and command line flags.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Input: Input{
			Source: "file",
			Dir:    "./precomp_data",
		},
		Store: store.Config{
			Backend: store.BackendSQLite,
			Path:    "./md5_phone_map.db",
		},
		Pipeline: Pipeline{
			Concurrency:    4,
			BatchSize:      10000,
			Retries:        3,
			RetryBackoffMs: 100,
			Checkpoint:     "./checkpoint.json",
			FlushEvery:     5,
			ShowProgress:   true,
		},
		LogLevel: "info",
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags.Changed("source") {
		cfg.Input.Source, _ = flags.GetString("source")
	}
	if flags.Changed("input-dir") {
		cfg.Input.Dir, _ = flags.GetString("input-dir")
	}
	if flags.Changed("s3-endpoint") {
		cfg.Input.S3.Endpoint, _ = flags.GetString("s3-endpoint")
	}
	if flags.Changed("s3-access-key") {
		cfg.Input.S3.AccessKey, _ = flags.GetString("s3-access-key")
	}
	if flags.Changed("s3-secret-key") {
		cfg.Input.S3.SecretKey, _ = flags.GetString("s3-secret-key")
	}
	if flags.Changed("s3-secure") {
		cfg.Input.S3.Secure, _ = flags.GetBool("s3-secure")
	}
	if flags.Changed("s3-bucket") {
		cfg.Input.S3.Bucket, _ = flags.GetString("s3-bucket")
	}
	if flags.Changed("s3-prefix") {
		cfg.Input.S3.Prefix, _ = flags.GetString("s3-prefix")
	}

	if flags.Changed("backend") {
		cfg.Store.Backend, _ = flags.GetString("backend")
	}
	if flags.Changed("dsn") {
		cfg.Store.DSN, _ = flags.GetString("dsn")
	}
	if flags.Changed("db-path") {
		cfg.Store.Path, _ = flags.GetString("db-path")
	}

	if flags.Changed("concurrency") {
		cfg.Pipeline.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("batch-size") {
		cfg.Pipeline.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("retries") {
		cfg.Pipeline.Retries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Pipeline.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("checkpoint") {
		cfg.Pipeline.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("flush-every") {
		cfg.Pipeline.FlushEvery, _ = flags.GetInt("flush-every")
	}
	if flags.Changed("reset-state") {
		cfg.Pipeline.ResetState, _ = flags.GetBool("reset-state")
	}
	if flags.Changed("clear-store") {
		cfg.Pipeline.ClearStore, _ = flags.GetBool("clear-store")
	}
	if flags.Changed("dry-run") {
		cfg.Pipeline.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("show-progress") {
		cfg.Pipeline.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("metrics-addr") {
		cfg.Pipeline.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}

	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Input.Source {
	case "file":
		if c.Input.Dir == "" {
			return fmt.Errorf("input directory is required")
		}
	case "s3":
		if c.Input.S3.Endpoint == "" {
			return fmt.Errorf("s3 endpoint is required")
		}
		if c.Input.S3.AccessKey == "" {
			return fmt.Errorf("s3 access key is required")
		}
		if c.Input.S3.SecretKey == "" {
			return fmt.Errorf("s3 secret key is required")
		}
		if c.Input.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown input source %q", c.Input.Source)
	}

	switch c.Store.Backend {
	case store.BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("postgres dsn is required")
		}
	case store.BackendSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Pipeline.Retries <= 0 {
		return fmt.Errorf("retries must be positive")
	}
	if c.Pipeline.Checkpoint == "" {
		return fmt.Errorf("checkpoint path is required")
	}

	return nil
}
