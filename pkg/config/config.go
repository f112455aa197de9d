package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jinzhu/inflection"
	"github.com/joho/godotenv"
)

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "config.yaml"

// Zero-variance policies for feature scaling.
const (
	ZeroVarianceZero = "zero"
	ZeroVarianceSkip = "skip"
	ZeroVarianceFail = "fail"
)

// Config holds all configuration for the catalog pipeline.
// Values come from config.yaml when present, with environment variables
// (including a local .env file) overriding them. Secrets such as the store
// DSN are only read from the environment.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local" validate:"oneof=local development test production"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Entity names the record type; table names are derived from its plural.
	Entity string `yaml:"entity" env:"PIPELINE_ENTITY" env-default:"product" validate:"required,lowercase"`

	Source   SourceConfig   `yaml:"source"`
	Store    StoreConfig    `yaml:"store"`
	Features FeaturesConfig `yaml:"features"`
}

// SourceConfig describes the remote product API.
type SourceConfig struct {
	URL          string        `yaml:"url" env:"SOURCE_URL" env-default:"https://fakestoreapi.com/products" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" env:"SOURCE_TIMEOUT" env-default:"30s" validate:"gt=0"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"SOURCE_MAX_BODY_BYTES" env-default:"33554432" validate:"gt=0"`
	UserAgent    string        `yaml:"user_agent" env:"SOURCE_USER_AGENT" env-default:"catalog-pipeline"`
}

// StoreConfig selects and tunes the relational destination.
type StoreConfig struct {
	Type string `yaml:"type" env:"STORE_TYPE" env-default:"sqlite" validate:"oneof=sqlite postgres sqlserver mysql"`

	// Path is the database file for the sqlite store.
	Path string `yaml:"path" env:"STORE_PATH" env-default:"product_data.db" validate:"required_if=Type sqlite"`

	// DSN is the connection string for server-backed stores.
	DSN string `yaml:"-" env:"STORE_DSN" validate:"required_unless=Type sqlite"` // Secret - not in YAML

	// Atomic commits all tables of a run in a single transaction. Defaults to
	// true in Load; cleanenv would overwrite a YAML false with an env-default.
	Atomic bool `yaml:"atomic" env:"STORE_ATOMIC"`

	WriteTimeout time.Duration `yaml:"write_timeout" env:"STORE_WRITE_TIMEOUT" env-default:"60s" validate:"gt=0"`
	BatchSize    int           `yaml:"batch_size" env:"STORE_BATCH_SIZE" env-default:"200" validate:"gt=0,lte=1000"`

	// RunMigrations creates the pipeline_runs ledger before the first write.
	// Defaults to true in Load, like Atomic.
	RunMigrations bool `yaml:"run_migrations" env:"STORE_RUN_MIGRATIONS"`
}

// FeaturesConfig controls the ML preparation stage.
type FeaturesConfig struct {
	ZeroVariance string `yaml:"zero_variance" env:"FEATURE_ZERO_VARIANCE" env-default:"zero" validate:"oneof=zero skip fail"`

	// Categories fixes the one-hot vocabulary. Empty means batch-relative.
	Categories []string `yaml:"categories" env:"FEATURE_CATEGORIES" env-separator:"," validate:"dive,required"`

	// ManifestPath is where fitted scaling parameters are written. Empty disables it.
	ManifestPath string `yaml:"manifest_path" env:"FEATURE_MANIFEST_PATH" env-default:"feature_manifest.yaml"`
}

// TableNames holds the destination table for each stage.
type TableNames struct {
	Raw         string
	Transformed string
	MLReady     string
}

// Load reads configuration from .env, config.yaml and the environment.
// The version parameter is injected at build time and set on the returned Config.
// A missing config.yaml is not an error; the defaults import the public fakestore catalog into product_data.db.
func Load(version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Version: version,
		Store: StoreConfig{
			Atomic:        true,
			RunMigrations: true,
		},
	}

	if _, err := os.Stat(DefaultConfigFile); err == nil {
		if err := cleanenv.ReadConfig(DefaultConfigFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", DefaultConfigFile, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// normalize trims list entries that came from comma-separated env values.
func (c *Config) normalize() {
	c.Entity = strings.TrimSpace(c.Entity)
	cats := c.Features.Categories[:0]
	for _, cat := range c.Features.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			cats = append(cats, cat)
		}
	}
	c.Features.Categories = cats
}

// Tables returns the stage table names, e.g. raw_products for entity "product".
func (c *Config) Tables() TableNames {
	plural := inflection.Plural(c.Entity)
	return TableNames{
		Raw:         "raw_" + plural,
		Transformed: "transformed_" + plural,
		MLReady:     "ml_ready_" + plural,
	}
}

// IsLocal reports whether human-oriented console logging should be used.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test"
}
