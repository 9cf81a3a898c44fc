package config

import (
	"fmt"
	"os"
	"time"

	validator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// APIKeyEnv is consulted when the config leaves api_key empty.
const APIKeyEnv = "COMPANIES_HOUSE_API_KEY"

// DefaultBaseURL is the live Companies House public data API.
const DefaultBaseURL = "https://api.company-information.service.gov.uk"

// Config holds all chmcp configuration.
type Config struct {
	APIKey    string          `yaml:"api_key" validate:"required"`
	BaseURL   string          `yaml:"base_url" validate:"required,url"`
	Timeout   time.Duration   `yaml:"timeout" validate:"gt=0"`
	Listen    string          `yaml:"listen"`
	DBPath    string          `yaml:"db_path"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Usage     UsageConfig     `yaml:"usage"`
	Log       LogConfig       `yaml:"log"`
}

// RateLimitConfig sizes the shared token bucket.
type RateLimitConfig struct {
	Capacity int           `yaml:"capacity" validate:"gt=0"`
	Window   time.Duration `yaml:"window" validate:"gt=0"`
}

// CacheConfig bounds the response cache and sets per-operation freshness.
type CacheConfig struct {
	MaxEntries int       `yaml:"max_entries" validate:"gt=0"`
	TTL        TTLConfig `yaml:"ttl"`
}

// TTLConfig is the freshness window of each operation. A zero TTL disables
// caching for that operation.
type TTLConfig struct {
	SearchCompanies time.Duration `yaml:"search_companies" validate:"gte=0"`
	CompanyProfile  time.Duration `yaml:"company_profile" validate:"gte=0"`
	Officers        time.Duration `yaml:"officers" validate:"gte=0"`
	FilingHistory   time.Duration `yaml:"filing_history" validate:"gte=0"`
	Charges         time.Duration `yaml:"charges" validate:"gte=0"`
	PSC             time.Duration `yaml:"psc" validate:"gte=0"`
	SearchOfficers  time.Duration `yaml:"search_officers" validate:"gte=0"`
}

// UsageConfig controls the SQLite call ledger.
type UsageConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days" validate:"gte=0"`
}

// LogConfig controls logger output. Logs never go to stdout, which carries
// the stdio protocol stream.
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Pretty     bool   `yaml:"pretty"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// Default returns a Config with sensible defaults. APIKey is left empty.
func Default() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
		Listen:  ":8080",
		DBPath:  "chmcp.db",
		RateLimit: RateLimitConfig{
			Capacity: 500,
			Window:   5 * time.Minute,
		},
		Cache: CacheConfig{
			MaxEntries: 1000,
			TTL: TTLConfig{
				SearchCompanies: 5 * time.Minute,
				CompanyProfile:  30 * time.Minute,
				Officers:        10 * time.Minute,
				FilingHistory:   2 * time.Minute,
				Charges:         30 * time.Minute,
				PSC:             30 * time.Minute,
				SearchOfficers:  5 * time.Minute,
			},
		},
		Usage: UsageConfig{
			Enabled:       true,
			RetentionDays: 30,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a YAML config file, expands environment variables and layers it
// over Default. An empty path yields the defaults. The API key falls back to
// the COMPANIES_HOUSE_API_KEY environment variable. Load does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(APIKeyEnv)
	}
	return cfg, nil
}

// Validate checks the config for values the gateway cannot run with.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
