package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the TOML server configuration. Environment variables override the
// file: DATABASE_URL, ANTHROPIC_API_KEY, CHECKPG_MODEL, CHECKPG_LISTEN_ADDR,
// CHECKPG_SIGNING_KEY, CHECKPG_DOCUMENT_BASE_URL.
type Config struct {
	DatabaseURL     string `toml:"database_url"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	Model           string `toml:"model"`
	ListenAddr      string `toml:"listen_addr"`
	SigningKey      string `toml:"signing_key"`
	DocumentBaseURL string `toml:"document_base_url"`

	MaxConcurrentChecks int     `toml:"max_concurrent_checks"`
	RetryCount          int     `toml:"retry_count"`
	RetryDelaySeconds   int     `toml:"retry_delay_seconds"`
	OverlapFraction     float64 `toml:"overlap_fraction"`
	SignedURLTTLHours   int     `toml:"signed_url_ttl_hours"`
	MaxUploadMegabytes  int64   `toml:"max_upload_megabytes"`
}

// LoadConfig reads a TOML config file and applies environment overrides.
// An empty path skips the file and uses environment values only.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Model:      "claude-3-5-sonnet-20241022",
		ListenAddr: ":8080",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg.DatabaseURL, "DATABASE_URL")
	applyEnv(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	applyEnv(&cfg.Model, "CHECKPG_MODEL")
	applyEnv(&cfg.ListenAddr, "CHECKPG_LISTEN_ADDR")
	applyEnv(&cfg.SigningKey, "CHECKPG_SIGNING_KEY")
	applyEnv(&cfg.DocumentBaseURL, "CHECKPG_DOCUMENT_BASE_URL")

	return cfg, nil
}

func applyEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// ValidateForServe checks the fields the serve command needs.
func (c *Config) ValidateForServe() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (or set DATABASE_URL)")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("anthropic_api_key is required (or set ANTHROPIC_API_KEY)")
	}
	if c.SigningKey == "" {
		return fmt.Errorf("signing_key is required (or set CHECKPG_SIGNING_KEY)")
	}
	if c.DocumentBaseURL == "" {
		return fmt.Errorf("document_base_url is required (or set CHECKPG_DOCUMENT_BASE_URL)")
	}
	return nil
}

// RetryDelay returns the configured retry delay, or zero to use the default.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// SignedURLTTL returns the configured link lifetime, or zero to use the default.
func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLHours) * time.Hour
}
