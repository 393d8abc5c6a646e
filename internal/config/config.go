package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

const (
	SyncManual = "manual"
	SyncPoll   = "poll"
	SyncPush   = "push"
)

type Config struct {
	BaseURL        string
	DBFile         string
	HTTPTimeout    time.Duration
	SyncStrategy   string
	PollInterval   time.Duration
	SearchCacheTTL time.Duration
}

func Load() (*Config, error) {
	httpTimeout, err := time.ParseDuration(getEnv("HTTP_TIMEOUT", "15s"))
	if err != nil {
		return nil, err
	}

	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "5s"))
	if err != nil {
		return nil, err
	}

	searchTTL, err := time.ParseDuration(getEnv("SEARCH_CACHE_TTL", "3s"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseURL:        getEnv("CHATPRO_URL", "http://localhost:8080/api"),
		DBFile:         getEnv("CHATPRO_DB", "chatpro.db"),
		HTTPTimeout:    httpTimeout,
		SyncStrategy:   getEnv("SYNC_STRATEGY", SyncManual),
		PollInterval:   pollInterval,
		SearchCacheTTL: searchTTL,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("CHATPRO_URL is required")
	}

	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("CHATPRO_URL is not a valid URL: %w", err)
	}

	switch c.SyncStrategy {
	case SyncManual, SyncPoll, SyncPush:
	default:
		return fmt.Errorf("SYNC_STRATEGY must be one of %q, %q, %q", SyncManual, SyncPoll, SyncPush)
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be greater than 0")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be greater than 0")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
