package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BaseURL != "http://localhost:8080/api" {
		t.Errorf("unexpected default base URL: %q", cfg.BaseURL)
	}
	if cfg.SyncStrategy != SyncManual {
		t.Errorf("expected manual sync by default, got %q", cfg.SyncStrategy)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Errorf("unexpected default timeout: %v", cfg.HTTPTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CHATPRO_URL", "http://example.com/api")
	t.Setenv("SYNC_STRATEGY", SyncPoll)
	t.Setenv("POLL_INTERVAL", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "http://example.com/api" {
		t.Errorf("unexpected base URL: %q", cfg.BaseURL)
	}
	if cfg.SyncStrategy != SyncPoll || cfg.PollInterval != 2*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing URL", func(c *Config) { c.BaseURL = "" }, true},
		{"bad strategy", func(c *Config) { c.SyncStrategy = "telepathy" }, true},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, true},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				BaseURL:      "http://localhost:8080/api",
				DBFile:       "x.db",
				HTTPTimeout:  time.Second,
				SyncStrategy: SyncManual,
				PollInterval: time.Second,
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
