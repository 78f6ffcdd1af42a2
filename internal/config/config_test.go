package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "yolo" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"empty symbol", func(c *Config) { c.Engine.Symbol = "" }},
		{"zero tiers", func(c *Config) { c.Engine.TotalTiers = 0 }},
		{"too many tiers", func(c *Config) { c.Engine.TotalTiers = 1000 }},
		{"interval out of range", func(c *Config) { c.Engine.BuyIntervalRate = 1.5 }},
		{"negative cash", func(c *Config) { c.Engine.InitialCash = -1 }},
		{"zero poll retries", func(c *Config) { c.Trader.PollRetries = 0 }},
		{"trade mode without ws url", func(c *Config) { c.Mode = "trade"; c.Feed.WsURL = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "paper"

[engine]
symbol = "ETH-USD"
total_tiers = 20

[trader]
poll_interval = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Symbol != "ETH-USD" {
		t.Errorf("symbol = %q, want ETH-USD", cfg.Engine.Symbol)
	}
	if cfg.Engine.TotalTiers != 20 {
		t.Errorf("total_tiers = %d, want 20", cfg.Engine.TotalTiers)
	}
	if cfg.Trader.PollInterval.Duration != 5*time.Second {
		t.Errorf("poll_interval = %v, want 5s", cfg.Trader.PollInterval.Duration)
	}
	// Untouched fields keep their defaults.
	if cfg.Engine.BuyIntervalRate != 0.005 {
		t.Errorf("buy_interval_rate = %f, want default 0.005", cfg.Engine.BuyIntervalRate)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GRIDBOT_ENGINE_SYMBOL", "SOL-USD")
	t.Setenv("GRIDBOT_ENGINE_TRADE_TIER_ONE", "true")
	t.Setenv("GRIDBOT_TRADER_POLL_INTERVAL", "10s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Engine.Symbol != "SOL-USD" {
		t.Errorf("symbol = %q, want SOL-USD", cfg.Engine.Symbol)
	}
	if !cfg.Engine.TradeTierOne {
		t.Error("trade_tier_one override not applied")
	}
	if cfg.Trader.PollInterval.Duration != 10*time.Second {
		t.Errorf("poll_interval = %v, want 10s", cfg.Trader.PollInterval.Duration)
	}
}
