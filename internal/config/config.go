// Package config defines the top-level configuration for the grid trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GRIDBOT_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Trader   TraderConfig   `toml:"trader"`
	Feed     FeedConfig     `toml:"feed"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the allocation engine's startup parameters.
type EngineConfig struct {
	Symbol                string  `toml:"symbol"`
	TotalTiers            int     `toml:"total_tiers"`
	BuyIntervalRate       float64 `toml:"buy_interval_rate"`
	SellTargetRate        float64 `toml:"sell_target_rate"`
	CapitalPerTier        float64 `toml:"capital_per_tier"`
	TradeTierOne          bool    `toml:"trade_tier_one"`
	MaxBatchOrders        int     `toml:"max_batch_orders"`
	MinPrice              float64 `toml:"min_price"`
	MaxOrderQty           int64   `toml:"max_order_qty"`
	InitialReferencePrice float64 `toml:"initial_reference_price"`
	InitialCash           float64 `toml:"initial_cash"`
}

// TraderConfig holds the order-submission and fill-polling parameters.
type TraderConfig struct {
	PollRetries      int      `toml:"poll_retries"`
	PollInterval     duration `toml:"poll_interval"`
	SnapshotInterval duration `toml:"snapshot_interval"`
	SubmitRateLimit  int      `toml:"submit_rate_limit"` // submissions per second
}

// FeedConfig holds the market-data WebSocket parameters.
type FeedConfig struct {
	WsURL            string   `toml:"ws_url"`
	ReconnectBackoff duration `toml:"reconnect_backoff"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the fill
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// ServerConfig holds status HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Port    int    `toml:"port"`
	APIKey  string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Symbol:          "BTC-USD",
			TotalTiers:      40,
			BuyIntervalRate: 0.005,
			SellTargetRate:  0.03,
			CapitalPerTier:  1000,
			TradeTierOne:    false,
			MaxBatchOrders:  5,
			MinPrice:        0.01,
			MaxOrderQty:     1_000_000,
			InitialCash:     40_000,
		},
		Trader: TraderConfig{
			PollRetries:      10,
			PollInterval:     duration{3 * time.Second},
			SnapshotInterval: duration{time.Minute},
			SubmitRateLimit:  5,
		},
		Feed: FeedConfig{
			ReconnectBackoff: duration{2 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "gridbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "gridbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"reference_updated", "order_filled", "trading_suspended", "reconcile_mismatch"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Engine.Symbol == "" {
		errs = append(errs, "engine: symbol must be set")
	}
	if c.Engine.TotalTiers < 1 || c.Engine.TotalTiers > 500 {
		errs = append(errs, fmt.Sprintf("engine: total_tiers %d outside [1, 500]", c.Engine.TotalTiers))
	}
	if c.Engine.BuyIntervalRate <= 0 || c.Engine.BuyIntervalRate >= 1 {
		errs = append(errs, fmt.Sprintf("engine: buy_interval_rate %f outside (0, 1)", c.Engine.BuyIntervalRate))
	}
	if c.Engine.SellTargetRate <= 0 {
		errs = append(errs, "engine: sell_target_rate must be positive")
	}
	if c.Engine.CapitalPerTier <= 0 {
		errs = append(errs, "engine: capital_per_tier must be positive")
	}
	if c.Engine.InitialCash < 0 {
		errs = append(errs, "engine: initial_cash must not be negative")
	}
	if c.Engine.MaxBatchOrders < 1 {
		errs = append(errs, "engine: max_batch_orders must be at least 1")
	}

	if c.Trader.PollRetries < 1 {
		errs = append(errs, "trader: poll_retries must be at least 1")
	}
	if c.Trader.PollInterval.Duration <= 0 {
		errs = append(errs, "trader: poll_interval must be positive")
	}

	if strings.ToLower(c.Mode) == "trade" && c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must be set for mode trade")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
