package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GRIDBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GRIDBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Symbol, "GRIDBOT_ENGINE_SYMBOL")
	setInt(&cfg.Engine.TotalTiers, "GRIDBOT_ENGINE_TOTAL_TIERS")
	setFloat64(&cfg.Engine.BuyIntervalRate, "GRIDBOT_ENGINE_BUY_INTERVAL_RATE")
	setFloat64(&cfg.Engine.SellTargetRate, "GRIDBOT_ENGINE_SELL_TARGET_RATE")
	setFloat64(&cfg.Engine.CapitalPerTier, "GRIDBOT_ENGINE_CAPITAL_PER_TIER")
	setBool(&cfg.Engine.TradeTierOne, "GRIDBOT_ENGINE_TRADE_TIER_ONE")
	setInt(&cfg.Engine.MaxBatchOrders, "GRIDBOT_ENGINE_MAX_BATCH_ORDERS")
	setFloat64(&cfg.Engine.MinPrice, "GRIDBOT_ENGINE_MIN_PRICE")
	setInt64(&cfg.Engine.MaxOrderQty, "GRIDBOT_ENGINE_MAX_ORDER_QTY")
	setFloat64(&cfg.Engine.InitialReferencePrice, "GRIDBOT_ENGINE_INITIAL_REFERENCE_PRICE")
	setFloat64(&cfg.Engine.InitialCash, "GRIDBOT_ENGINE_INITIAL_CASH")

	// ── Trader ──
	setInt(&cfg.Trader.PollRetries, "GRIDBOT_TRADER_POLL_RETRIES")
	setDuration(&cfg.Trader.PollInterval, "GRIDBOT_TRADER_POLL_INTERVAL")
	setDuration(&cfg.Trader.SnapshotInterval, "GRIDBOT_TRADER_SNAPSHOT_INTERVAL")
	setInt(&cfg.Trader.SubmitRateLimit, "GRIDBOT_TRADER_SUBMIT_RATE_LIMIT")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "GRIDBOT_FEED_WS_URL")
	setDuration(&cfg.Feed.ReconnectBackoff, "GRIDBOT_FEED_RECONNECT_BACKOFF")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GRIDBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GRIDBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GRIDBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GRIDBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GRIDBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GRIDBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GRIDBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GRIDBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GRIDBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GRIDBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GRIDBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GRIDBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GRIDBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GRIDBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GRIDBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GRIDBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "GRIDBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GRIDBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "GRIDBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GRIDBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GRIDBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GRIDBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GRIDBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "GRIDBOT_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GRIDBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GRIDBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "GRIDBOT_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GRIDBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GRIDBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GRIDBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GRIDBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "GRIDBOT_MODE")
	setStr(&cfg.LogLevel, "GRIDBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
