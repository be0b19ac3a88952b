package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADESIM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADESIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "TRADESIM_FEED_URL")
	setStr(&cfg.Feed.Venue, "TRADESIM_FEED_EXCHANGE")
	setStr(&cfg.Feed.Instrument, "TRADESIM_FEED_SYMBOL")
	setDuration(&cfg.Feed.ReconnectBaseDelay, "TRADESIM_FEED_RECONNECT_BASE_DELAY")
	setDuration(&cfg.Feed.ReconnectMaxDelay, "TRADESIM_FEED_RECONNECT_MAX_DELAY")
	setInt(&cfg.Feed.MaxReconnectAttempts, "TRADESIM_FEED_MAX_RECONNECT_ATTEMPTS")
	setDuration(&cfg.Feed.StaleAfter, "TRADESIM_FEED_STALE_AFTER")

	// ── Trade ──
	setFloat64(&cfg.Trade.QuantityUSD, "TRADESIM_TRADE_QUANTITY_USD")
	setFloat64(&cfg.Trade.Volatility, "TRADESIM_TRADE_VOLATILITY")
	setStr(&cfg.Trade.FeeTier, "TRADESIM_TRADE_FEE_TIER")

	// ── Alert ──
	setFloat64(&cfg.Alert.NetCostBps, "TRADESIM_ALERT_NET_COST_BPS")
	setDuration(&cfg.Alert.Cooldown, "TRADESIM_ALERT_COOLDOWN")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADESIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADESIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADESIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADESIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADESIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADESIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADESIM_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BookTTL, "TRADESIM_REDIS_BOOK_TTL")
	setDuration(&cfg.Redis.MetricsTTL, "TRADESIM_REDIS_METRICS_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "TRADESIM_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "TRADESIM_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "TRADESIM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADESIM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADESIM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADESIM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADESIM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADESIM_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADESIM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADESIM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADESIM_POSTGRES_RUN_MIGRATIONS")
	setDuration(&cfg.Postgres.HistoryInterval, "TRADESIM_POSTGRES_HISTORY_INTERVAL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADESIM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADESIM_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADESIM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADESIM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADESIM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADESIM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADESIM_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADESIM_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "TRADESIM_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "TRADESIM_ARCHIVE_RETENTION_DAYS")
	setInt(&cfg.Archive.BatchSize, "TRADESIM_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setInt(&cfg.Server.Port, "TRADESIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADESIM_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "TRADESIM_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "TRADESIM_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRADESIM_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.StatusInterval, "TRADESIM_SERVER_STATUS_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADESIM_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADESIM_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADESIM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADESIM_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.RepeatWindow, "TRADESIM_NOTIFY_REPEAT_WINDOW")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADESIM_MODE")
	setStr(&cfg.LogLevel, "TRADESIM_LOG_LEVEL")
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
