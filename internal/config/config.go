// Package config defines the top-level configuration for tradesim and
// provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/notify"
	"github.com/alanyoungcy/tradesim/internal/pipeline"
	"github.com/alanyoungcy/tradesim/internal/platform/gomarket"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADESIM_* environment variables.
type Config struct {
	Feed     FeedConfig     `toml:"feed"`
	Trade    TradeConfig    `toml:"trade"`
	Alert    AlertConfig    `toml:"alert"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// FeedConfig describes the order book stream.
type FeedConfig struct {
	URL                  string   `toml:"url"`
	Venue                string   `toml:"exchange"`
	Instrument           string   `toml:"symbol"`
	ReconnectBaseDelay   duration `toml:"reconnect_base_delay"`
	ReconnectMaxDelay    duration `toml:"reconnect_max_delay"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"` // 0 retries forever
	StaleAfter           duration `toml:"stale_after"`
}

// TradeConfig holds the initial trade parameters.
type TradeConfig struct {
	QuantityUSD float64 `toml:"quantity_usd"`
	Volatility  float64 `toml:"volatility"`
	FeeTier     string  `toml:"fee_tier"`
}

// Params converts the section into validated-shape TradeParameters.
func (t TradeConfig) Params() domain.TradeParameters {
	tier, _ := domain.ParseFeeTier(t.FeeTier)
	return domain.TradeParameters{
		QuantityUSD: t.QuantityUSD,
		Volatility:  t.Volatility,
		FeeTier:     tier,
	}
}

// AlertConfig controls the cost_alert notification.
type AlertConfig struct {
	// NetCostBps fires an alert when net cost over notional exceeds it.
	// Zero disables alerts.
	NetCostBps float64  `toml:"net_cost_bps"`
	Cooldown   duration `toml:"cooldown"`
}

// RedisConfig holds Redis connection parameters and cache TTLs.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	BookTTL    duration `toml:"book_ttl"`
	MetricsTTL duration `toml:"metrics_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters for estimate history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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
	// HistoryInterval stores at most one estimate per interval.
	HistoryInterval duration `toml:"history_interval"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls moving aged estimates to S3.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
	BatchSize     int    `toml:"batch_size"`
}

// Retention is the age after which estimates are archived.
func (a ArchiveConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit is requests per RateWindow per client IP; 0 disables it.
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	StatusInterval duration `toml:"status_interval"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// RepeatWindow drops identical notifications sent within it.
	RepeatWindow duration `toml:"repeat_window"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:                  gomarket.DefaultURL,
			Venue:                "OKX",
			Instrument:           "BTC-USDT-SWAP",
			ReconnectBaseDelay:   duration{time.Second},
			ReconnectMaxDelay:    duration{60 * time.Second},
			MaxReconnectAttempts: 5,
			StaleAfter:           duration{10 * time.Second},
		},
		Trade: TradeConfig{
			QuantityUSD: 100,
			Volatility:  0.02,
			FeeTier:     string(domain.FeeTierVIP1),
		},
		Alert: AlertConfig{
			NetCostBps: 0,
			Cooldown:   duration{5 * time.Minute},
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
			BookTTL:    duration{time.Minute},
			MetricsTTL: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Database:        "tradesim",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			RunMigrations:   true,
			HistoryInterval: duration{time.Second},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradesim-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			RetentionDays: 30,
			BatchSize:     5000,
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      0,
			RateWindow:     duration{time.Minute},
			StatusInterval: duration{5 * time.Second},
		},
		Notify: NotifyConfig{
			Events:       []string{notify.EventCostAlert, notify.EventFeedDown},
			RepeatWindow: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Run modes.
const (
	ModeFull     = "full"
	ModeHeadless = "headless"
)

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if mode != ModeFull && mode != ModeHeadless {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, headless)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
		errs = append(errs, fmt.Sprintf("feed: url must be a ws:// or wss:// URL, got %q", c.Feed.URL))
	}
	if c.Feed.Instrument == "" {
		errs = append(errs, "feed: symbol must not be empty")
	}
	if c.Feed.ReconnectBaseDelay.Duration <= 0 {
		errs = append(errs, "feed: reconnect_base_delay must be > 0")
	}
	if c.Feed.ReconnectMaxDelay.Duration < c.Feed.ReconnectBaseDelay.Duration {
		errs = append(errs, "feed: reconnect_max_delay must not be below reconnect_base_delay")
	}
	if c.Feed.MaxReconnectAttempts < 0 {
		errs = append(errs, "feed: max_reconnect_attempts must be >= 0")
	}
	if c.Feed.StaleAfter.Duration <= 0 {
		errs = append(errs, "feed: stale_after must be > 0")
	}

	// Trade
	if err := c.Trade.Params().Validate(); err != nil {
		errs = append(errs, "trade: "+strings.TrimPrefix(err.Error(), domain.ErrInvalidParameters.Error()+": "))
	}
	if _, ok := domain.ParseFeeTier(c.Trade.FeeTier); !ok {
		errs = append(errs, fmt.Sprintf("trade: unknown fee_tier %q (valid: VIP1-VIP5)", c.Trade.FeeTier))
	}

	// Alert
	if c.Alert.NetCostBps < 0 {
		errs = append(errs, "alert: net_cost_bps must be >= 0")
	}

	// Redis
	if mode == ModeFull && !c.Redis.Enabled {
		errs = append(errs, "redis: must be enabled in full mode (the websocket hub reads the signal bus)")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.BookTTL.Duration < 0 || c.Redis.MetricsTTL.Duration < 0 {
			errs = append(errs, "redis: book_ttl and metrics_ttl must be >= 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
		if c.Postgres.HistoryInterval.Duration < 0 {
			errs = append(errs, "postgres: history_interval must be >= 0")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: requires postgres.enabled")
		}
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: endpoint or region must be set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if err := pipeline.ValidateCron(c.Archive.Cron); err != nil {
			errs = append(errs, "archive: "+err.Error())
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Server
	if mode == ModeFull {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}
	if c.Server.StatusInterval.Duration <= 0 {
		errs = append(errs, "server: status_interval must be > 0")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if !knownEvent(ev) {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q (valid: %s)", ev, strings.Join(notify.KnownEvents, ", ")))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config validation failed")

func knownEvent(ev string) bool {
	for _, k := range notify.KnownEvents {
		if ev == k {
			return true
		}
	}
	return false
}
