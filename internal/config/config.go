// Package config defines the top-level configuration for the esports
// arbitrage engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ESARB_* environment variables.
type Config struct {
	Trading  TradingConfig  `toml:"trading"`
	Risk     RiskConfig     `toml:"risk"`
	Engine   EngineConfig   `toml:"engine"`
	Venue    VenueConfig    `toml:"venue"`
	Feeds    FeedsConfig    `toml:"feeds"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	Log      LogConfig      `toml:"log"`
	Mode     string         `toml:"mode"`
}

// TradingConfig holds position-sizing and exit parameters. Percentage fields
// are fractions (0.10 = 10%).
type TradingConfig struct {
	InitialCapital         float64 `toml:"initial_capital"`
	MaxPositionSizePct     float64 `toml:"max_position_size_pct"`
	MinEdgeThreshold       float64 `toml:"min_edge_threshold"`
	MaxSlippage            float64 `toml:"max_slippage"`
	StopLossPct            float64 `toml:"stop_loss_pct"`
	TakeProfitPct          float64 `toml:"take_profit_pct"`
	MaxConcurrentPositions int     `toml:"max_concurrent_positions"`
}

// RiskConfig holds portfolio-level kill-switch parameters.
type RiskConfig struct {
	DailyLossLimitPct float64  `toml:"daily_loss_limit_pct"`
	MaxDrawdownPct    float64  `toml:"max_drawdown_pct"`
	LossCooldown      duration `toml:"loss_cooldown"`
}

// EngineConfig holds the cadence of the engine's background loops.
type EngineConfig struct {
	DiscoveryInterval   duration `toml:"discovery_interval"`
	MonitorInterval     duration `toml:"monitor_interval"`
	SupervisionInterval duration `toml:"supervision_interval"`
	MetricsInterval     duration `toml:"metrics_interval"`
	FeedPollInterval    duration `toml:"feed_poll_interval"`
	PaperTrading        bool     `toml:"paper_trading"`
}

// VenueConfig holds Polymarket API endpoints, chain parameters, and trading
// credentials. The private key file is an encrypted keystore; its passphrase
// normally arrives via ESARB_VENUE_KEY_PASSPHRASE rather than the TOML file.
type VenueConfig struct {
	GammaHost      string `toml:"gamma_host"`
	ClobHost       string `toml:"clob_host"`
	WsHost         string `toml:"ws_host"`
	WsEnabled      bool   `toml:"ws_enabled"`
	ChainID        int    `toml:"chain_id"`
	PrivateKeyFile string `toml:"private_key_file"`
	KeyPassphrase  string `toml:"key_passphrase"`
	ApiKey         string `toml:"api_key"`
	ApiSecret      string `toml:"api_secret"`
	ApiPassphrase  string `toml:"api_passphrase"`
}

// FeedsConfig holds API keys for the live game-data providers. An empty key
// disables that provider; OpenDota needs no key and is always available.
type FeedsConfig struct {
	GridApiKey       string `toml:"grid_api_key"`
	LolesportsApiKey string `toml:"lolesports_api_key"`
	OpendotaApiKey   string `toml:"opendota_api_key"`
	PandascoreApiKey string `toml:"pandascore_api_key"`
}

// PostgresConfig holds PostgreSQL connection parameters. Leaving both dsn and
// host empty disables persistence entirely.
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

// RedisConfig holds Redis connection parameters. An empty addr disables the
// Redis-backed caches; in-memory fallbacks keep the core loops running.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds status-API server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	ApiKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds the cold-storage archival schedule and S3 target.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Cron          string   `toml:"cron"`
	RetentionDays int      `toml:"retention_days"`
	S3            S3Config `toml:"s3"`
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

// LogConfig holds logging parameters.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			InitialCapital:         900.0,
			MaxPositionSizePct:     0.10,
			MinEdgeThreshold:       0.02,
			MaxSlippage:            0.01,
			StopLossPct:            0.05,
			TakeProfitPct:          0.10,
			MaxConcurrentPositions: 5,
		},
		Risk: RiskConfig{
			DailyLossLimitPct: 0.15,
			MaxDrawdownPct:    0.25,
			LossCooldown:      duration{30 * time.Second},
		},
		Engine: EngineConfig{
			DiscoveryInterval:   duration{5 * time.Minute},
			MonitorInterval:     duration{30 * time.Second},
			SupervisionInterval: duration{1 * time.Second},
			MetricsInterval:     duration{5 * time.Minute},
			FeedPollInterval:    duration{500 * time.Millisecond},
			PaperTrading:        true,
		},
		Venue: VenueConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com",
			WsEnabled: true,
			ChainID:   137,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "",
			Port:          5432,
			Database:      "esarb",
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
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "position_opened", "position_closed", "daily_summary", "engine_error"},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 * * *",
			RetentionDays: 30,
			S3: S3Config{
				Endpoint:       "http://localhost:9000",
				Region:         "us-east-1",
				Bucket:         "esarb-archive",
				UseSSL:         false,
				ForcePathStyle: true,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Mode: "trade",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"status":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.Log.Level.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats enumerates the accepted values for Config.Log.Format.
var validLogFormats = map[string]bool{
	"json": true,
	"text": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, status, archive)", c.Mode))
	}

	// Log
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log.level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if !validLogFormats[strings.ToLower(c.Log.Format)] {
		errs = append(errs, fmt.Sprintf("unknown log.format %q (valid: json, text)", c.Log.Format))
	}

	// Trading
	if c.Trading.InitialCapital <= 0 {
		errs = append(errs, "trading: initial_capital must be > 0")
	}
	if c.Trading.MaxPositionSizePct <= 0 || c.Trading.MaxPositionSizePct > 1 {
		errs = append(errs, fmt.Sprintf("trading: max_position_size_pct must be in (0, 1], got %g", c.Trading.MaxPositionSizePct))
	}
	if c.Trading.MinEdgeThreshold <= 0 || c.Trading.MinEdgeThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("trading: min_edge_threshold must be in (0, 1), got %g", c.Trading.MinEdgeThreshold))
	}
	if c.Trading.MaxSlippage < 0 || c.Trading.MaxSlippage > 1 {
		errs = append(errs, fmt.Sprintf("trading: max_slippage must be in [0, 1], got %g", c.Trading.MaxSlippage))
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		errs = append(errs, fmt.Sprintf("trading: stop_loss_pct must be in (0, 1), got %g", c.Trading.StopLossPct))
	}
	if c.Trading.TakeProfitPct <= 0 || c.Trading.TakeProfitPct >= 1 {
		errs = append(errs, fmt.Sprintf("trading: take_profit_pct must be in (0, 1), got %g", c.Trading.TakeProfitPct))
	}
	if c.Trading.MaxConcurrentPositions < 1 {
		errs = append(errs, "trading: max_concurrent_positions must be >= 1")
	}

	// Risk
	if c.Risk.DailyLossLimitPct <= 0 || c.Risk.DailyLossLimitPct > 1 {
		errs = append(errs, fmt.Sprintf("risk: daily_loss_limit_pct must be in (0, 1], got %g", c.Risk.DailyLossLimitPct))
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 1 {
		errs = append(errs, fmt.Sprintf("risk: max_drawdown_pct must be in (0, 1], got %g", c.Risk.MaxDrawdownPct))
	}
	if c.Risk.LossCooldown.Duration < 0 {
		errs = append(errs, "risk: loss_cooldown must not be negative")
	}

	// Engine intervals
	if c.Engine.DiscoveryInterval.Duration <= 0 {
		errs = append(errs, "engine: discovery_interval must be > 0")
	}
	if c.Engine.MonitorInterval.Duration <= 0 {
		errs = append(errs, "engine: monitor_interval must be > 0")
	}
	if c.Engine.SupervisionInterval.Duration <= 0 {
		errs = append(errs, "engine: supervision_interval must be > 0")
	}
	if c.Engine.MetricsInterval.Duration <= 0 {
		errs = append(errs, "engine: metrics_interval must be > 0")
	}
	if c.Engine.FeedPollInterval.Duration <= 0 {
		errs = append(errs, "engine: feed_poll_interval must be > 0")
	}

	// Venue endpoints
	if c.Venue.GammaHost == "" {
		errs = append(errs, "venue: gamma_host must not be empty")
	}
	if c.Venue.ClobHost == "" {
		errs = append(errs, "venue: clob_host must not be empty")
	}
	if c.Venue.WsEnabled && c.Venue.WsHost == "" {
		errs = append(errs, "venue: ws_host must not be empty when ws_enabled is true")
	}
	if c.Venue.ChainID <= 0 {
		errs = append(errs, "venue: chain_id must be positive")
	}

	// Venue credentials — live trading needs a signing key; the CLOB API
	// credential triple must be set together or not at all.
	if c.Mode == "trade" && !c.Engine.PaperTrading {
		if c.Venue.PrivateKeyFile == "" {
			errs = append(errs, "venue: private_key_file is required for live trading")
		}
		if c.Venue.PrivateKeyFile != "" && c.Venue.KeyPassphrase == "" {
			errs = append(errs, "venue: key_passphrase is required when private_key_file is set")
		}
	}
	vk := c.Venue.ApiKey != ""
	vs := c.Venue.ApiSecret != ""
	vp := c.Venue.ApiPassphrase != ""
	if vk || vs || vp {
		if !(vk && vs && vp) {
			errs = append(errs, "venue: api_key, api_secret, and api_passphrase must all be set together")
		}
	}

	// Postgres — only validated when persistence is enabled.
	if c.PersistenceEnabled() {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
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
	}

	// Redis — only validated when an addr is configured.
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty when enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.S3.Endpoint == "" {
			errs = append(errs, "archive: s3.endpoint must not be empty when enabled")
		}
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, "archive: s3.bucket must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// PersistenceEnabled reports whether a PostgreSQL target is configured.
func (c *Config) PersistenceEnabled() bool {
	return strings.TrimSpace(c.Postgres.DSN) != "" || c.Postgres.Host != ""
}

// CacheEnabled reports whether a Redis target is configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

// LiveTrading reports whether orders go to the real venue rather than the
// paper simulator.
func (c *Config) LiveTrading() bool {
	return !c.Engine.PaperTrading
}
