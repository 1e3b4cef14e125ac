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
// built-in defaults, applies ESARB_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ESARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setFloat64(&cfg.Trading.InitialCapital, "ESARB_TRADING_INITIAL_CAPITAL")
	setFloat64(&cfg.Trading.MaxPositionSizePct, "ESARB_TRADING_MAX_POSITION_SIZE_PCT")
	setFloat64(&cfg.Trading.MinEdgeThreshold, "ESARB_TRADING_MIN_EDGE_THRESHOLD")
	setFloat64(&cfg.Trading.MaxSlippage, "ESARB_TRADING_MAX_SLIPPAGE")
	setFloat64(&cfg.Trading.StopLossPct, "ESARB_TRADING_STOP_LOSS_PCT")
	setFloat64(&cfg.Trading.TakeProfitPct, "ESARB_TRADING_TAKE_PROFIT_PCT")
	setInt(&cfg.Trading.MaxConcurrentPositions, "ESARB_TRADING_MAX_CONCURRENT_POSITIONS")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossLimitPct, "ESARB_RISK_DAILY_LOSS_LIMIT_PCT")
	setFloat64(&cfg.Risk.MaxDrawdownPct, "ESARB_RISK_MAX_DRAWDOWN_PCT")
	setDuration(&cfg.Risk.LossCooldown, "ESARB_RISK_LOSS_COOLDOWN")

	// ── Engine ──
	setDuration(&cfg.Engine.DiscoveryInterval, "ESARB_ENGINE_DISCOVERY_INTERVAL")
	setDuration(&cfg.Engine.MonitorInterval, "ESARB_ENGINE_MONITOR_INTERVAL")
	setDuration(&cfg.Engine.SupervisionInterval, "ESARB_ENGINE_SUPERVISION_INTERVAL")
	setDuration(&cfg.Engine.MetricsInterval, "ESARB_ENGINE_METRICS_INTERVAL")
	setDuration(&cfg.Engine.FeedPollInterval, "ESARB_ENGINE_FEED_POLL_INTERVAL")
	setBool(&cfg.Engine.PaperTrading, "ESARB_ENGINE_PAPER_TRADING")

	// ── Venue ──
	setStr(&cfg.Venue.GammaHost, "ESARB_VENUE_GAMMA_HOST")
	setStr(&cfg.Venue.ClobHost, "ESARB_VENUE_CLOB_HOST")
	setStr(&cfg.Venue.WsHost, "ESARB_VENUE_WS_HOST")
	setBool(&cfg.Venue.WsEnabled, "ESARB_VENUE_WS_ENABLED")
	setInt(&cfg.Venue.ChainID, "ESARB_VENUE_CHAIN_ID")
	setStr(&cfg.Venue.PrivateKeyFile, "ESARB_VENUE_PRIVATE_KEY_FILE")
	setStr(&cfg.Venue.KeyPassphrase, "ESARB_VENUE_KEY_PASSPHRASE")
	setStr(&cfg.Venue.ApiKey, "ESARB_VENUE_API_KEY")
	setStr(&cfg.Venue.ApiSecret, "ESARB_VENUE_API_SECRET")
	setStr(&cfg.Venue.ApiPassphrase, "ESARB_VENUE_API_PASSPHRASE")

	// ── Feeds ──
	setStr(&cfg.Feeds.GridApiKey, "ESARB_FEEDS_GRID_API_KEY")
	setStr(&cfg.Feeds.LolesportsApiKey, "ESARB_FEEDS_LOLESPORTS_API_KEY")
	setStr(&cfg.Feeds.OpendotaApiKey, "ESARB_FEEDS_OPENDOTA_API_KEY")
	setStr(&cfg.Feeds.PandascoreApiKey, "ESARB_FEEDS_PANDASCORE_API_KEY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ESARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ESARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ESARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ESARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ESARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ESARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ESARB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ESARB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ESARB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ESARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ESARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ESARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ESARB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ESARB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ESARB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ESARB_REDIS_TLS_ENABLED")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ESARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ESARB_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "ESARB_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ESARB_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ESARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ESARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ESARB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ESARB_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ESARB_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "ESARB_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "ESARB_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.S3.Endpoint, "ESARB_ARCHIVE_S3_ENDPOINT")
	setStr(&cfg.Archive.S3.Region, "ESARB_ARCHIVE_S3_REGION")
	setStr(&cfg.Archive.S3.Bucket, "ESARB_ARCHIVE_S3_BUCKET")
	setStr(&cfg.Archive.S3.AccessKey, "ESARB_ARCHIVE_S3_ACCESS_KEY")
	setStr(&cfg.Archive.S3.SecretKey, "ESARB_ARCHIVE_S3_SECRET_KEY")
	setBool(&cfg.Archive.S3.UseSSL, "ESARB_ARCHIVE_S3_USE_SSL")
	setBool(&cfg.Archive.S3.ForcePathStyle, "ESARB_ARCHIVE_S3_FORCE_PATH_STYLE")

	// ── Top-level ──
	setStr(&cfg.Log.Level, "ESARB_LOG_LEVEL")
	setStr(&cfg.Log.Format, "ESARB_LOG_FORMAT")
	setStr(&cfg.Mode, "ESARB_MODE")
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
