package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/esportsarb/internal/blob/s3"
	"github.com/alanyoungcy/esportsarb/internal/cache/memory"
	"github.com/alanyoungcy/esportsarb/internal/cache/redis"
	"github.com/alanyoungcy/esportsarb/internal/config"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/notify"
	"github.com/alanyoungcy/esportsarb/internal/pipeline"
	"github.com/alanyoungcy/esportsarb/internal/store/postgres"
)

// Dependencies bundles the infrastructure the modes build on: the
// write-behind stores, the caches, the archival pipeline, and the
// notifier. Trading components (venue, feeds, engine) are constructed
// per-mode in modes.go because only trade mode needs them.
type Dependencies struct {
	// Stores; all nil when persistence is disabled. The core never
	// depends on them for correctness.
	Positions domain.PositionStore
	Trades    domain.TradeStore
	Stats     domain.StatStore
	Audit     domain.AuditStore

	// Caches. Redis-backed when [redis] addr is set, in-process
	// fallbacks otherwise, so the engine runs with no external
	// services at all.
	Prices  domain.PriceCache
	Markets domain.MarketCache
	States  domain.GameStateCache
	Limiter domain.RateLimiter
	Locks   domain.LockManager
	Bus     domain.SignalBus

	// Archiver is non-nil only when [archive] is enabled; it needs
	// both Postgres and S3.
	Archiver *pipeline.Archiver

	Notifier *notify.Notifier
}

// needsPostgres reports whether a mode touches the database at all.
// Status mode reads a running instance over HTTP and stays offline.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "archive":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete infrastructure from the configuration and
// returns it with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// --- PostgreSQL (optional outside archive mode) ---
	var (
		tradeStore *postgres.TradeStore
		auditStore *postgres.AuditStore
	)
	if needsPostgres(mode) && cfg.PersistenceEnabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		tradeStore = postgres.NewTradeStore(pool)
		auditStore = postgres.NewAuditStore(pool)
		deps.Positions = postgres.NewPositionStore(pool)
		deps.Trades = tradeStore
		deps.Stats = postgres.NewStatStore(pool)
		deps.Audit = auditStore
	}
	if mode == "archive" && tradeStore == nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: archive mode requires a postgres target")
	}

	// --- Caches ---
	if cfg.CacheEnabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Prices = redis.NewPriceCache(redisClient)
		deps.Markets = redis.NewMarketCache(redisClient)
		deps.States = redis.NewGameStateCache(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
	} else {
		logger.Info("wire: redis addr empty, using in-process caches")
		deps.Prices = memory.NewPriceCache()
		deps.Markets = memory.NewMarketCache()
		deps.States = memory.NewGameStateCache()
		deps.Limiter = memory.NewRateLimiter()
		deps.Locks = memory.NewLockManager()
		deps.Bus = memory.NewSignalBus()
	}

	// --- Archival (S3 behind the cron scheduler) ---
	if cfg.Archive.Enabled && (mode == "trade" || mode == "archive") {
		if tradeStore == nil || auditStore == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: [archive] requires a postgres target")
		}
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.S3.Endpoint,
			Region:         cfg.Archive.S3.Region,
			Bucket:         cfg.Archive.S3.Bucket,
			AccessKey:      cfg.Archive.S3.AccessKey,
			SecretKey:      cfg.Archive.S3.SecretKey,
			UseSSL:         cfg.Archive.S3.UseSSL,
			ForcePathStyle: cfg.Archive.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		store := s3blob.NewStore(s3Client)
		blobArch := s3blob.NewArchiver(store, store, tradeStore, auditStore, auditStore, logger)
		deps.Archiver = pipeline.NewArchiver(blobArch, cfg.Archive.RetentionDays, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
