package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/esportsarb/internal/crypto"
	"github.com/alanyoungcy/esportsarb/internal/detector"
	"github.com/alanyoungcy/esportsarb/internal/domain"
	"github.com/alanyoungcy/esportsarb/internal/engine"
	"github.com/alanyoungcy/esportsarb/internal/executor"
	"github.com/alanyoungcy/esportsarb/internal/feed"
	"github.com/alanyoungcy/esportsarb/internal/matcher"
	"github.com/alanyoungcy/esportsarb/internal/platform/grid"
	"github.com/alanyoungcy/esportsarb/internal/platform/lolesports"
	"github.com/alanyoungcy/esportsarb/internal/platform/opendota"
	"github.com/alanyoungcy/esportsarb/internal/platform/pandascore"
	"github.com/alanyoungcy/esportsarb/internal/platform/paper"
	"github.com/alanyoungcy/esportsarb/internal/platform/polymarket"
	"github.com/alanyoungcy/esportsarb/internal/risk"
	"github.com/alanyoungcy/esportsarb/internal/server"
	"github.com/alanyoungcy/esportsarb/internal/server/handler"
	"github.com/alanyoungcy/esportsarb/internal/server/ws"
	"github.com/alanyoungcy/esportsarb/internal/tracker"
	"github.com/alanyoungcy/esportsarb/internal/winprob"
)

// Live mode holds the leader lock for the whole session; the TTL only
// bounds how long a crashed process blocks its replacement.
const (
	leaderLockKey = "esarb:leader"
	leaderLockTTL = time.Hour
)

// TradeMode builds the trading stack and runs it until the context is
// cancelled or POST /api/stop fires. Engine, price feed, status server,
// and the archival cron all share one errgroup.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	// The stop handler and fatal subsystem errors both cancel this.
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if a.cfg.LiveTrading() {
		unlock, err := deps.Locks.Acquire(ctx, leaderLockKey, leaderLockTTL)
		if err != nil {
			return fmt.Errorf("trade mode: leader lock: %w", err)
		}
		defer unlock()
		a.logger.InfoContext(ctx, "leader lock acquired", slog.String("key", leaderLockKey))
	}

	venue, priceWS, err := a.buildVenue(ctx)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	defer venue.Close()

	providers := a.buildFeeds(deps.Limiter)
	if len(providers) == 0 {
		return fmt.Errorf("trade mode: no game data providers configured")
	}

	models := winprob.NewRegistry()
	models.Register(winprob.NewLoL())
	models.Register(winprob.NewDota())

	agg := feed.NewAggregator(providers, models, a.logger)
	defer agg.Close()

	det := detector.New(a.cfg.Trading, a.logger)

	exec := executor.New(venue, deps.Markets, a.cfg.Trading, a.logger).
		WithBus(deps.Bus).
		WithLimiter(deps.Limiter)
	if deps.Audit != nil {
		exec.WithAudit(deps.Audit)
	}

	// Positions are marked from the stream cache when it is fresh,
	// falling back to REST book reads.
	marks := &markPrices{venue: venue, markets: deps.Markets, prices: deps.Prices}
	track := tracker.New(marks, a.cfg.Trading, a.logger).
		WithBus(deps.Bus).
		WithNotifier(deps.Notifier)
	if deps.Positions != nil && deps.Trades != nil && deps.Stats != nil {
		track.WithStores(deps.Positions, deps.Trades, deps.Stats)
	}
	if deps.Audit != nil {
		track.WithAudit(deps.Audit)
	}

	gates := risk.New(track, a.cfg.Trading, a.cfg.Risk, a.logger)

	eng := engine.New(
		a.cfg.Engine,
		agg,
		venue,
		deps.Markets,
		deps.States,
		matcher.New(a.logger),
		det,
		exec,
		track,
		gates,
		models,
		a.logger,
	).WithBus(deps.Bus).WithNotifier(deps.Notifier)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return eng.Run(gctx)
	})

	if priceWS != nil {
		pf := feed.NewPriceFeed(priceWS, deps.Prices, a.logger)
		g.Go(func() error {
			defer pf.Close()
			if err := pf.Run(gctx); err != nil && gctx.Err() == nil {
				// REST book reads keep prices flowing without the stream.
				a.logger.WarnContext(gctx, "price stream unavailable, continuing on book polls",
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
		g.Go(func() error {
			a.syncPriceSubscriptions(gctx, pf, deps.Markets)
			return nil
		})
	}

	if a.cfg.Server.Enabled {
		a.startServer(gctx, g, deps, eng, det, exec, track, gates, stop)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			err := deps.Archiver.RunCron(gctx, a.cfg.Archive.Cron)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	return nil
}

// StatusMode queries a running instance's status endpoint once and
// prints the snapshot. It is the CLI's "is it alive and making money"
// probe, not a second decision-maker.
func (a *App) StatusMode(ctx context.Context, _ *Dependencies) error {
	url := fmt.Sprintf("http://localhost:%d/api/status", a.cfg.Server.Port)

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("status mode: %w", err)
	}
	if a.cfg.Server.ApiKey != "" {
		req.Header.Set("X-API-Key", a.cfg.Server.ApiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("status mode: no instance reachable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("status mode: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status mode: %s returned %d: %s", url, resp.StatusCode, body)
	}

	var pretty json.RawMessage = body
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		out = body
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// ArchiveMode runs a single archival pass and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: [archive] is not enabled in the configuration")
	}
	return deps.Archiver.Run(ctx)
}

// buildVenue constructs the order venue for the configured mode. Both
// modes read market data from the live venue; paper trading wraps it in
// the fill simulator so order flow never leaves the process. A missing
// or unloadable wallet key in live mode is a fatal configuration error.
func (a *App) buildVenue(ctx context.Context) (domain.Venue, *polymarket.WSClient, error) {
	gamma := polymarket.NewGammaClient(a.cfg.Venue.GammaHost)

	var priceWS *polymarket.WSClient
	if a.cfg.Venue.WsEnabled {
		priceWS = polymarket.NewWSClient(a.cfg.Venue.WsHost)
	}

	if !a.cfg.LiveTrading() {
		clob := polymarket.NewClobClient(a.cfg.Venue.ClobHost, nil, nil)
		data := polymarket.NewVenue(gamma, clob, priceWS)
		return paper.New(data, a.cfg.Trading.InitialCapital, a.logger), priceWS, nil
	}

	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		KeystorePath: a.cfg.Venue.PrivateKeyFile,
		Passphrase:   a.cfg.Venue.KeyPassphrase,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(keyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("wallet signer: %w", err)
	}

	var hmac *crypto.HMACSigner
	if a.cfg.Venue.ApiKey != "" {
		hmac = &crypto.HMACSigner{
			Key:        a.cfg.Venue.ApiKey,
			Secret:     a.cfg.Venue.ApiSecret,
			Passphrase: a.cfg.Venue.ApiPassphrase,
		}
	}

	clob := polymarket.NewClobClient(a.cfg.Venue.ClobHost, signer, hmac)
	if hmac == nil {
		if err := clob.DeriveAPIKey(ctx); err != nil {
			return nil, nil, fmt.Errorf("derive venue api key: %w", err)
		}
	}

	a.logger.Info("live venue ready", slog.String("wallet", signer.Address().Hex()))
	return polymarket.NewVenue(gamma, clob, priceWS), priceWS, nil
}

// buildFeeds assembles the configured providers in priority order:
// GRID, LoL Esports, OpenDota, PandaScore. OpenDota works without a key
// and is always present.
func (a *App) buildFeeds(limiter domain.RateLimiter) []domain.GameFeed {
	var providers []domain.GameFeed
	if key := a.cfg.Feeds.GridApiKey; key != "" {
		providers = append(providers, grid.New(key, a.logger))
	}
	if key := a.cfg.Feeds.LolesportsApiKey; key != "" {
		providers = append(providers, lolesports.New(key, a.logger))
	}
	providers = append(providers, opendota.New(a.cfg.Feeds.OpendotaApiKey, a.logger))
	if key := a.cfg.Feeds.PandascoreApiKey; key != "" {
		providers = append(providers, pandascore.New(key, limiter, a.logger))
	}
	return providers
}

// syncPriceSubscriptions keeps the market-data socket subscribed to the
// outcome tokens of every discovered market. It follows the discovery
// cadence so new markets stream within one refresh.
func (a *App) syncPriceSubscriptions(ctx context.Context, pf *feed.PriceFeed, markets domain.MarketCache) {
	tracked := make(map[string]bool)

	sync := func() {
		var fresh []string
		for _, game := range domain.Games {
			active, err := markets.ListActive(ctx, game)
			if err != nil {
				continue
			}
			for _, m := range active {
				for _, tid := range []string{m.TokenIDYes, m.TokenIDNo} {
					if tid != "" && !tracked[tid] {
						tracked[tid] = true
						fresh = append(fresh, tid)
					}
				}
			}
		}
		if len(fresh) == 0 {
			return
		}
		if err := pf.Track(ctx, fresh); err != nil {
			a.logger.WarnContext(ctx, "price subscription update failed",
				slog.Int("tokens", len(fresh)),
				slog.String("error", err.Error()),
			)
		}
	}

	ticker := time.NewTicker(a.cfg.Engine.DiscoveryInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sync()
		}
	}
}

// startServer registers the status API around the running components
// and adds its goroutines to the group. stop is invoked by POST
// /api/stop to begin graceful shutdown.
func (a *App) startServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	eng *engine.Engine,
	det *detector.Detector,
	exec *executor.Executor,
	track *tracker.Tracker,
	gates *risk.Gates,
	stop func(),
) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      eng.Mode(),
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.ApiKey,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Status:    handler.NewStatusHandler(eng),
			Positions: handler.NewPositionHandler(track),
			Trades:    handler.NewTradeHandler(track),
			Metrics:   handler.NewMetricsHandler(track, exec, det, gates),
			Stop:      handler.NewStopHandler(stop, a.logger),
		},
		hub,
		deps.Limiter,
		a.logger,
	)

	g.Go(func() error {
		err := srv.Start()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// markPrices reads position marks from the streaming price cache when
// both outcome tokens are present, otherwise from the venue's books.
type markPrices struct {
	venue   domain.Venue
	markets domain.MarketCache
	prices  domain.PriceCache
}

func (r *markPrices) MarketPrice(ctx context.Context, marketID string) (float64, float64, error) {
	if m, err := r.markets.Get(ctx, marketID); err == nil && m.TokenIDYes != "" && m.TokenIDNo != "" {
		got, err := r.prices.GetPrices(ctx, []string{m.TokenIDYes, m.TokenIDNo})
		if err == nil {
			yes, okYes := got[m.TokenIDYes]
			no, okNo := got[m.TokenIDNo]
			if okYes && okNo && yes+no > 0 {
				return yes / (yes + no), no / (yes + no), nil
			}
		}
	}
	return r.venue.MarketPrice(ctx, marketID)
}

var _ tracker.PriceSource = (*markPrices)(nil)
