package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ves-rate-watch/internal/alerting"
	"ves-rate-watch/internal/cache"
	"ves-rate-watch/internal/config"
	"ves-rate-watch/internal/engine"
	"ves-rate-watch/internal/fetcher"
	"ves-rate-watch/internal/rates"
	"ves-rate-watch/internal/resolver"
	"ves-rate-watch/internal/scheduler"
	"ves-rate-watch/internal/stale"
	"ves-rate-watch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchers() (fetcher.OfficialRateFetcher, []fetcher.PeerRateFetcher) {
	official := fetcher.NewOfficial(fetcher.OfficialOptions{
		URL:          a.Config.Official.URL,
		USDSelector:  a.Config.Official.USDSelector,
		EURSelector:  a.Config.Official.EURSelector,
		DateSelector: a.Config.Official.DateSelector,
		DateAttr:     a.Config.Official.DateAttr,
		Timeout:      a.Config.Official.RequestTimeout,
		UserAgent:    a.Config.Official.UserAgent,
	}, a.Logger)

	peers := make([]fetcher.PeerRateFetcher, 0, len(a.Config.Peers))
	for _, pc := range a.Config.Peers {
		peers = append(peers, fetcher.NewPeer(fetcher.PeerOptions{
			Name:        pc.Name,
			URL:         pc.URL,
			Method:      pc.Method,
			BuyPayload:  pc.BuyPayload,
			SellPayload: pc.SellPayload,
			Timeout:     pc.RequestTimeout,
			UserAgent:   a.Config.Official.UserAgent,
		}, a.Logger))
	}

	return official, peers
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Notify.Telegram.Enabled {
		cfg := a.Config.Notify.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openCache() (*cache.Cache, error) {
	ttls := cache.TTLs{
		History:   a.Config.Cache.HistoryTTL,
		PeerDaily: a.Config.Cache.PeerDailyTTL,
		Hourly:    a.Config.Cache.HourlyTTL,
	}
	if a.Config.LocalStore.InMemory {
		return cache.OpenInMemory(ttls, a.Logger)
	}
	return cache.Open(a.Config.LocalStore.Path, ttls, a.Logger)
}

// buildEngine wires the full refresh stack. The returned cleanup closes the
// store pool and the local key-value store.
func (a *App) buildEngine(ctx context.Context) (*engine.Engine, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database.dsn is required for the rate engine")
	}

	local, err := a.openCache()
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	tz := a.Config.Location()
	res, err := resolver.New(store, tz, a.Logger)
	if err != nil {
		closeStore()
		local.Close()
		return nil, nil, err
	}

	official, peers := a.newFetchers()
	probe := engine.NewDialProbe(a.Config.Freshness.ProbeAddr, a.Config.Freshness.ProbeTimeout)

	eng := engine.New(engine.Options{
		Debounce:        a.Config.Freshness.Debounce,
		MinAutoInterval: a.Config.Freshness.MinAutoInterval,
	}, official, peers, res, store, store, local, probe, tz, a.Logger)

	cleanup := func() {
		closeStore()
		if err := local.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("close local store")
		}
	}
	return eng, cleanup, nil
}

func (a *App) buildStaleTask(eng *engine.Engine, local *cache.Cache) (*stale.Task, error) {
	windows, err := stale.ParseWindows(a.Config.Notify.Windows)
	if err != nil {
		return nil, err
	}

	var notifier alerting.Notifier
	if a.Config.Notify.Enabled {
		notifier = a.newNotifier()
	}
	return stale.New(eng, local, notifier, windows, a.Config.Location(), a.Logger), nil
}

// Run executes the long-running service: the aligned foreground refresh loop
// plus the cron-registered background staleness check.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the service")
	}
	defer closeStore()

	local, err := a.openCache()
	if err != nil {
		return err
	}
	defer local.Close()

	tz := a.Config.Location()
	res, err := resolver.New(store, tz, a.Logger)
	if err != nil {
		return err
	}

	official, peers := a.newFetchers()
	probe := engine.NewDialProbe(a.Config.Freshness.ProbeAddr, a.Config.Freshness.ProbeTimeout)

	eng := engine.New(engine.Options{
		Debounce:        a.Config.Freshness.Debounce,
		MinAutoInterval: a.Config.Freshness.MinAutoInterval,
	}, official, peers, res, store, store, local, probe, tz, a.Logger)

	task, err := a.buildStaleTask(eng, local)
	if err != nil {
		return err
	}

	registrar := scheduler.NewRegistrar(a.Logger)
	if err := registrar.Register(a.Config.Scheduler.StaleCheckCron, func() {
		status := task.Run(ctx)
		a.Logger.Info().Str("status", string(status)).Msg("stale check finished")
	}); err != nil {
		return err
	}
	registrar.Start()
	defer registrar.Stop()

	loop := scheduler.NewLoop(scheduler.Options{
		Interval:     a.Config.Scheduler.RefreshInterval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	a.Logger.Info().Msg("starting rate engine")
	err = loop.Run(ctx, func(ctx context.Context, _ time.Time) error {
		_, err := eng.Refresh(ctx, false)
		if err != nil && !errors.Is(err, rates.ErrOffline) {
			return fmt.Errorf("background refresh: %w", err)
		}
		if state := eng.ConnectivityState(); state.Offline || state.LastRefreshFailed {
			a.Logger.Warn().
				Bool("offline", state.Offline).
				Bool("refresh_failed", state.LastRefreshFailed).
				Str("last_update", state.LastUpdateLabel).
				Msg("serving cached rates")
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rate engine stopped")
	return nil
}

// RefreshOptions configure the one-shot refresh command.
type RefreshOptions struct {
	Force bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting the official history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SeedOptions configure the bundled dataset load.
type SeedOptions struct {
	DryRun bool
}
