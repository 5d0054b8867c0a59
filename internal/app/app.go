// Package app wires the medication engine together and runs it.
package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/avelar-dev/medikit/internal/api"
	"github.com/avelar-dev/medikit/internal/backup"
	"github.com/avelar-dev/medikit/internal/channels/telegram"
	"github.com/avelar-dev/medikit/internal/config"
	"github.com/avelar-dev/medikit/internal/ledger"
	"github.com/avelar-dev/medikit/internal/lookup"
	"github.com/avelar-dev/medikit/internal/medication"
	"github.com/avelar-dev/medikit/internal/metrics"
	"github.com/avelar-dev/medikit/internal/notify"
	"github.com/avelar-dev/medikit/internal/reconcile"
	"github.com/avelar-dev/medikit/internal/store"
)

// App holds the wired components.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Repo       *medication.Repository
	Ledger     *ledger.Ledger
	History    *ledger.History
	Reconciler *reconcile.Reconciler
	Lookup     *lookup.Client
	Backup     *backup.Service
	Engine     *notify.PlatformEngine
	Sinks      *notify.MultiSink
	Location   *time.Location
	Version    string
}

// New wires every component short of the HTTP server and the
// Telegram bot, which only the server mode needs.
func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) (*App, error) {
	loc := time.Local
	if cfg.Alerts.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Alerts.Timezone)
		if err != nil {
			logger.Warn("Unknown timezone, using system local", zap.String("timezone", cfg.Alerts.Timezone))
		} else {
			loc = parsed
		}
	}

	m := metrics.New()
	repo := medication.NewRepository(st, logger)

	history, err := ledger.NewHistory(st.DB())
	if err != nil {
		return nil, err
	}
	doseLedger := ledger.New(repo, history, logger, m)

	sinks := notify.NewMultiSink(logger, notify.NewLogSink(logger))
	engine := notify.NewPlatformEngine(sinks, logger, m, loc)
	scheduler := notify.NewScheduler(engine, logger, loc)
	reconciler := reconcile.New(repo, scheduler, logger, m)

	cache, err := lookup.NewCache(st.DB(), time.Duration(cfg.Lookup.CacheTTLHours)*time.Hour)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:     cfg,
		Store:      st,
		Logger:     logger,
		Metrics:    m,
		Repo:       repo,
		Ledger:     doseLedger,
		History:    history,
		Reconciler: reconciler,
		Lookup:     lookup.NewClient(cfg.Lookup, cache, logger, m),
		Backup:     backup.New(repo, logger),
		Engine:     engine,
		Sinks:      sinks,
		Location:   loc,
		Version:    version,
	}, nil
}

// RunServer starts the alert engine, delivery channels and the HTTP
// API, then blocks until SIGINT or SIGTERM.
func (app *App) RunServer() {
	server := api.New(app.Config, api.Deps{
		Repo:       app.Repo,
		Reconciler: app.Reconciler,
		Ledger:     app.Ledger,
		History:    app.History,
		Lookup:     app.Lookup,
		Backup:     app.Backup,
		Metrics:    app.Metrics,
		Location:   app.Location,
	}, app.Logger)
	app.Sinks.Add(server.Hub())

	var bot *telegram.Bot
	if app.Config.Channels.Telegram.Enabled {
		var err error
		bot, err = telegram.NewBot(app.Config.Channels.Telegram, app.Ledger, app.Logger, app.Location)
		if err != nil {
			app.Logger.Error("Failed to create Telegram bot", zap.Error(err))
		} else if bot.Enabled() {
			app.Sinks.Add(bot)
			if err := bot.Start(); err != nil {
				app.Logger.Error("Failed to start Telegram bot", zap.Error(err))
			} else {
				app.Logger.Info("Telegram bot started")
			}
		}
	}

	// Stored handles never survive a restart; re-register alerts for
	// every medication with occurrences before the engine starts firing.
	if err := app.Reconciler.ClearStaleHandles(); err != nil {
		app.Logger.Error("Failed to clear stale alert handles", zap.Error(err))
	}
	if n, err := app.Reconciler.RepairAll(); err != nil {
		app.Logger.Error("Startup alert repair failed", zap.Error(err))
	} else if n > 0 {
		app.Logger.Info("Re-registered alerts after restart", zap.Int("medications", n))
	}
	app.Engine.Start()

	go func() {
		app.Logger.Info("API server listening",
			zap.String("address", app.Config.Server.Address),
			zap.Int("port", app.Config.Server.Port),
		)
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if bot != nil {
		bot.Stop()
	}
	app.Engine.Stop()
	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
}

// Close releases the underlying store. Call it once, after the
// active mode returns.
func (app *App) Close() {
	if err := app.Store.Close(); err != nil {
		app.Logger.Error("Store close error", zap.Error(err))
	}
}
