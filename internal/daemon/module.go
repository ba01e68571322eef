// Package daemon composes the bot instance with fx.
package daemon

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/doska/internal/api"
	"github.com/matheus3301/doska/internal/bot"
	"github.com/matheus3301/doska/internal/bus"
	"github.com/matheus3301/doska/internal/config"
	"github.com/matheus3301/doska/internal/conversation"
	"github.com/matheus3301/doska/internal/expiry"
	"github.com/matheus3301/doska/internal/instance"
	"github.com/matheus3301/doska/internal/lock"
	"github.com/matheus3301/doska/internal/logging"
	"github.com/matheus3301/doska/internal/metrics"
	"github.com/matheus3301/doska/internal/publish"
	"github.com/matheus3301/doska/internal/retraction"
	"github.com/matheus3301/doska/internal/status"
	"github.com/matheus3301/doska/internal/store"
	"github.com/matheus3301/doska/internal/telegram"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance passed to the fx module.
type Params struct {
	Instance   string
	SocketPath string // optional override for testing; empty = use default
	Debug      bool
}

// Module returns the fx module for the daemon.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideAdapter,
			providePlanner,
			provideScheduler,
			providePublisher,
			provideEngine,
			provideDispatcher,
			providePoller,
			provideMetricsServer,
			provideAdmin,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.Instance), p.Instance, p.Debug)
}

func provideConfig(p Params, logger *zap.Logger) (*config.Config, error) {
	path := instance.ConfigPath(p.Instance)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	logger.Info("config loaded",
		zap.String("path", path),
		zap.String("variant", string(cfg.Variant())),
		zap.Int64("feed_chat_id", cfg.Bot.FeedChatID),
	)
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.Instance); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(instance.Dir(p.Instance))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	path := instance.DBPath(p.Instance)
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", path))
	return db, nil
}

func provideAdapter(p Params, cfg *config.Config, logger *zap.Logger) (*telegram.Adapter, error) {
	token, err := config.Token(instance.Dir(p.Instance))
	if err != nil {
		return nil, err
	}
	a, err := telegram.NewAdapter(telegram.Options{
		Token:         token,
		HTTPTimeout:   cfg.Transport.HTTPTimeout.Duration,
		RatePerSecond: cfg.Transport.RatePerSecond,
		Burst:         cfg.Transport.Burst,
	}, logger.Named("telegram"))
	if err != nil {
		return nil, err
	}
	logger.Info("bot authenticated", zap.String("username", a.Self()))
	return a, nil
}

func providePlanner(cfg *config.Config) (*expiry.Planner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return expiry.NewPlanner(loc, cfg.Expiry.Fallback.Duration), nil
}

func provideScheduler(cfg *config.Config, db *store.DB, a *telegram.Adapter, b *bus.Bus, logger *zap.Logger) *retraction.Scheduler {
	return retraction.NewScheduler(db, a, b, logger.Named("retraction"), cfg.Transport.CallTimeout.Duration)
}

func providePublisher(cfg *config.Config, a *telegram.Adapter, planner *expiry.Planner, s *retraction.Scheduler, b *bus.Bus, logger *zap.Logger) *publish.Publisher {
	return publish.NewPublisher(a, planner, s, b, logger.Named("publish"), publish.Options{
		FeedChatID:  cfg.Bot.FeedChatID,
		BotHandle:   cfg.Bot.Handle,
		CallTimeout: cfg.Transport.CallTimeout.Duration,
	})
}

func provideEngine(cfg *config.Config, planner *expiry.Planner, pub *publish.Publisher, logger *zap.Logger) *conversation.Engine {
	return conversation.NewEngine(conversation.Config{
		Variant:    cfg.Variant(),
		Preview:    cfg.Flow.Preview,
		Channel:    cfg.Bot.Channel,
		BotHandle:  cfg.Bot.Handle,
		Presets:    cfg.Routes(),
		Prices:     cfg.Flow.Prices,
		DateDays:   cfg.Flow.DateDays,
		SessionTTL: cfg.Session.TTL.Duration,
		Location:   planner.Location(),
	}, pub, logger.Named("conversation"))
}

func provideDispatcher(cfg *config.Config, engine *conversation.Engine, a *telegram.Adapter, b *bus.Bus, logger *zap.Logger) *bot.Dispatcher {
	return bot.NewDispatcher(engine, a, a, b, logger.Named("dispatch"), bot.Options{
		Channel:     cfg.Bot.Channel,
		CallTimeout: cfg.Transport.CallTimeout.Duration,
	})
}

func providePoller(cfg *config.Config, a *telegram.Adapter, db *store.DB, m *status.Machine, logger *zap.Logger) *telegram.Poller {
	return telegram.NewPoller(a, db, m, logger.Named("poller"), cfg.Transport.PollTimeout)
}

func provideMetricsServer(cfg *config.Config, logger *zap.Logger) *metrics.Server {
	return metrics.NewServer(cfg.Metrics.Addr, logger.Named("metrics"))
}

func provideAdmin(p Params, m *status.Machine, engine *conversation.Engine, d *bot.Dispatcher, s *retraction.Scheduler, db *store.DB, b *bus.Bus) *api.Admin {
	return api.NewAdmin(p.Instance, m, engine, d, s, db, b)
}

type lifecycleDeps struct {
	fx.In

	Server     *Server
	Lock       *lock.Lock
	DB         *store.DB
	Bus        *bus.Bus
	Machine    *status.Machine
	Scheduler  *retraction.Scheduler
	Dispatcher *bot.Dispatcher
	Poller     *telegram.Poller
	Metrics    *metrics.Server
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			_ = d.Machine.Transition(status.Connecting)

			metrics.Watch(runCtx, d.Bus)
			if err := d.Metrics.Start(); err != nil {
				return fmt.Errorf("start metrics server: %w", err)
			}

			// Overdue retractions from a previous run fire here.
			if err := d.Scheduler.Start(ctx); err != nil {
				return fmt.Errorf("start retraction scheduler: %w", err)
			}

			d.Dispatcher.Start()

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				d.Poller.Run(runCtx, d.Dispatcher.Dispatch)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = d.Machine.Transition(status.Stopping)
			cancel()
			wg.Wait()

			d.Dispatcher.Stop()
			d.Scheduler.Stop()
			d.Server.Stop(ctx)
			if err := d.Metrics.Stop(ctx); err != nil {
				d.Logger.Warn("error stopping metrics server", zap.Error(err))
			}
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}
