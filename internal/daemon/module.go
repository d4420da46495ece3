// Package daemon composes the livewired process: config, logging,
// session lock, entity cache, push channels, and the live screens.
package daemon

import (
	"context"
	"time"

	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/config"
	"github.com/mmarins/livewire/internal/conn"
	"github.com/mmarins/livewire/internal/lock"
	"github.com/mmarins/livewire/internal/logging"
	"github.com/mmarins/livewire/internal/rest"
	"github.com/mmarins/livewire/internal/session"
	"github.com/mmarins/livewire/internal/status"
	"github.com/mmarins/livewire/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideREST,
			provideConns,
			provideScreens,
			NewActions,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(logger *zap.Logger) *config.Config {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		logger.Info("no usable config, using defaults", zap.Error(err))
		return config.Default()
	}
	return cfg
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
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
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideREST(cfg *config.Config, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.Endpoints.APIBase, 15*time.Second, logger)
}

// Conns groups the push-channel managers, one per screen family.
type Conns struct {
	Chat *conn.Manager
	Feed *conn.Manager
}

func provideConns(b *bus.Bus, logger *zap.Logger) *Conns {
	return &Conns{
		Chat: conn.NewManager("chat", b, status.NewMachine("chat", b), logger, conn.DefaultSettings()),
		Feed: conn.NewManager("feed", b, status.NewMachine("feed", b), logger, conn.DefaultSettings()),
	}
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, conns *Conns, screens *Screens, actions *Actions, b *bus.Bus, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	var unbind func()
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			screens.Start()
			unbind = actions.Bind(b)

			if !conns.Chat.Connect(cfg.Endpoints.ChatPush) {
				logger.Warn("chat push channel unavailable", zap.String("endpoint", cfg.Endpoints.ChatPush))
			}
			if !conns.Feed.Connect(cfg.Endpoints.FeedPush) {
				logger.Warn("feed push channel unavailable", zap.String("endpoint", cfg.Endpoints.FeedPush))
			}

			ctx := context.Background()
			screens.Conversations.Load(ctx)
			screens.Feed.Load(ctx)
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			if unbind != nil {
				unbind()
			}
			screens.Stop()
			conns.Chat.Disconnect()
			conns.Feed.Disconnect()
			_ = db.Close()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
