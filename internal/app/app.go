// Package app wires config, store, sender and the scheduling pipeline.
package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimealert/internal/config"
	"github.com/hamed0406/uptimealert/internal/notify"
	"github.com/hamed0406/uptimealert/internal/probe"
	"github.com/hamed0406/uptimealert/internal/repo"
	"github.com/hamed0406/uptimealert/internal/repo/memory"
	"github.com/hamed0406/uptimealert/internal/repo/postgres"
	"github.com/hamed0406/uptimealert/internal/repo/sqlite"
	"github.com/hamed0406/uptimealert/internal/scheduler"
)

type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       repo.Store
	Sender      notify.Sender
	Executor    *scheduler.Executor
	Dispatcher  *scheduler.Dispatcher
	Coordinator *scheduler.Coordinator
}

// OpenStore opens the backend named by cfg.DB.Driver.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repo.Store, error) {
	switch cfg.DB.Driver {
	case "sqlite", "":
		return sqlite.Open(cfg.DB.Path, log)
	case "postgres":
		return postgres.New(ctx, cfg.DB.DSN, log)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("app: unknown db driver %q", cfg.DB.Driver)
	}
}

// New opens the store and builds the pipeline. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	sender, err := notify.New(cfg, log)
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}

	exec := scheduler.NewExecutor(log, store, probe.NewHTTPChecker(cfg.Check.Timeout), cfg.Check.Timeout)
	disp := scheduler.NewDispatcher(log, store)
	return &App{
		Config:      cfg,
		Logger:      log,
		Store:       store,
		Sender:      sender,
		Executor:    exec,
		Dispatcher:  disp,
		Coordinator: scheduler.NewCoordinator(exec, disp, scheduler.Settings{
			Sender:      sender,
			RateLimit:   cfg.Alerts.RateLimit(),
			Concurrency: cfg.Check.Concurrency,
		}),
	}, nil
}

// Daemon returns the supervising loop for this app.
func (a *App) Daemon() *scheduler.Daemon {
	return scheduler.NewDaemon(a.Logger, a.Coordinator, a.Store, a.Config)
}

// Close releases the store and whichever sender the coordinator holds,
// which may differ from Sender after a reload.
func (a *App) Close() error {
	return multierr.Append(a.Coordinator.Close(), a.Store.Close())
}
