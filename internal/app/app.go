// Package app wires the venue, stores, controller and HTTP API and runs them
// until the context ends.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"upbot/internal/config"
	"upbot/internal/gateway/notifier"
	"upbot/internal/gateway/upbit"
	"upbot/internal/history"
	"upbot/internal/logger"
	"upbot/internal/trader"
	livehttp "upbot/internal/transport/http/live"
)

var log = logger.For("App")

// App is a built, not yet running, process.
type App struct {
	cfg      *config.Config
	trader   *trader.Controller
	watcher  *config.StrategyWatcher
	history  *history.SQLStore
	notify   *notifier.Queue
	stream   *upbit.TickerStream
	liveHTTP *livehttp.Server
	Summary  *StartupSummary
}

// NewApp builds the application from cfg without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run starts the controller and the HTTP server and blocks until ctx is done
// or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.trader == nil {
		return fmt.Errorf("trader not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.watcher != nil {
		a.watcher.Watch()
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	if a.liveHTTP != nil {
		group.Go(func() error {
			if err := a.liveHTTP.Start(ctx); err != nil {
				return fmt.Errorf("live http server error: %w", err)
			}
			return nil
		})
	}
	if a.stream != nil {
		group.Go(func() error {
			return a.stream.Run(ctx)
		})
	}
	if a.notify != nil {
		group.Go(func() error {
			return a.notify.Run(ctx)
		})
	}
	group.Go(func() error {
		return a.trader.Run(ctx)
	})
	return group.Wait()
}

// Close releases the history database.
func (a *App) Close() {
	if a == nil || a.history == nil {
		return
	}
	if err := a.history.Close(); err != nil {
		log.Warnf("close history: %v", err)
	}
	a.history = nil
}

// Trader exposes the controller, e.g. for test harnesses.
func (a *App) Trader() *trader.Controller {
	if a == nil {
		return nil
	}
	return a.trader
}
