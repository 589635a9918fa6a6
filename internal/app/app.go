package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindgrove/tenant-auth-service/internal/config"
	"github.com/mindgrove/tenant-auth-service/internal/observability"
	"github.com/mindgrove/tenant-auth-service/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// App owns the HTTP server and the background sweeper and runs them until
// the parent context is cancelled.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Sweeper       *scheduler.Sweeper
	Observability *observability.Runtime
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, sweeper *scheduler.Sweeper, runtime *observability.Runtime) *App {
	return &App{Config: cfg, Logger: logger, Server: server, Sweeper: sweeper, Observability: runtime}
}

// Run serves HTTP and the sweeper loop until ctx is cancelled, then drains
// the server and flushes observability exporters.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "http server listening", "addr", a.Server.Addr, "env", a.Config.Env)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if a.Sweeper != nil {
		g.Go(func() error {
			if err := a.Sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.Logger.InfoContext(ctx, "shutting down")
	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.Observability != nil {
		if err := a.Observability.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
