package main

import (
	"context"
	"fmt"

	"github.com/genricoloni/nowpanel/internal/artwork"
	"github.com/genricoloni/nowpanel/internal/config"
	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/genricoloni/nowpanel/internal/engine"
	"github.com/genricoloni/nowpanel/internal/executor"
	"github.com/genricoloni/nowpanel/internal/fetcher"
	"github.com/genricoloni/nowpanel/internal/layout"
	"github.com/genricoloni/nowpanel/internal/monitor"
	"github.com/genricoloni/nowpanel/internal/panel"
	"github.com/genricoloni/nowpanel/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// AppOptions is the daemon dependency graph. The caller supplies config.Path.
var AppOptions = fx.Options(
	fx.Provide(
		newLogger,
		config.NewAppConfig,
		func(cfg *config.AppConfig) domain.Config { return cfg },

		newMonitor,
		fx.Annotate(artwork.NewDeezerSearcherFromConfig, fx.As(new(domain.ArtistSearcher))),
		artwork.NewResolverFromConfig,

		fx.Annotate(fetcher.NewCoverFetcher, fx.As(new(domain.Fetcher))),
		fx.Annotate(processor.NewCoverProcessor, fx.As(new(domain.Processor))),
		fx.Annotate(executor.NewCommandRefresher, fx.As(new(domain.Refresher))),
		panel.NewPanel,
		func(p *panel.Panel) domain.RenderSink { return p },

		layout.NewEngineFromConfig,
		engine.NewReconciler,
	),
	fx.Invoke(registerHooks),
)

// newMonitor picks the snapshot source named in the configuration
func newMonitor(logger *zap.Logger, cfg domain.Config) (domain.Monitor, error) {
	switch cfg.GetSource() {
	case config.SourceMPRIS:
		return monitor.NewMprisMonitor(logger), nil
	case config.SourceStdin:
		return monitor.NewStdinMonitor(logger), nil
	default:
		return nil, fmt.Errorf("unknown snapshot source %q", cfg.GetSource())
	}
}

// registerHooks starts the panel, the reconciler and the monitor in that
// order and stops them in reverse
func registerHooks(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	logger *zap.Logger,
	mon domain.Monitor,
	rec *engine.Reconciler,
	pnl *panel.Panel,
) {
	monCtx, cancelMon := context.WithCancel(context.Background())
	monDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pnl.Start(ctx); err != nil {
				return err
			}
			if err := rec.Start(ctx); err != nil {
				return multierr.Append(err, pnl.Stop(ctx))
			}

			// Monitor.Start blocks for the life of the source
			go func() {
				defer close(monDone)
				if err := mon.Start(monCtx); err != nil {
					logger.Error("Snapshot source failed", zap.Error(err))
					if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
						logger.Error("Failed to request shutdown", zap.Error(err))
					}
				}
			}()

			logger.Info("nowpanel daemon started", zap.String("state", pnl.StatePath()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			cancelMon()

			err := mon.Stop(ctx)
			select {
			case <-monDone:
			case <-ctx.Done():
				err = multierr.Append(err, ctx.Err())
			}

			return multierr.Combine(err, rec.Stop(ctx), pnl.Stop(ctx))
		},
	})
}
