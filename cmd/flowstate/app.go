package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/flowstate-dev/flowstate/internal/config"
	"github.com/flowstate-dev/flowstate/internal/engine"
	"github.com/flowstate-dev/flowstate/internal/logging"
	"github.com/flowstate-dev/flowstate/internal/taskqueue"
	"github.com/flowstate-dev/flowstate/pkg/actions"
	"github.com/flowstate-dev/flowstate/pkg/api"
	"github.com/flowstate-dev/flowstate/pkg/metrics"
	"github.com/flowstate-dev/flowstate/pkg/tracing"
)

// App carries what every command needs.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Engine *engine.Engine
	Queue  taskqueue.Queue
	Out    io.Writer

	closers []func(context.Context) error
}

// newApp wires logging, observers and storage from cfg. The caller must
// Close the returned App.
func newApp(ctx context.Context, cfg *config.Config, out, logOut io.Writer) (*App, error) {
	logger, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, Out: out}

	observers := []api.Observer{api.NewLoggingObserver(logger)}

	var exporter *metrics.Exporter
	if cfg.Metrics.Enabled {
		exporter = metrics.NewExporter(cfg.Metrics.Addr)
		obs, err := metrics.NewObserver(exporter.Registry())
		if err != nil {
			return nil, err
		}
		observers = append(observers, obs)
	}

	if cfg.Tracing.Enabled {
		tp := tracing.NewProvider(cfg.Tracing.ServiceName, tracing.NewLogExporter(logger))
		observers = append(observers, tracing.NewObserver(tp.Tracer(tracing.InstrumentationName)))
		app.closers = append(app.closers, tp.Shutdown)
	}

	ecfg := engine.Config{
		Executor: cfg.ExecutorOptions(),
		Observer: api.NewCompositeObserver(observers...),
		Logger:   logger,
	}
	ecfg.Executor.Actions = actions.NewRegistry(logger)

	eng, queue, closeStore, err := openEngine(ctx, cfg.Storage, ecfg)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Engine = eng
	app.Queue = queue
	app.closers = append(app.closers, closeStore)

	if exporter != nil {
		exporter.Registry().MustRegister(metrics.NewCacheCollector(eng.Executor().Evaluator()))
		go func() {
			if err := exporter.Start(); err != nil {
				logger.Error("metrics_server_failed", slog.Any("error", err))
			}
		}()
		app.closers = append(app.closers, exporter.Shutdown)
		logger.Info("metrics_listening", slog.String("addr", cfg.Metrics.Addr))
	}
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
