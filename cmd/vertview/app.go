package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aditya/vertview/pkg/documents"
	"github.com/aditya/vertview/pkg/monitoring"
	"github.com/aditya/vertview/pkg/recovery"
	"github.com/aditya/vertview/pkg/rendezvous"
	"github.com/aditya/vertview/pkg/watcher"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runOpen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return launch(ctx, cfg, logger, resolveArgs(args, logger))
}

// launch forwards paths to a running primary, or becomes the primary and runs until ctx ends.
func launch(ctx context.Context, cfg AppConfig, logger *logrus.Logger, paths []string) error {
	metrics := monitoring.NewMetrics(logger)
	socketPath := cfg.SocketPath()

	if forward(ctx, cfg, logger, metrics, paths) {
		return nil
	}

	app, err := NewApplication(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("creating application: %w", err)
	}

	if err := app.becomePrimary(); err != nil {
		app.fileWatcher.Stop()
		// Another instance won the race between our probe and our bind.
		if errors.Is(err, rendezvous.ErrPrimaryRunning) && forward(ctx, cfg, logger, metrics, paths) {
			return nil
		}
		return fmt.Errorf("claiming endpoint %s: %w", socketPath, err)
	}

	return app.Run(ctx, paths)
}

func forward(ctx context.Context, cfg AppConfig, logger *logrus.Logger, metrics *monitoring.Metrics, paths []string) bool {
	if !rendezvous.Forward(ctx, cfg.SocketPath(), paths, cfg.ForwardTimeout) {
		return false
	}
	metrics.IncrementHandoffsForwarded()
	logger.WithField("count", len(paths)).Info("📤 Handed files to the running instance")
	return true
}

// resolveArgs expands and normalizes command-line paths, keeping only existing regular files.
func resolveArgs(args []string, logger *logrus.Logger) []string {
	seen := make(map[string]struct{}, len(args))
	var paths []string
	for _, arg := range args {
		path := documents.NormalizePath(documents.ExpandUser(arg))
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			logger.WithField("path", arg).Warn("Skipping argument that is not an existing file")
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	return paths
}

// Application represents the primary instance with all components.
type Application struct {
	config      AppConfig
	logger      *logrus.Logger
	metrics     *monitoring.Metrics
	fileWatcher *watcher.FileWatcher
	engine      *recovery.Engine
	server      *rendezvous.Server
	monitor     *monitoring.Monitor
}

// NewApplication creates a new application instance with all components.
func NewApplication(cfg AppConfig, logger *logrus.Logger, metrics *monitoring.Metrics) (*Application, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = newLogger(cfg)
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics(logger)
	}

	app := &Application{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
	if err := app.initializeComponents(); err != nil {
		return nil, fmt.Errorf("initializing components: %w", err)
	}
	return app, nil
}

// initializeComponents sets up all application components.
func (app *Application) initializeComponents() error {
	var err error

	app.fileWatcher, err = watcher.NewFileWatcher(watcher.Config{Logger: app.logger})
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	app.engine = recovery.New(documents.PDFOpener{}, app.fileWatcher, recovery.Config{
		SettleDelay: app.config.SettleDelay,
		Logger:      app.logger,
		Metrics:     app.metrics,
		OnUnresolved: func(path string) {
			app.logger.WithField("path", path).Info("Open document's file is gone")
		},
	})

	app.monitor = monitoring.NewMonitor(app.metrics, app.status, app.logger)
	return nil
}

func (app *Application) becomePrimary() error {
	server, err := rendezvous.TryBecomePrimary(app.config.SocketPath(), rendezvous.Config{
		Logger:      app.logger,
		Metrics:     app.metrics,
		ReadTimeout: app.config.ReadTimeout,
	})
	if err != nil {
		return err
	}
	app.server = server
	return nil
}

// Run opens paths and serves until ctx is cancelled. becomePrimary must have succeeded.
func (app *Application) Run(ctx context.Context, paths []string) error {
	if app.server == nil {
		return errors.New("application is not the primary instance")
	}
	if err := app.fileWatcher.Start(); err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}

	app.logger.Infof("🚀 Vertview %s started as primary instance", version)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.engine.Run(gctx, app.fileWatcher.Events())
	})

	g.Go(func() error {
		return app.server.Serve(gctx, func(requested []string) {
			app.openPaths(gctx, requested)
		})
	})

	g.Go(func() error {
		app.drainWatchErrors(gctx)
		return nil
	})

	if app.config.MetricsAddr != "" {
		g.Go(func() error {
			if err := app.monitor.Serve(gctx, app.config.MetricsAddr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if app.config.MetricsInterval > 0 {
		g.Go(func() error {
			app.monitor.LogMetrics(gctx, app.config.MetricsInterval)
			return nil
		})
	}

	g.Go(func() error {
		app.openPaths(gctx, paths)
		return nil
	})

	err := g.Wait()
	app.shutdown()
	return err
}

func (app *Application) openPaths(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	opened, err := app.engine.OpenAll(ctx, paths)
	if err != nil {
		app.logger.WithError(err).Debug("Engine unavailable, open request dropped")
		return
	}
	app.logger.WithFields(logrus.Fields{
		"requested": len(paths),
		"opened":    opened,
	}).Debug("Open request processed")
}

func (app *Application) drainWatchErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-app.fileWatcher.Errors():
			if !ok {
				return
			}
			app.logger.WithError(err).Warn("File watcher error")
		}
	}
}

func (app *Application) status(ctx context.Context) (monitoring.Status, error) {
	stats, err := app.engine.Stats(ctx)
	if err != nil {
		return monitoring.Status{}, err
	}
	status := monitoring.Status{
		Primary:          app.server != nil,
		Endpoint:         app.config.EndpointName,
		TrackedDocuments: stats.Tracked,
		Unresolved:       stats.Unresolved,
		WatchedFiles:     stats.WatchedFiles,
		WatchedDirs:      stats.WatchedDirs,
	}
	return status, nil
}

// shutdown releases the endpoint and stops the native watcher.
func (app *Application) shutdown() {
	app.logger.Info("🛑 Shutting down")
	if app.server != nil {
		if err := app.server.Close(); err != nil {
			app.logger.WithError(err).Warn("Failed to release endpoint")
		}
	}
	if err := app.fileWatcher.Stop(); err != nil {
		app.logger.WithError(err).Warn("Failed to stop file watcher")
	}
}
