package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blemotor/controller"
	"github.com/srg/blemotor/internal/devicefactory"
	"github.com/srg/blemotor/internal/groutine"
	"github.com/srg/blemotor/internal/tracer"
	"github.com/srg/blemotor/pkg/config"
)

const shutdownTimeout = 5 * time.Second

// app bundles everything a command needs once the config is resolved
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctrl   *controller.Controller

	shutdownTracing func(context.Context) error
}

// loadConfig resolves the config file and applies the global --backend flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
	}
	return cfg, nil
}

// newApp creates the adapter for cfg.Backend and opens a controller on it.
// Spans from the stdout exporter go to traceOut.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, traceOut io.Writer) (*app, error) {
	shutdown, err := tracer.Setup(ctx, cfg.Tracing, traceOut)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	adapter, err := devicefactory.NewAdapter(devicefactory.Options{
		Backend:      cfg.Backend,
		WriteTimeout: cfg.Timing.WriteTimeout,
	}, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	ctrl := controller.New(adapter, controller.OptionsFromConfig(cfg), logger)
	if err := ctrl.Open(ctx); err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:             cfg,
		logger:          logger,
		ctrl:            ctrl,
		shutdownTracing: shutdown,
	}, nil
}

// Close releases the controller and flushes pending spans
func (a *app) Close() {
	if err := a.ctrl.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close controller")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to flush traces")
	}
}

// interruptContext returns a context cancelled on Ctrl+C or SIGTERM.
// The returned stop function must be called to release the signal handler.
func interruptContext(parent context.Context, out io.Writer, what string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	groutine.Go(ctx, "signal-handler", func(ctx context.Context) {
		select {
		case <-sigChan:
			fmt.Fprintf(out, "\nCtrl+C pressed, stopping %s...\n", what)
			cancel()
		case <-ctx.Done():
		}
	})

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
