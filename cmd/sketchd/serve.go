package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sketchd/internal/config"
	sketchhttp "github.com/fyrsmithlabs/sketchd/internal/http"
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the drawing HTTP API",
	Long: `Serve the drawing HTTP API until interrupted.

Examples:
  # Serve with ~/.config/sketchd/config.yaml
  sketchd serve

  # Offline run without a model
  SKETCHD_ORACLE_PROVIDER=fake sketchd serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runServe(cmd.Context(), cfg)
	},
}

// runServe starts the HTTP server and blocks until ctx is cancelled, then
// shuts down within the configured timeout.
func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	z := a.logger.Underlying()

	opts := []sketchhttp.Option{
		sketchhttp.WithTelemetry(a.telemetry),
		sketchhttp.WithMetrics(sketchhttp.NewHTTPMetrics(a.telemetry.Meter("github.com/fyrsmithlabs/sketchd/internal/http"), z)),
	}
	if a.nc != nil && cfg.NATS.Events {
		opts = append(opts, sketchhttp.WithEvents(a.nc, cfg.NATS.SubjectPrefix))
	}
	srv, err := sketchhttp.NewServer(a.sessions, z, &sketchhttp.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Version: version,
	}, opts...)
	if err != nil {
		a.Close(context.Background())
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		a.logger.Info(ctx, "shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.logger.Warn(shutdownCtx, "http shutdown", zap.Error(serr))
	}
	a.Close(shutdownCtx)

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
