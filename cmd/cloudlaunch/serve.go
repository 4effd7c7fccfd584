package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Strob0t/CloudLaunch/internal/adapter/postgres"
	"github.com/Strob0t/CloudLaunch/internal/port/messagequeue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the service: migrations, event subscribers and health endpoint",
	Long: `Applies pending migrations, rebuilds the credentials secret from the
region registry, then consumes run events:

  runs.stuck   restart the run in another region of the same provider
  runs.status  apply status changes reported by the execution layer

The HTTP server only exposes /health.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"secret_backend", cfg.Cloud.SecretBackend,
		"shift_enabled", cfg.Shift.Enabled,
	)

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// A stale or missing secret must not keep the service down.
	if err := a.regions.RefreshCredentialsSecret(ctx); err != nil {
		slog.Error("credentials secret refresh failed", "error", err)
	}

	cancelStuck, err := a.queue.Subscribe(ctx, messagequeue.SubjectRunStuck, a.shifts.HandleStuck)
	if err != nil {
		return fmt.Errorf("stuck subscriber: %w", err)
	}
	defer cancelStuck()

	cancelStatus, err := a.queue.Subscribe(ctx, messagequeue.SubjectRunStatus, a.runs.HandleStatus)
	if err != nil {
		return fmt.Errorf("status subscriber: %w", err)
	}
	defer cancelStatus()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	if err := a.queue.Drain(); err != nil {
		slog.Error("nats drain", "error", err)
	}
	return nil
}
