package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"eventcertificates/internal/adapters/auth"
	delivery "eventcertificates/internal/delivery/http"
	"eventcertificates/internal/delivery/http/controllers"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd starts the HTTP API together with the recurring and one-shot triggers.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and certificate scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := NewApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			return serve(ctx, app)
		},
	}
}

func serve(ctx context.Context, app *App) error {
	logger := app.Logger
	if app.Config.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty; every API token will be rejected")
	}

	if err := app.Recurring.Start(); err != nil {
		return fmt.Errorf("start recurring trigger: %w", err)
	}
	restored, err := app.OneShots.Restore(ctx, app.EventRepo)
	if err != nil {
		// The recurring trigger still covers today's events.
		logger.Error("failed to restore one-shot plans", "err", err)
	}
	logger.Info("one-shot plans restored", "count", restored)

	verifier := auth.NewJWTVerifier(app.Config.JWTSecret)
	handler := delivery.NewRouter(delivery.RouterConfig{
		Logger:         logger,
		Verifier:       verifier,
		Events:         controllers.NewEventController(logger, app.Events),
		Certificates:   controllers.NewCertificateController(logger, app.Certificates, app.Events),
		Scheduler:      controllers.NewSchedulerController(logger, app.Recurring, app.OneShots),
		Gatherer:       app.Registry,
		Health:         app.DB.PingContext,
		AllowedOrigins: app.Config.AllowedOrigins,
		CertificateDir: app.Config.Certificates.OutputDir,
	})

	srv := &http.Server{
		Addr:              net.JoinHostPort("", app.Config.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			app.Recurring.Stop(context.Background())
			app.OneShots.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "err", err)
	}
	app.Recurring.Stop(shutdownCtx)
	app.OneShots.Stop()
	logger.Info("stopped")
	return nil
}
