// Package cli holds the certd commands and the wiring they share.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eventcertificates/config"
	"eventcertificates/internal/adapters/certificate"
	"eventcertificates/internal/adapters/email"
	"eventcertificates/internal/domain"
	"eventcertificates/internal/metrics"
	"eventcertificates/internal/notify"
	"eventcertificates/internal/repository/postgres"
	"eventcertificates/internal/scheduler"
	"eventcertificates/internal/services"
	"eventcertificates/internal/timewindow"
)

// App is the wired service graph behind every command.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Policy   *timewindow.Policy
	Registry *prometheus.Registry

	EventRepo    domain.EventRepository
	Events       domain.EventService
	Certificates domain.CertificateService
	OneShots     *scheduler.OneShots
	Recurring    *scheduler.Recurring

	closers []io.Closer
}

// NewApp loads configuration, opens the database and builds the services. Close releases
// everything NewApp acquired.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := config.NewLogger()

	policy, err := timewindow.New(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("certificate schedule: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DBUrl)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Policy:   policy,
		Registry: prometheus.NewRegistry(),
		closers:  []io.Closer{db},
	}
	if err := app.wire(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	renderer, err := certificate.NewRenderer(cfg.Certificates, a.Logger)
	if err != nil {
		return fmt.Errorf("certificate renderer: %w", err)
	}
	mailer, err := email.NewMailer(cfg.Mailer, a.Logger)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}
	sender := services.NewEmailService(mailer, email.NewTemplateRenderer(), a.Logger)

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(a.Registry)

	sink, err := a.notificationSink(ctx)
	if err != nil {
		return err
	}

	a.EventRepo = postgres.NewEventRepository(a.DB)
	participantRepo := postgres.NewParticipantRepository(a.DB)
	templateRepo := postgres.NewCertificateTemplateRepository(a.DB)

	a.Certificates = services.NewCertificateService(
		a.EventRepo, participantRepo, templateRepo,
		renderer, sender, sink, collector, a.Logger, cfg.ContextTimeout,
	)
	a.OneShots = scheduler.NewOneShots(a.Certificates, a.Policy, collector, a.Logger)
	a.Recurring = scheduler.NewRecurring(a.EventRepo, a.Certificates, a.Policy, collector, a.Logger)
	a.Events = services.NewEventService(a.EventRepo, participantRepo, templateRepo, a.OneShots, a.Logger, cfg.ContextTimeout)
	return nil
}

// notificationSink fans out to every configured broker. Outside production notifications
// are also logged.
func (a *App) notificationSink(ctx context.Context) (domain.NotificationSink, error) {
	var sinks []domain.NotificationSink
	if a.Config.Environment != "production" {
		sinks = append(sinks, &notify.LogSink{Logger: a.Logger})
	}
	if url := a.Config.NotifyAMQPURL; url != "" {
		s, err := notify.NewAMQPSink(url, notify.DefaultExchange, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("amqp notifications: %w", err)
		}
		a.closers = append(a.closers, s)
		sinks = append(sinks, s)
	}
	if url := a.Config.NotifyRedisURL; url != "" {
		s, err := notify.NewRedisSink(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("redis notifications: %w", err)
		}
		a.closers = append(a.closers, s)
		sinks = append(sinks, s)
	}
	return notify.Multi(sinks...), nil
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.Logger.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}
