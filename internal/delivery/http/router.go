package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"eventcertificates/internal/delivery/http/controllers"
	"eventcertificates/internal/delivery/http/helpers"
	"eventcertificates/internal/delivery/http/middleware"
	"eventcertificates/internal/domain"
)

// RouterConfig carries everything the router wires together.
type RouterConfig struct {
	Logger         *slog.Logger
	Verifier       domain.TokenVerifier
	Events         *controllers.EventController
	Certificates   *controllers.CertificateController
	Scheduler      *controllers.SchedulerController
	Gatherer       prometheus.Gatherer
	Health         func(ctx context.Context) error
	AllowedOrigins []string
	// CertificateDir, when set, is served read-only under /certificates/.
	CertificateDir string
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(cfg.Verifier, cfg.Logger)
	operator := func(h http.HandlerFunc) http.HandlerFunc {
		return auth(middleware.RequireRole(domain.RoleOperator)(h))
	}

	// Events
	mux.HandleFunc("POST /events", auth(cfg.Events.CreateEvent))
	mux.HandleFunc("DELETE /events/{eventID}", auth(cfg.Events.DeleteEvent))
	mux.HandleFunc("POST /events/{eventID}/participants", auth(cfg.Events.AddParticipant))

	// Certificates
	mux.HandleFunc("GET /events/{eventID}/certificates", auth(cfg.Certificates.Status))
	mux.HandleFunc("POST /events/{eventID}/certificates/generate", auth(cfg.Certificates.Generate))
	mux.HandleFunc("POST /events/{eventID}/certificates/send", auth(cfg.Certificates.Send))
	mux.HandleFunc("POST /events/{eventID}/certificates/schedule", auth(cfg.Events.ScheduleCertificates))
	mux.HandleFunc("DELETE /events/{eventID}/certificates/schedule", auth(cfg.Events.UnscheduleCertificates))

	// Scheduler
	mux.HandleFunc("GET /scheduler", operator(cfg.Scheduler.Status))
	mux.HandleFunc("POST /scheduler/run/{phase}", operator(cfg.Scheduler.Run))

	// Ops
	mux.HandleFunc("GET /healthz", healthz(cfg.Health))
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.CertificateDir != "" {
		mux.Handle("GET /certificates/", http.StripPrefix("/certificates/", http.FileServer(http.Dir(cfg.CertificateDir))))
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return middleware.LoggingMiddleware(cfg.Logger, middleware.CORS(cfg.AllowedOrigins, mux))
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				helpers.WriteJSONError(w, http.StatusServiceUnavailable, helpers.ErrCodeInternalError, "database unavailable")
				return
			}
		}
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
