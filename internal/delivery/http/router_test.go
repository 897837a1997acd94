package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcertificates/internal/delivery/http/controllers"
	"eventcertificates/internal/domain"
	"eventcertificates/internal/scheduler"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubVerifier map[string]domain.Principal

func (s stubVerifier) Verify(token string) (domain.Principal, error) {
	p, ok := s[token]
	if !ok {
		return domain.Principal{}, errors.New("bad token")
	}
	return p, nil
}

type stubEvents struct{ domain.EventService }

func (stubEvents) GetEvent(ctx context.Context, eventID, ownerID string) (*domain.Event, error) {
	if ownerID != "owner-1" {
		return nil, domain.ErrForbidden
	}
	return &domain.Event{ID: eventID, OwnerID: ownerID}, nil
}

type stubCerts struct{ domain.CertificateService }

func (stubCerts) Dispatch(ctx context.Context, eventID string) (*domain.StepResult, error) {
	return &domain.StepResult{EventID: eventID, Success: true, Status: domain.StatusCompleted}, nil
}

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, phase scheduler.Phase, source string) (*scheduler.TriggerSummary, error) {
	return &scheduler.TriggerSummary{Phase: phase, Source: source}, nil
}

func (stubRunner) Next() map[scheduler.Phase]time.Time { return nil }

func testRouterConfig(health func(context.Context) error) RouterConfig {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "certd_test_total", Help: "test"}))
	events := stubEvents{}
	return RouterConfig{
		Logger: testLogger,
		Verifier: stubVerifier{
			"owner-token": {Subject: "owner-1"},
			"other-token": {Subject: "someone-else"},
			"ops-token":   {Subject: "ops", Roles: []string{domain.RoleOperator}},
		},
		Events:         controllers.NewEventController(testLogger, events),
		Certificates:   controllers.NewCertificateController(testLogger, stubCerts{}, events),
		Scheduler:      controllers.NewSchedulerController(testLogger, stubRunner{}, nil),
		Gatherer:       reg,
		Health:         health,
		AllowedOrigins: []string{"https://app.example.com"},
	}
}

func newTestRouter(health func(context.Context) error) http.Handler {
	return NewRouter(testRouterConfig(health))
}

func TestRouter_Auth(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{name: "no token", method: http.MethodPost, path: "/events/ev-1/certificates/send", wantStatus: http.StatusUnauthorized},
		{name: "bad token", method: http.MethodPost, path: "/events/ev-1/certificates/send", token: "nope", wantStatus: http.StatusUnauthorized},
		{name: "owner sends", method: http.MethodPost, path: "/events/ev-1/certificates/send", token: "owner-token", wantStatus: http.StatusOK},
		{name: "stranger forbidden", method: http.MethodPost, path: "/events/ev-1/certificates/send", token: "other-token", wantStatus: http.StatusForbidden},
		{name: "operator sends any event", method: http.MethodPost, path: "/events/ev-1/certificates/send", token: "ops-token", wantStatus: http.StatusOK},
		{name: "scheduler needs operator", method: http.MethodPost, path: "/scheduler/run/dispatch", token: "owner-token", wantStatus: http.StatusForbidden},
		{name: "operator runs scheduler", method: http.MethodPost, path: "/scheduler/run/dispatch", token: "ops-token", wantStatus: http.StatusOK},
		{name: "operator reads scheduler", method: http.MethodGet, path: "/scheduler", token: "ops-token", wantStatus: http.StatusOK},
		{name: "wrong method", method: http.MethodGet, path: "/events/ev-1/certificates/send", token: "owner-token", wantStatus: http.StatusMethodNotAllowed},
	}
	router := newTestRouter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRouter_Healthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newTestRouter(func(context.Context) error { return nil }).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	})
	t.Run("database down", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newTestRouter(func(context.Context) error { return errors.New("dial tcp: refused") }).
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestRouter_Metrics(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "certd_test_total"))
}

func TestRouter_RequestIDAndCORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(rr, req)

	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_ServesCertificates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ev-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ev-1", "p-1.html"), []byte("<h1>Certificate</h1>"), 0o644))
	cfg := testRouterConfig(nil)
	cfg.CertificateDir = dir
	router := NewRouter(cfg)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/certificates/ev-1/p-1.html", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Certificate")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/certificates/ev-1/missing.html", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
