package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eventcertificates/internal/delivery/http/helpers"
	"eventcertificates/internal/delivery/http/middleware"
	"eventcertificates/internal/domain"
	"eventcertificates/internal/scheduler"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeEventService implements domain.EventService for handler tests.
type fakeEventService struct {
	createEventErr      error
	lastCreateEvent     *domain.Event
	lastTemplateType    string
	getEventErr         error
	lastGetEventOwnerID string
	deleteEventErr      error
	lastDeleteEventID   string
	lastDeleteOwnerID   string
	addParticipantErr   error
	lastParticipant     *domain.Participant
	replanResult        bool
	replanErr           error
	unplanResult        bool
	unplanErr           error
}

func (f *fakeEventService) CreateEvent(ctx context.Context, event *domain.Event, templateType string) error {
	if f.createEventErr != nil {
		return f.createEventErr
	}
	event.ID = "ev-created"
	f.lastCreateEvent = event
	f.lastTemplateType = templateType
	return nil
}

func (f *fakeEventService) GetEvent(ctx context.Context, eventID, ownerID string) (*domain.Event, error) {
	f.lastGetEventOwnerID = ownerID
	if f.getEventErr != nil {
		return nil, f.getEventErr
	}
	return &domain.Event{ID: eventID, OwnerID: ownerID}, nil
}

func (f *fakeEventService) DeleteEvent(ctx context.Context, eventID, ownerID string) error {
	f.lastDeleteEventID = eventID
	f.lastDeleteOwnerID = ownerID
	return f.deleteEventErr
}

func (f *fakeEventService) AddParticipant(ctx context.Context, eventID, ownerID string, p *domain.Participant) error {
	if f.addParticipantErr != nil {
		return f.addParticipantErr
	}
	p.ID = "p-created"
	f.lastParticipant = p
	return nil
}

func (f *fakeEventService) Replan(ctx context.Context, eventID, ownerID string) (bool, error) {
	return f.replanResult, f.replanErr
}

func (f *fakeEventService) Unplan(ctx context.Context, eventID, ownerID string) (bool, error) {
	return f.unplanResult, f.unplanErr
}

// fakeCertificateService implements domain.CertificateService for handler tests.
type fakeCertificateService struct {
	result             *domain.StepResult
	err                error
	status             *domain.CertificateStatus
	statusErr          error
	lastEventID        string
	lastParticipantIDs []string
	calls              []string
}

func (f *fakeCertificateService) Generate(ctx context.Context, eventID string, participantIDs []string) (*domain.StepResult, error) {
	f.calls = append(f.calls, "generate")
	f.lastEventID = eventID
	f.lastParticipantIDs = participantIDs
	return f.result, f.err
}

func (f *fakeCertificateService) Dispatch(ctx context.Context, eventID string) (*domain.StepResult, error) {
	f.calls = append(f.calls, "dispatch")
	f.lastEventID = eventID
	return f.result, f.err
}

func (f *fakeCertificateService) Status(ctx context.Context, eventID string) (*domain.CertificateStatus, error) {
	f.lastEventID = eventID
	return f.status, f.statusErr
}

type fakeRunner struct {
	summary   *scheduler.TriggerSummary
	err       error
	lastPhase scheduler.Phase
	lastSrc   string
	next      map[scheduler.Phase]time.Time
}

func (f *fakeRunner) Run(ctx context.Context, phase scheduler.Phase, source string) (*scheduler.TriggerSummary, error) {
	f.lastPhase, f.lastSrc = phase, source
	return f.summary, f.err
}

func (f *fakeRunner) Next() map[scheduler.Phase]time.Time { return f.next }

type fakePlans struct {
	plans []scheduler.PlanInfo
}

func (f *fakePlans) Pending() []scheduler.PlanInfo { return f.plans }

func withPrincipal(r *http.Request, subject string, roles ...string) *http.Request {
	return r.WithContext(middleware.SetPrincipal(r.Context(), domain.Principal{Subject: subject, Roles: roles}))
}

// decodeEnvelope decodes the response envelope and re-decodes its data into dataOut when non-nil.
func decodeEnvelope(t *testing.T, body io.Reader, dataOut any) helpers.APIResponse {
	t.Helper()
	var envelope helpers.APIResponse
	require.NoError(t, json.NewDecoder(body).Decode(&envelope), "response must be valid JSON envelope")
	if dataOut != nil && envelope.Data != nil {
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, dataOut))
	}
	return envelope
}
