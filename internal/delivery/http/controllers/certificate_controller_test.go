package controllers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"eventcertificates/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateController_StepStatusMapping(t *testing.T) {
	completed := &domain.StepResult{EventID: "ev-1", Success: true, Status: domain.StatusCompleted, Total: 2, Successful: 1, Failed: 1}
	eventMissing := &domain.StepResult{EventID: "ev-1", Status: domain.StatusEventNotFound, Message: "event not found"}
	templateMissing := &domain.StepResult{EventID: "ev-1", Status: domain.StatusTemplateNotFound, Message: "certificate template not found for event"}
	failed := &domain.StepResult{EventID: "ev-1", Status: domain.StatusFailed, Message: "list participants: boom"}

	tests := []struct {
		name       string
		result     *domain.StepResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "completed with partial failure is 200", result: completed, wantStatus: http.StatusOK},
		{name: "event not found is 404", result: eventMissing, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "template not found is 404", result: templateMissing, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "fatal is 500", result: failed, err: errors.New("list participants: boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for _, tt := range tests {
		for _, op := range []string{"generate", "send"} {
			t.Run(op+"/"+tt.name, func(t *testing.T) {
				certs := &fakeCertificateService{result: tt.result, err: tt.err}
				ctrl := NewCertificateController(testLogger, certs, &fakeEventService{})
				req := withPrincipal(httptest.NewRequest(http.MethodPost, "/events/ev-1/certificates/"+op, nil), "owner-1")
				req.SetPathValue("eventID", "ev-1")
				rr := httptest.NewRecorder()

				if op == "generate" {
					ctrl.Generate(rr, req)
				} else {
					ctrl.Send(rr, req)
				}

				require.Equal(t, tt.wantStatus, rr.Code)
				var res domain.StepResult
				envelope := decodeEnvelope(t, rr.Body, &res)
				assert.Equal(t, tt.result.Status, res.Status, "result is always returned")
				if tt.wantCode == "" {
					assert.Nil(t, envelope.Error)
				} else {
					require.NotNil(t, envelope.Error)
					assert.Equal(t, tt.wantCode, envelope.Error.Code)
				}
			})
		}
	}
}

func TestCertificateController_Generate_ParticipantFilter(t *testing.T) {
	certs := &fakeCertificateService{result: &domain.StepResult{Success: true, Status: domain.StatusCompleted}}
	ctrl := NewCertificateController(testLogger, certs, &fakeEventService{})
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/events/ev-1/certificates/generate",
		bytes.NewBufferString(`{"participant_ids":[" p-1 ","p-2","p-1",""]}`)), "owner-1")
	req.SetPathValue("eventID", "ev-1")
	rr := httptest.NewRecorder()

	ctrl.Generate(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"p-1", "p-2"}, certs.lastParticipantIDs, "trimmed and deduplicated")
	assert.Equal(t, "ev-1", certs.lastEventID)
}

func TestCertificateController_Generate_EmptyFilterRejected(t *testing.T) {
	certs := &fakeCertificateService{result: &domain.StepResult{Success: true, Status: domain.StatusCompleted}}
	ctrl := NewCertificateController(testLogger, certs, &fakeEventService{})
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/events/ev-1/certificates/generate",
		bytes.NewBufferString(`{"participant_ids":["  "]}`)), "owner-1")
	req.SetPathValue("eventID", "ev-1")
	rr := httptest.NewRecorder()

	ctrl.Generate(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "participant_ids")
	assert.Empty(t, certs.calls)
}

func TestCertificateController_Authorization(t *testing.T) {
	tests := []struct {
		name       string
		roles      []string
		ownerErr   error
		wantStatus int
		wantCalled bool
	}{
		{name: "owner", wantStatus: http.StatusOK, wantCalled: true},
		{name: "operator skips ownership", roles: []string{domain.RoleOperator}, ownerErr: domain.ErrForbidden, wantStatus: http.StatusOK, wantCalled: true},
		{name: "not owner", ownerErr: domain.ErrForbidden, wantStatus: http.StatusForbidden},
		{name: "event missing", ownerErr: domain.ErrNotFound, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certs := &fakeCertificateService{result: &domain.StepResult{Success: true, Status: domain.StatusCompleted}}
			ctrl := NewCertificateController(testLogger, certs, &fakeEventService{getEventErr: tt.ownerErr})
			req := withPrincipal(httptest.NewRequest(http.MethodPost, "/events/ev-1/certificates/send", nil), "user-9", tt.roles...)
			req.SetPathValue("eventID", "ev-1")
			rr := httptest.NewRecorder()

			ctrl.Send(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantCalled, len(certs.calls) == 1)
		})
	}

	t.Run("no principal", func(t *testing.T) {
		ctrl := NewCertificateController(testLogger, &fakeCertificateService{}, &fakeEventService{})
		req := httptest.NewRequest(http.MethodPost, "/events/ev-1/certificates/send", nil)
		req.SetPathValue("eventID", "ev-1")
		rr := httptest.NewRecorder()
		ctrl.Send(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestCertificateController_Status(t *testing.T) {
	participants := []*domain.Participant{{ID: "p-1"}, {ID: "p-2"}, {ID: "p-3"}}
	status := &domain.CertificateStatus{
		Event:        &domain.Event{ID: "ev-1", Name: "Conf"},
		TemplateType: domain.TemplateParticipation,
		Participants: participants,
		Records:      []*domain.GenerationRecord{{ParticipantID: "p-1"}},
	}

	t.Run("paginates participants", func(t *testing.T) {
		ctrl := NewCertificateController(testLogger, &fakeCertificateService{status: status}, &fakeEventService{})
		req := withPrincipal(httptest.NewRequest(http.MethodGet, "/events/ev-1/certificates?page=2&page_size=2", nil), "owner-1")
		req.SetPathValue("eventID", "ev-1")
		rr := httptest.NewRecorder()

		ctrl.Status(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp CertificateStatusResponse
		decodeEnvelope(t, rr.Body, &resp)
		require.Len(t, resp.Participants, 1)
		assert.Equal(t, "p-3", resp.Participants[0].ID)
		assert.Len(t, resp.Records, 1)
		assert.Equal(t, 3, resp.Pagination.Total)
		assert.Equal(t, 2, resp.Pagination.TotalPages)
	})

	t.Run("not found", func(t *testing.T) {
		ctrl := NewCertificateController(testLogger, &fakeCertificateService{statusErr: domain.ErrNotFound}, &fakeEventService{})
		req := withPrincipal(httptest.NewRequest(http.MethodGet, "/events/ev-1/certificates", nil), "ops", domain.RoleOperator)
		req.SetPathValue("eventID", "ev-1")
		rr := httptest.NewRecorder()

		ctrl.Status(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
