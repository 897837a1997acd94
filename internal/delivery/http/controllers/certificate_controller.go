package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"eventcertificates/internal/delivery/http/helpers"
	"eventcertificates/internal/delivery/http/middleware"
	"eventcertificates/internal/domain"
)

// GenerateRequest is the optional body of POST /events/{eventID}/certificates/generate.
type GenerateRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
}

// Normalize implements helpers.Normalizer. It trims IDs and drops blanks and duplicates.
func (g *GenerateRequest) Normalize() {
	if len(g.ParticipantIDs) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(g.ParticipantIDs))
	ids := g.ParticipantIDs[:0]
	for _, id := range g.ParticipantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	g.ParticipantIDs = ids
}

// Validate implements helpers.Validator. An explicit filter that names nobody is rejected
// rather than read as "everyone".
func (g GenerateRequest) Validate() []string {
	if g.ParticipantIDs != nil && len(g.ParticipantIDs) == 0 {
		return []string{"participant_ids must name at least one participant"}
	}
	return nil
}

// StepResultResponse is the envelope of a certificate step. On 404 and 500 data still
// carries the structured result.
type StepResultResponse struct {
	Data  *domain.StepResult `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

// CertificateStatusResponse is the data of GET /events/{eventID}/certificates.
type CertificateStatusResponse struct {
	Event        *domain.Event              `json:"event"`
	TemplateType string                     `json:"template_type"`
	Participants []*domain.Participant      `json:"participants"`
	Records      []*domain.GenerationRecord `json:"records"`
	Pagination   helpers.PaginationMeta     `json:"pagination"`
}

type CertificateController struct {
	Logger       *slog.Logger
	Certificates domain.CertificateService
	Events       domain.EventService
}

func NewCertificateController(logger *slog.Logger, certs domain.CertificateService, events domain.EventService) *CertificateController {
	return &CertificateController{
		Logger:       logger,
		Certificates: certs,
		Events:       events,
	}
}

// authorize lets operators through and otherwise requires the caller to own the event. It
// writes the error response and returns false on failure.
func (c *CertificateController) authorize(w http.ResponseWriter, r *http.Request, eventID string) bool {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || p.Subject == "" {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return false
	}
	if p.HasRole(domain.RoleOperator) {
		return true
	}
	if _, err := c.Events.GetEvent(r.Context(), eventID, p.Subject); err != nil {
		writeOwnershipError(w, r, c.Logger, err)
		return false
	}
	return true
}

// writeStepResult maps a step outcome to 200 (completed), 404 (event or template missing)
// or 500 (fatal), always including the result.
func (c *CertificateController) writeStepResult(w http.ResponseWriter, r *http.Request, res *domain.StepResult, err error) {
	switch {
	case err != nil:
		c.Logger.ErrorContext(r.Context(), "certificate step failed", "path", r.URL.Path, "err", err)
		helpers.WriteJSON(w, http.StatusInternalServerError, res, &helpers.APIError{Code: helpers.ErrCodeInternalError, Message: err.Error()})
	case res.NotFound():
		helpers.WriteJSON(w, http.StatusNotFound, res, &helpers.APIError{Code: helpers.ErrCodeNotFound, Message: res.Message})
	default:
		helpers.WriteJSONSuccess(w, http.StatusOK, res)
	}
}

// Generate godoc
// @Summary Generate certificates now
// @Description Runs the generation step for the event, rendering a certificate for every participant without one. participant_ids optionally restricts the run.
// @Tags certificates
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body GenerateRequest false "Optional participant filter"
// @Success 200 {object} controllers.StepResultResponse
// @Failure 404 {object} controllers.StepResultResponse "event or template not found"
// @Failure 500 {object} controllers.StepResultResponse
// @Router /events/{eventID}/certificates/generate [post]
func (c *CertificateController) Generate(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req GenerateRequest
	if !helpers.DecodeOptional(w, r, &req) {
		return
	}
	if !c.authorize(w, r, eventID) {
		return
	}
	res, err := c.Certificates.Generate(r.Context(), eventID, req.ParticipantIDs)
	c.writeStepResult(w, r, res, err)
}

// Send godoc
// @Summary Send generated certificates now
// @Description Runs the dispatch step for the event, emailing every generated certificate not yet sent.
// @Tags certificates
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} controllers.StepResultResponse
// @Failure 404 {object} controllers.StepResultResponse "event or template not found"
// @Failure 500 {object} controllers.StepResultResponse
// @Router /events/{eventID}/certificates/send [post]
func (c *CertificateController) Send(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	if !c.authorize(w, r, eventID) {
		return
	}
	res, err := c.Certificates.Dispatch(r.Context(), eventID)
	c.writeStepResult(w, r, res, err)
}

// Status godoc
// @Summary Certificate status of an event
// @Description Returns the event, a page of participants with their sent flag, and every generation record.
// @Tags certificates
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Participants per page (default 50, max 500)"
// @Success 200 {object} helpers.APIResponse "data is a CertificateStatusResponse"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/certificates [get]
func (c *CertificateController) Status(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	if !c.authorize(w, r, eventID) {
		return
	}
	status, err := c.Certificates.Status(r.Context(), eventID)
	if err != nil {
		writeOwnershipError(w, r, c.Logger, err)
		return
	}
	page := helpers.ParsePagination(r)
	start, end := page.Bounds(len(status.Participants))
	helpers.WriteJSONSuccess(w, http.StatusOK, CertificateStatusResponse{
		Event:        status.Event,
		TemplateType: status.TemplateType,
		Participants: status.Participants[start:end],
		Records:      status.Records,
		Pagination:   helpers.NewPaginationMeta(page.Page, page.PageSize, len(status.Participants)),
	})
}
