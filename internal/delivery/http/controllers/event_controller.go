package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"eventcertificates/internal/delivery/http/helpers"
	"eventcertificates/internal/delivery/http/middleware"
	"eventcertificates/internal/domain"
)

// emailRegex matches a simple email format (local@domain with at least one dot in domain).
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// CreateEventRequest is the request body for POST /events.
type CreateEventRequest struct {
	Name         string  `json:"name"`
	Date         string  `json:"date"`
	Description  *string `json:"description"`
	TemplateType string  `json:"template_type"`
}

// Normalize implements helpers.Normalizer.
func (c *CreateEventRequest) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Date = strings.TrimSpace(c.Date)
	c.TemplateType = strings.ToLower(strings.TrimSpace(c.TemplateType))
	if c.Description != nil {
		d := strings.TrimSpace(*c.Description)
		if d == "" {
			c.Description = nil
		} else {
			c.Description = &d
		}
	}
}

// Validate implements helpers.Validator. Returns error messages for required and format rules.
func (c CreateEventRequest) Validate() []string {
	var errs []string
	if c.Name == "" {
		errs = append(errs, "name is required")
	}
	if c.Date == "" {
		errs = append(errs, "date is required")
	} else if _, err := time.Parse(time.DateOnly, c.Date); err != nil {
		errs = append(errs, "date must be YYYY-MM-DD")
	}
	if c.TemplateType != "" && !domain.IsKnownTemplateType(c.TemplateType) {
		errs = append(errs, "template_type must be one of participation, completion, speaker")
	}
	return errs
}

// CreateEventSuccessResponse is the success response envelope for POST /events (201).
type CreateEventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// AddParticipantRequest is the request body for POST /events/{eventID}/participants.
type AddParticipantRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Normalize implements helpers.Normalizer. Emails are stored lowercased so the duplicate
// check on (event, email) is case-insensitive.
func (a *AddParticipantRequest) Normalize() {
	a.Name = strings.TrimSpace(a.Name)
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
}

// Validate implements helpers.Validator.
func (a AddParticipantRequest) Validate() []string {
	var errs []string
	if a.Name == "" {
		errs = append(errs, "name is required")
	}
	if !emailRegex.MatchString(a.Email) {
		errs = append(errs, "email is invalid")
	}
	return errs
}

// ScheduleResponse reports the outcome of planning or cancelling an event's one-shot run.
type ScheduleResponse struct {
	EventID   string `json:"event_id"`
	Planned   bool   `json:"planned"`
	Cancelled bool   `json:"cancelled"`
}

type EventController struct {
	Logger  *slog.Logger
	Service domain.EventService
}

func NewEventController(logger *slog.Logger, svc domain.EventService) *EventController {
	return &EventController{
		Logger:  logger,
		Service: svc,
	}
}

// writeOwnershipError maps ownership failures to 404/403 and anything else to 500.
func writeOwnershipError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "event not found")
	case errors.Is(err, domain.ErrForbidden):
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "not the event owner")
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
	}
}

// CreateEvent godoc
// @Summary Create a new event
// @Description Create an event with its active certificate template. The authenticated user becomes the owner and a one-shot certificate run is planned for the event date.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event data"
// @Success 201 {object} controllers.CreateEventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	date, _ := time.Parse(time.DateOnly, req.Date)
	now := time.Now()
	event := domain.NewEvent(req.Name, date, userID, now, now)
	event.Description = req.Description
	if err := c.Service.CreateEvent(r.Context(), event, req.TemplateType); err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, event)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Deletes the event, its participants and certificate records, and cancels its planned run. Owner only.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	if err := c.Service.DeleteEvent(r.Context(), eventID, userID); err != nil {
		writeOwnershipError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"event_id": eventID})
}

// AddParticipant godoc
// @Summary Register a participant
// @Description Adds a participant who will receive a certificate. Owner only.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param participant body AddParticipantRequest true "Participant"
// @Success 201 {object} helpers.APIResponse "data contains the participant"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict"
// @Router /events/{eventID}/participants [post]
func (c *EventController) AddParticipant(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if eventID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing eventID")
		return
	}
	var req AddParticipantRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	p := domain.NewParticipant(eventID, req.Name, req.Email, time.Now())
	if err := c.Service.AddParticipant(r.Context(), eventID, userID, p); err != nil {
		if errors.Is(err, domain.ErrDuplicateParticipant) {
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "participant already registered")
			return
		}
		writeOwnershipError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, p)
}

// ScheduleCertificates godoc
// @Summary Plan the event's one-shot certificate run
// @Description Registers (or replaces) the generation and dispatch tasks at the event date's configured times. planned is false when the generation time already passed; the daily trigger then covers the event.
// @Tags certificates
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data is a ScheduleResponse"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/certificates/schedule [post]
func (c *EventController) ScheduleCertificates(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	planned, err := c.Service.Replan(r.Context(), eventID, userID)
	if err != nil {
		writeOwnershipError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ScheduleResponse{EventID: eventID, Planned: planned})
}

// UnscheduleCertificates godoc
// @Summary Cancel the event's one-shot certificate run
// @Tags certificates
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data is a ScheduleResponse"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/certificates/schedule [delete]
func (c *EventController) UnscheduleCertificates(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	cancelled, err := c.Service.Unplan(r.Context(), eventID, userID)
	if err != nil {
		writeOwnershipError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ScheduleResponse{EventID: eventID, Cancelled: cancelled})
}
