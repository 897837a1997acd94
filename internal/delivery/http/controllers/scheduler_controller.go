package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"eventcertificates/internal/delivery/http/helpers"
	"eventcertificates/internal/scheduler"
)

// TriggerRunner runs a daily phase on demand.
type TriggerRunner interface {
	Run(ctx context.Context, phase scheduler.Phase, source string) (*scheduler.TriggerSummary, error)
	Next() map[scheduler.Phase]time.Time
}

// PlanLister lists the registered one-shot plans.
type PlanLister interface {
	Pending() []scheduler.PlanInfo
}

// SchedulerStatusResponse is the data of GET /scheduler.
type SchedulerStatusResponse struct {
	NextGeneration *time.Time           `json:"next_generation,omitempty"`
	NextDispatch   *time.Time           `json:"next_dispatch,omitempty"`
	Plans          []scheduler.PlanInfo `json:"plans"`
}

type SchedulerController struct {
	Logger *slog.Logger
	Runner TriggerRunner
	Plans  PlanLister
}

func NewSchedulerController(logger *slog.Logger, runner TriggerRunner, plans PlanLister) *SchedulerController {
	return &SchedulerController{Logger: logger, Runner: runner, Plans: plans}
}

// Run godoc
// @Summary Run a daily phase now
// @Description Runs the generation or dispatch phase over today's and catch-up events immediately. Operator only.
// @Tags scheduler
// @Produce json
// @Security BearerAuth
// @Param phase path string true "generation or dispatch"
// @Success 200 {object} helpers.APIResponse "data is a TriggerSummary"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /scheduler/run/{phase} [post]
func (c *SchedulerController) Run(w http.ResponseWriter, r *http.Request) {
	phase, err := scheduler.ParsePhase(r.PathValue("phase"))
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
		return
	}
	summary, err := c.Runner.Run(r.Context(), phase, scheduler.SourceManual)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "manual trigger failed", "phase", phase, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, summary)
}

// Status godoc
// @Summary Scheduler state
// @Description Next daily firing times and the registered one-shot plans. Operator only.
// @Tags scheduler
// @Produce json
// @Security BearerAuth
// @Success 200 {object} helpers.APIResponse "data is a SchedulerStatusResponse"
// @Router /scheduler [get]
func (c *SchedulerController) Status(w http.ResponseWriter, r *http.Request) {
	resp := SchedulerStatusResponse{Plans: []scheduler.PlanInfo{}}
	next := c.Runner.Next()
	if t, ok := next[scheduler.PhaseGeneration]; ok && !t.IsZero() {
		resp.NextGeneration = &t
	}
	if t, ok := next[scheduler.PhaseDispatch]; ok && !t.IsZero() {
		resp.NextDispatch = &t
	}
	if c.Plans != nil {
		resp.Plans = c.Plans.Pending()
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, resp)
}
