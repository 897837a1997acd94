package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"eventcertificates/internal/domain"
	"eventcertificates/internal/metrics"
	"eventcertificates/internal/timewindow"
)

// TriggerSummary aggregates one firing over all qualifying events.
type TriggerSummary struct {
	Phase      Phase    `json:"phase"`
	Source     string   `json:"source"`
	Skipped    bool     `json:"skipped"`
	Events     int      `json:"events"`
	NotFound   int      `json:"not_found"`
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// Recurring fires the generation and dispatch phases once a day at the policy's clocks.
type Recurring struct {
	events  domain.EventRepository
	certs   domain.CertificateService
	policy  *timewindow.Policy
	metrics *metrics.Collector
	logger  *slog.Logger

	mu  sync.Mutex
	c   *cron.Cron
	ids map[Phase]cron.EntryID

	// One lock per phase; a firing that finds its phase busy is skipped.
	running map[Phase]*sync.Mutex
}

// NewRecurring creates a stopped Recurring trigger.
func NewRecurring(events domain.EventRepository, certs domain.CertificateService, policy *timewindow.Policy, collector *metrics.Collector, logger *slog.Logger) *Recurring {
	return &Recurring{
		events:  events,
		certs:   certs,
		policy:  policy,
		metrics: collector,
		logger:  logger,
		running: map[Phase]*sync.Mutex{
			PhaseGeneration: {},
			PhaseDispatch:   {},
		},
	}
}

// Start registers the two daily entries and starts the cron. Calling Start twice is a no-op.
func (r *Recurring) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(r.policy.Location))
	ids := make(map[Phase]cron.EntryID, 2)
	for _, phase := range []Phase{PhaseGeneration, PhaseDispatch} {
		spec := phase.cutoff(r.policy).CronSpec()
		id, err := c.AddFunc(spec, func() { r.fire(phase) })
		if err != nil {
			return fmt.Errorf("register %s trigger %q: %w", phase, spec, err)
		}
		ids[phase] = id
	}
	c.Start()
	r.c = c
	r.ids = ids
	r.logger.Info("recurring trigger started",
		"tz", r.policy.Location.String(),
		"generation_time", r.policy.Generation.String(),
		"send_time", r.policy.Send.String(),
	)
	return nil
}

// Stop stops the cron and waits for a running firing until ctx is done.
func (r *Recurring) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	r.logger.Info("recurring trigger stopped")
}

// Next returns the next firing time of each phase; zero when stopped.
func (r *Recurring) Next() map[Phase]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[Phase]time.Time{}
	if r.c == nil {
		return out
	}
	for phase, id := range r.ids {
		out[phase] = r.c.Entry(id).Next
	}
	return out
}

func (r *Recurring) fire(phase Phase) {
	if _, err := r.Run(context.Background(), phase, SourceCron); err != nil {
		r.logger.Error("recurring trigger failed", "phase", phase, "err", err)
	}
}

// RunGeneration runs today's generation phase immediately.
func (r *Recurring) RunGeneration(ctx context.Context) (*TriggerSummary, error) {
	return r.Run(ctx, PhaseGeneration, SourceManual)
}

// RunDispatch runs today's dispatch phase immediately.
func (r *Recurring) RunDispatch(ctx context.Context) (*TriggerSummary, error) {
	return r.Run(ctx, PhaseDispatch, SourceManual)
}

// Run processes every event eligible at the current time for phase. Events dated today are
// skipped until the phase's cutoff is reached; past events inside the catch-up window are
// always processed. Only a failure to list events is returned as an error.
func (r *Recurring) Run(ctx context.Context, phase Phase, source string) (*TriggerSummary, error) {
	summary := &TriggerSummary{Phase: phase, Source: source}
	lock := r.running[phase]
	if lock == nil {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
	if !lock.TryLock() {
		summary.Skipped = true
		r.logger.Warn("trigger already running, skipping", "phase", phase, "source", source)
		return summary, nil
	}
	defer lock.Unlock()

	start := time.Now()
	now := r.policy.CurrentTime()
	from, to := r.policy.Window(now)
	events, err := r.events.ListByDateRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	cutoffReached := r.policy.IsAtOrPast(now, phase.cutoff(r.policy))
	for _, ev := range events {
		if !r.policy.Eligible(ev.Date, now) {
			continue
		}
		if r.policy.QualifiesToday(ev.Date, now) && !cutoffReached {
			r.logger.Debug("cutoff not reached, skipping today's event", "phase", phase, "event_id", ev.ID)
			continue
		}
		summary.Events++

		res, err := phase.run(ctx, r.certs, ev.ID)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", ev.ID, err))
			r.logger.Error("certificate step failed", "phase", phase, "event_id", ev.ID, "err", err)
			continue
		}
		if res.NotFound() {
			summary.NotFound++
			r.logger.Info("certificate step skipped", "phase", phase, "event_id", ev.ID, "reason", res.Message)
			continue
		}
		summary.Total += res.Total
		summary.Successful += res.Successful
		summary.Failed += res.Failed
	}

	took := time.Since(start)
	r.metrics.TriggerRun(string(phase), source, took)
	r.logger.Info("certificate trigger completed",
		"phase", phase,
		"source", source,
		"events", summary.Events,
		"total", summary.Total,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"errors", len(summary.Errors),
		"took", took,
	)
	return summary, nil
}
