package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"eventcertificates/internal/domain"
	"eventcertificates/internal/metrics"
	"eventcertificates/internal/timewindow"
)

// ErrStopped is returned when scheduling on a stopped OneShots registry.
var ErrStopped = errors.New("one-shot scheduler stopped")

// timer is the part of *time.Timer a Plan needs.
type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Plan is the per-event scheduling record: a generation task and a dispatch task, each
// cancellable on its own. Cancelling never aborts a fire already in progress. Dispatch
// always runs after generation has finished or been cancelled.
type Plan struct {
	EventID      string
	GenerationAt time.Time
	DispatchAt   time.Time

	owner *OneShots

	mu        sync.Mutex
	genTimer  timer
	sendTimer timer

	// genDone is closed once generation has run or can no longer run.
	genDone  chan struct{}
	genClose sync.Once
}

func newPlan(o *OneShots, eventID string, genAt, sendAt time.Time) *Plan {
	return &Plan{
		EventID:      eventID,
		GenerationAt: genAt,
		DispatchAt:   sendAt,
		owner:        o,
		genDone:      make(chan struct{}),
	}
}

func (p *Plan) generationSettled() {
	p.genClose.Do(func() { close(p.genDone) })
}

// CancelGeneration stops the pending generation task. It reports whether the task was stopped
// before firing.
func (p *Plan) CancelGeneration() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.genTimer == nil {
		return false
	}
	stopped := p.genTimer.Stop()
	p.genTimer = nil
	if stopped {
		// A fire that already started settles genDone itself.
		p.generationSettled()
	}
	return stopped
}

// CancelDispatch stops the pending dispatch task and drops the plan from its registry.
func (p *Plan) CancelDispatch() bool {
	p.mu.Lock()
	var stopped bool
	if p.sendTimer != nil {
		stopped = p.sendTimer.Stop()
		p.sendTimer = nil
	}
	p.mu.Unlock()
	p.owner.forget(p)
	return stopped
}

// Cancel stops both tasks. It reports whether any task was stopped before firing.
func (p *Plan) Cancel() bool {
	gen := p.CancelGeneration()
	send := p.CancelDispatch()
	return gen || send
}

func (p *Plan) fire(phase Phase) {
	o := p.owner
	start := time.Now()
	res, err := phase.run(o.baseCtx, o.certs, p.EventID)
	o.metrics.TriggerRun(string(phase), SourceOneShot, time.Since(start))
	switch {
	case err != nil:
		o.logger.Error("one-shot certificate step failed", "phase", phase, "event_id", p.EventID, "err", err)
	case res.NotFound():
		// The event was deleted or lost its template after planning.
		o.logger.Info("one-shot certificate step found nothing to do", "phase", phase, "event_id", p.EventID, "reason", res.Message)
	default:
		o.logger.Info("one-shot certificate step completed",
			"phase", phase,
			"event_id", p.EventID,
			"total", res.Total,
			"successful", res.Successful,
			"failed", res.Failed,
		)
	}
}

func (p *Plan) fireGeneration() {
	p.mu.Lock()
	p.genTimer = nil
	p.mu.Unlock()
	defer p.generationSettled()
	p.fire(PhaseGeneration)
}

// fireDispatch runs generation first when its timer has not fired yet (both deadlines
// passed together, e.g. after a suspend), and otherwise waits for it to settle.
func (p *Plan) fireDispatch() {
	p.mu.Lock()
	p.sendTimer = nil
	runGeneration := p.genTimer != nil && p.genTimer.Stop()
	if runGeneration {
		p.genTimer = nil
	}
	p.mu.Unlock()

	if runGeneration {
		p.fire(PhaseGeneration)
		p.generationSettled()
	}
	<-p.genDone
	p.fire(PhaseDispatch)
	p.owner.forget(p)
}

// PlanInfo describes a registered plan.
type PlanInfo struct {
	EventID      string    `json:"event_id"`
	GenerationAt time.Time `json:"generation_at"`
	DispatchAt   time.Time `json:"dispatch_at"`
}

// OneShots keeps at most one Plan per event.
type OneShots struct {
	certs   domain.CertificateService
	policy  *timewindow.Policy
	metrics *metrics.Collector
	logger  *slog.Logger
	baseCtx context.Context
	after   afterFunc

	mu      sync.Mutex
	plans   map[string]*Plan
	stopped bool
}

// NewOneShots creates an empty registry.
func NewOneShots(certs domain.CertificateService, policy *timewindow.Policy, collector *metrics.Collector, logger *slog.Logger) *OneShots {
	return &OneShots{
		certs:   certs,
		policy:  policy,
		metrics: collector,
		logger:  logger,
		baseCtx: context.Background(),
		after:   realAfterFunc,
		plans:   map[string]*Plan{},
	}
}

// Schedule plans generation at the event's generation time and dispatch at its send time,
// replacing any existing plan for the event. When the generation time is not in the future
// it returns a nil plan and no error; the recurring trigger owns that event instead.
func (o *OneShots) Schedule(event *domain.Event) (*Plan, error) {
	now := o.policy.CurrentTime()
	genAt := o.policy.At(event.Date, o.policy.Generation)
	sendAt := o.policy.At(event.Date, o.policy.Send)

	genDelay, ok := timewindow.DelayUntil(genAt, now)
	if !ok {
		// A rescheduled event may have moved into the past.
		o.CancelEvent(event.ID)
		o.logger.Info("generation time already passed, not planning one-shot",
			"event_id", event.ID,
			"generation_at", genAt,
		)
		return nil, nil
	}
	sendDelay, ok := timewindow.DelayUntil(sendAt, now)
	if !ok {
		// Unreachable with a valid policy (send after generation); keep the invariant anyway.
		sendDelay = genDelay
	}

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil, ErrStopped
	}
	p := newPlan(o, event.ID, genAt, sendAt)
	p.mu.Lock()
	p.genTimer = o.after(genDelay, p.fireGeneration)
	p.sendTimer = o.after(sendDelay, p.fireDispatch)
	p.mu.Unlock()
	old := o.plans[event.ID]
	o.plans[event.ID] = p
	o.mu.Unlock()

	if old != nil {
		old.CancelGeneration()
		old.mu.Lock()
		if old.sendTimer != nil {
			old.sendTimer.Stop()
			old.sendTimer = nil
		}
		old.mu.Unlock()
	}
	o.logger.Info("one-shot certificate run planned",
		"event_id", event.ID,
		"generation_at", genAt,
		"dispatch_at", sendAt,
	)
	return p, nil
}

// PlanEvent implements domain.CertificatePlanner.
func (o *OneShots) PlanEvent(event *domain.Event) (bool, error) {
	p, err := o.Schedule(event)
	return p != nil, err
}

// CancelEvent cancels the event's plan. It reports whether a plan existed.
func (o *OneShots) CancelEvent(eventID string) bool {
	o.mu.Lock()
	p := o.plans[eventID]
	delete(o.plans, eventID)
	o.mu.Unlock()
	if p == nil {
		return false
	}
	p.Cancel()
	return true
}

// Get returns the event's plan, or nil.
func (o *OneShots) Get(eventID string) *Plan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plans[eventID]
}

// Pending lists registered plans ordered by generation time.
func (o *OneShots) Pending() []PlanInfo {
	o.mu.Lock()
	out := make([]PlanInfo, 0, len(o.plans))
	for _, p := range o.plans {
		out = append(out, PlanInfo{EventID: p.EventID, GenerationAt: p.GenerationAt, DispatchAt: p.DispatchAt})
	}
	o.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].GenerationAt.Equal(out[j].GenerationAt) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].GenerationAt.Before(out[j].GenerationAt)
	})
	return out
}

// Restore plans today's events whose generation time is still ahead, so plans survive a
// restart. It returns the number of plans registered.
func (o *OneShots) Restore(ctx context.Context, events domain.EventRepository) (int, error) {
	today := o.policy.Today(o.policy.CurrentTime())
	list, err := events.ListByDateRange(ctx, today, today)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ev := range list {
		p, err := o.Schedule(ev)
		if err != nil {
			return n, err
		}
		if p != nil {
			n++
		}
	}
	return n, nil
}

// Stop cancels every plan and rejects further scheduling.
func (o *OneShots) Stop() {
	o.mu.Lock()
	o.stopped = true
	plans := o.plans
	o.plans = map[string]*Plan{}
	o.mu.Unlock()
	for _, p := range plans {
		p.Cancel()
	}
}

// forget drops p from the registry if it is still the event's current plan.
func (o *OneShots) forget(p *Plan) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.plans[p.EventID] == p {
		delete(o.plans, p.EventID)
	}
}
