package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"eventcertificates/internal/domain"
	"eventcertificates/internal/timewindow"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var wib = time.FixedZone("WIB", 7*60*60)

// newTestPolicy returns a WIB policy with 18:00 generation, 19:00 send, a 2 minute tolerance
// and a 7 day catch-up window, pinned to now.
func newTestPolicy(now time.Time) *timewindow.Policy {
	return &timewindow.Policy{
		Location:    wib,
		Generation:  timewindow.Clock{Hour: 18},
		Send:        timewindow.Clock{Hour: 19},
		Tolerance:   2 * time.Minute,
		CatchUpDays: 7,
		Now:         func() time.Time { return now },
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeEvents struct {
	mu       sync.Mutex
	events   []*domain.Event
	err      error
	from, to time.Time
}

func (f *fakeEvents) Create(ctx context.Context, event *domain.Event) error { return nil }

func (f *fakeEvents) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	for _, e := range f.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeEvents) ListByDateRange(ctx context.Context, from, to time.Time) ([]*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeEvents) Delete(ctx context.Context, id string) error { return nil }

type call struct {
	op      string
	eventID string
}

// fakeCerts records calls and returns scripted results per event.
type fakeCerts struct {
	mu      sync.Mutex
	calls   []call
	results map[string]*domain.StepResult
	errs    map[string]error

	// When set, every call blocks until release is closed.
	entered chan struct{}
	release chan struct{}
}

func newFakeCerts() *fakeCerts {
	return &fakeCerts{results: map[string]*domain.StepResult{}, errs: map[string]error{}}
}

func (f *fakeCerts) step(op, eventID string) (*domain.StepResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: op, eventID: eventID})
	res, err := f.results[eventID], f.errs[eventID]
	entered, release := f.entered, f.release
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if err != nil {
		return &domain.StepResult{EventID: eventID, Status: domain.StatusFailed}, err
	}
	if res == nil {
		res = &domain.StepResult{EventID: eventID, Success: true, Status: domain.StatusCompleted, Total: 1, Successful: 1}
	}
	return res, nil
}

func (f *fakeCerts) Generate(ctx context.Context, eventID string, participantIDs []string) (*domain.StepResult, error) {
	return f.step("generate", eventID)
}

func (f *fakeCerts) Dispatch(ctx context.Context, eventID string) (*domain.StepResult, error) {
	return f.step("dispatch", eventID)
}

func (f *fakeCerts) Status(ctx context.Context, eventID string) (*domain.CertificateStatus, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeCerts) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}
