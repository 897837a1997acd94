package timewindow

import (
	"fmt"
	"time"
)

// MaxTolerance bounds the early-fire tolerance a Policy accepts.
const MaxTolerance = 30 * time.Minute

// Config is the raw configuration of a Policy.
type Config struct {
	Timezone       string
	GenerationTime string
	SendTime       string
	Tolerance      time.Duration
	CatchUpDays    int
}

// Policy holds the daily generation and send cutoffs in one fixed civil timezone.
type Policy struct {
	Location    *time.Location
	Generation  Clock
	Send        Clock
	Tolerance   time.Duration
	CatchUpDays int

	// Now overrides the wall clock (tests).
	Now func() time.Time
}

// New validates cfg and builds a Policy.
func New(cfg Config) (*Policy, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	gen, err := ParseClock(cfg.GenerationTime)
	if err != nil {
		return nil, fmt.Errorf("generation time: %w", err)
	}
	send, err := ParseClock(cfg.SendTime)
	if err != nil {
		return nil, fmt.Errorf("send time: %w", err)
	}
	if send.minutes() <= gen.minutes() {
		return nil, fmt.Errorf("send time %s must be after generation time %s", send, gen)
	}
	if cfg.Tolerance < 0 || cfg.Tolerance > MaxTolerance {
		return nil, fmt.Errorf("fire tolerance %s out of range [0, %s]", cfg.Tolerance, MaxTolerance)
	}
	if cfg.CatchUpDays < 0 {
		return nil, fmt.Errorf("catch-up days must not be negative, got %d", cfg.CatchUpDays)
	}
	return &Policy{
		Location:    loc,
		Generation:  gen,
		Send:        send,
		Tolerance:   cfg.Tolerance,
		CatchUpDays: cfg.CatchUpDays,
	}, nil
}

// CurrentTime returns the policy's notion of now.
func (p *Policy) CurrentTime() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// civilDate maps a stored event date onto midnight in the policy location. The stored
// year/month/day are taken as-is; their time-of-day and zone are ignored.
func (p *Policy) civilDate(eventDate time.Time) time.Time {
	y, m, d := eventDate.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.loc())
}

// Today returns midnight of now's civil date in the policy location.
func (p *Policy) Today(now time.Time) time.Time {
	y, m, d := now.In(p.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.loc())
}

// QualifiesToday reports whether the event's civil date is now's civil date.
func (p *Policy) QualifiesToday(eventDate, now time.Time) bool {
	return p.civilDate(eventDate).Equal(p.Today(now))
}

// Eligible reports whether an event may be processed by a daily run at now: events dated
// today, and past events no older than CatchUpDays, so a missed day does not orphan
// participants.
func (p *Policy) Eligible(eventDate, now time.Time) bool {
	ed := p.civilDate(eventDate)
	today := p.Today(now)
	if ed.Equal(today) {
		return true
	}
	if !ed.Before(today) || p.CatchUpDays == 0 {
		return false
	}
	return !ed.Before(today.AddDate(0, 0, -p.CatchUpDays))
}

// Window returns the inclusive civil-date range a daily run looks at.
func (p *Policy) Window(now time.Time) (from, to time.Time) {
	to = p.Today(now)
	return to.AddDate(0, 0, -p.CatchUpDays), to
}

// IsAtOrPast reports whether now's local time-of-day has reached cutoff, allowing now to
// be up to Tolerance early.
func (p *Policy) IsAtOrPast(now time.Time, cutoff Clock) bool {
	local := now.In(p.loc())
	y, m, d := local.Date()
	at := time.Date(y, m, d, cutoff.Hour, cutoff.Minute, 0, 0, p.loc())
	return !local.Before(at.Add(-p.Tolerance))
}

// At returns the instant of clock on the event's civil date.
func (p *Policy) At(eventDate time.Time, clock Clock) time.Time {
	y, m, d := eventDate.Date()
	return time.Date(y, m, d, clock.Hour, clock.Minute, 0, 0, p.loc())
}

// DelayUntil returns the positive delay from now to target. ok is false when target is not
// in the future; callers must not schedule in that case.
func DelayUntil(target, now time.Time) (d time.Duration, ok bool) {
	d = target.Sub(now)
	if d <= 0 {
		return 0, false
	}
	return d, true
}
