package scheduler

import (
	"context"
	"fmt"

	"eventcertificates/internal/domain"
	"eventcertificates/internal/timewindow"
)

// Phase names a certificate step as seen by the triggers.
type Phase string

const (
	PhaseGeneration Phase = "generation"
	PhaseDispatch   Phase = "dispatch"
)

// Trigger sources, used as the metrics "source" label.
const (
	SourceCron    = "cron"
	SourceOneShot = "oneshot"
	SourceManual  = "manual"
)

// ParsePhase validates a phase name.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseGeneration, PhaseDispatch:
		return Phase(s), nil
	}
	return "", fmt.Errorf("unknown phase %q: want %q or %q", s, PhaseGeneration, PhaseDispatch)
}

// cutoff returns the daily clock gating the phase.
func (p Phase) cutoff(policy *timewindow.Policy) timewindow.Clock {
	if p == PhaseDispatch {
		return policy.Send
	}
	return policy.Generation
}

// run invokes the step the phase stands for.
func (p Phase) run(ctx context.Context, certs domain.CertificateService, eventID string) (*domain.StepResult, error) {
	if p == PhaseDispatch {
		return certs.Dispatch(ctx, eventID)
	}
	return certs.Generate(ctx, eventID, nil)
}
