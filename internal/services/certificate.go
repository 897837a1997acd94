package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventcertificates/internal/domain"
	"eventcertificates/internal/metrics"
	"eventcertificates/internal/notify"
)

type certificateService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	templateRepo    domain.CertificateTemplateRepository
	renderer        domain.CertificateRenderer
	sender          domain.CertificateSender
	sink            domain.NotificationSink
	metrics         *metrics.Collector
	logger          *slog.Logger
	now             func() time.Time
	contextTimeout  time.Duration

	// Generate and Dispatch hold the event's lock for their whole run.
	locks eventLocks
}

// NewCertificateService returns the CertificateService running the generation and dispatch
// steps. sink and collector may be nil.
func NewCertificateService(
	eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	templateRepo domain.CertificateTemplateRepository,
	renderer domain.CertificateRenderer,
	sender domain.CertificateSender,
	sink domain.NotificationSink,
	collector *metrics.Collector,
	logger *slog.Logger,
	timeout time.Duration,
) domain.CertificateService {
	return &certificateService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		templateRepo:    templateRepo,
		renderer:        renderer,
		sender:          sender,
		sink:            sink,
		metrics:         collector,
		logger:          logger,
		now:             time.Now,
		contextTimeout:  timeout,
	}
}

// withTimeout bounds a single collaborator call, never a whole step.
func (s *certificateService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.contextTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.contextTimeout)
}

// persistCtx is used for writes that record work already done (an email sent, a file
// rendered). They run even when the caller has given up.
func (s *certificateService) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return s.withTimeout(context.WithoutCancel(ctx))
}

// stepInput is what both steps read before touching any participant.
type stepInput struct {
	event        *domain.Event
	template     *domain.CertificateTemplate
	participants []*domain.Participant
}

// load fetches the event, its active template and its participants. A missing event or
// template is reported through res with a nil input and a nil error.
func (s *certificateService) load(ctx context.Context, eventID string) (*stepInput, *domain.StepResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := &domain.StepResult{EventID: eventID, Results: []domain.ParticipantOutcome{}}

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			res.Status = domain.StatusEventNotFound
			res.Message = "event not found"
			return nil, res, nil
		}
		return nil, res, s.fail(res, fmt.Errorf("get event: %w", err))
	}

	tpl, err := s.templateRepo.GetActiveByEventID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			res.Status = domain.StatusTemplateNotFound
			res.Message = "certificate template not found for event"
			return nil, res, nil
		}
		return nil, res, s.fail(res, fmt.Errorf("get certificate template: %w", err))
	}

	participants, err := s.participantRepo.ListByEventID(ctx, eventID)
	if err != nil {
		return nil, res, s.fail(res, fmt.Errorf("list participants: %w", err))
	}
	return &stepInput{event: event, template: tpl, participants: participants}, res, nil
}

func (s *certificateService) fail(res *domain.StepResult, err error) error {
	res.Success = false
	res.Status = domain.StatusFailed
	res.Message = err.Error()
	return err
}

func (s *certificateService) saveTemplate(ctx context.Context, res *domain.StepResult, tpl *domain.CertificateTemplate) error {
	ctx, cancel := s.persistCtx(ctx)
	defer cancel()
	if err := s.templateRepo.Save(ctx, tpl); err != nil {
		return s.fail(res, fmt.Errorf("save certificate records: %w", err))
	}
	return nil
}

// Generate renders a certificate for every participant of the event that has neither a
// generation record nor the sent flag.
func (s *certificateService) Generate(ctx context.Context, eventID string, participantIDs []string) (*domain.StepResult, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	in, res, err := s.load(ctx, eventID)
	if err != nil || in == nil {
		return res, err
	}
	event, tpl := in.event, in.template

	var only map[string]struct{}
	if len(participantIDs) > 0 {
		only = make(map[string]struct{}, len(participantIDs))
		for _, id := range participantIDs {
			only[id] = struct{}{}
		}
	}

	var pending []*domain.Participant
	for _, p := range in.participants {
		if only != nil {
			if _, ok := only[p.ID]; !ok {
				continue
			}
		}
		if p.CertificateSent || tpl.RecordFor(p.ID) != nil {
			continue
		}
		pending = append(pending, p)
	}

	res.Total = len(pending)
	for _, p := range pending {
		rendered, err := s.render(ctx, p, event, tpl.TemplateType)
		if err != nil {
			res.Failed++
			res.Results = append(res.Results, domain.ParticipantOutcome{
				ParticipantID: p.ID,
				Email:         p.Email,
				Message:       err.Error(),
			})
			s.logger.Warn("certificate render failed", "event_id", eventID, "participant_id", p.ID, "err", err)
			continue
		}
		tpl.AddRecord(&domain.GenerationRecord{
			ParticipantID:   p.ID,
			CertificatePath: rendered.FilePath,
			CertificateURL:  rendered.PublicURL,
			GeneratedAt:     s.now(),
		})
		res.Successful++
		res.Results = append(res.Results, domain.ParticipantOutcome{
			ParticipantID:  p.ID,
			Email:          p.Email,
			Success:        true,
			CertificateURL: rendered.PublicURL,
		})
	}

	if res.Successful > 0 {
		if err := s.saveTemplate(ctx, res, tpl); err != nil {
			return res, err
		}
	}

	res.Success = true
	res.Status = domain.StatusCompleted
	res.Message = fmt.Sprintf("generated %d of %d certificates", res.Successful, res.Total)
	if res.Failed > 0 {
		res.Message += fmt.Sprintf(" (%d failed)", res.Failed)
	}
	s.logger.Info("certificate generation finished",
		"event_id", eventID,
		"total", res.Total,
		"successful", res.Successful,
		"failed", res.Failed,
	)
	s.metrics.Generated(res.Successful, res.Failed)
	s.publish(ctx, domain.NotificationGenerated, event, res)
	return res, nil
}

func (s *certificateService) render(ctx context.Context, p *domain.Participant, event *domain.Event, templateType string) (*domain.RenderedCertificate, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.renderer.Render(ctx, p, event, templateType)
}

func (s *certificateService) send(ctx context.Context, p *domain.Participant, event *domain.Event, filePath string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.sender.SendCertificate(ctx, p, event, filePath)
}

func (s *certificateService) saveParticipant(ctx context.Context, p *domain.Participant) error {
	ctx, cancel := s.persistCtx(ctx)
	defer cancel()
	return s.participantRepo.Save(ctx, p)
}

type dispatchItem struct {
	participant *domain.Participant
	record      *domain.GenerationRecord
}

// Dispatch emails every generated certificate whose participant is not yet marked sent.
// A failed send leaves the record pending for the next invocation. Concurrent dispatches of
// the same event run one after the other, so the second finds nothing left to send.
func (s *certificateService) Dispatch(ctx context.Context, eventID string) (*domain.StepResult, error) {
	unlock := s.locks.lock(eventID)
	defer unlock()

	in, res, err := s.load(ctx, eventID)
	if err != nil || in == nil {
		return res, err
	}
	event, tpl := in.event, in.template

	byID := make(map[string]*domain.Participant, len(in.participants))
	for _, p := range in.participants {
		byID[p.ID] = p
	}

	changed := false
	var pending []dispatchItem
	for _, rec := range tpl.Records {
		p, ok := byID[rec.ParticipantID]
		if !ok || !rec.Generated() {
			continue
		}
		// Either signal marks the participant done; repair whichever one a partial write lost.
		switch {
		case p.CertificateSent && rec.SentAt == nil:
			at := s.now()
			if p.CertificateSentAt != nil {
				at = *p.CertificateSentAt
			}
			rec.SentAt = &at
			changed = true
		case !p.CertificateSent && rec.SentAt != nil:
			p.MarkCertificateSent(*rec.SentAt)
			if err := s.saveParticipant(ctx, p); err != nil {
				s.logger.Warn("failed to repair participant sent flag", "event_id", eventID, "participant_id", p.ID, "err", err)
			}
		case !p.CertificateSent:
			pending = append(pending, dispatchItem{participant: p, record: rec})
		}
	}

	res.Total = len(pending)
	for _, item := range pending {
		p, rec := item.participant, item.record
		if err := s.send(ctx, p, event, rec.CertificatePath); err != nil {
			res.Failed++
			res.Results = append(res.Results, domain.ParticipantOutcome{
				ParticipantID:  p.ID,
				Email:          p.Email,
				Message:        err.Error(),
				CertificateURL: rec.CertificateURL,
			})
			s.logger.Warn("certificate email failed", "event_id", eventID, "participant_id", p.ID, "err", err)
			continue
		}

		now := s.now()
		rec.SentAt = &now
		p.MarkCertificateSent(now)
		changed = true
		outcome := domain.ParticipantOutcome{
			ParticipantID:  p.ID,
			Email:          p.Email,
			Success:        true,
			CertificateURL: rec.CertificateURL,
		}
		if err := s.saveParticipant(ctx, p); err != nil {
			// The record's SentAt, saved below, still prevents a second send.
			outcome.Message = "sent; participant update failed: " + err.Error()
			s.logger.Error("failed to persist participant after send", "event_id", eventID, "participant_id", p.ID, "err", err)
		}
		res.Successful++
		res.Results = append(res.Results, outcome)
	}

	if changed {
		if err := s.saveTemplate(ctx, res, tpl); err != nil {
			return res, err
		}
	}

	res.Success = true
	res.Status = domain.StatusCompleted
	res.Message = fmt.Sprintf("sent %d of %d certificates", res.Successful, res.Total)
	if res.Failed > 0 {
		res.Message += fmt.Sprintf(" (%d failed, will retry on next run)", res.Failed)
	}
	s.logger.Info("certificate dispatch finished",
		"event_id", eventID,
		"total", res.Total,
		"successful", res.Successful,
		"failed", res.Failed,
	)
	s.metrics.Sent(res.Successful, res.Failed)
	s.publish(ctx, domain.NotificationSent, event, res)
	return res, nil
}

func (s *certificateService) publish(ctx context.Context, name string, event *domain.Event, res *domain.StepResult) {
	notify.Safe(ctx, s.sink, s.logger, name, domain.StepSummary{
		EventID:    event.ID,
		EventName:  event.Name,
		Total:      res.Total,
		Successful: res.Successful,
		Failed:     res.Failed,
		At:         s.now(),
	})
}

// Status returns the event's participants and generation records. A missing template yields
// an empty record list.
func (s *certificateService) Status(ctx context.Context, eventID string) (*domain.CertificateStatus, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	participants, err := s.participantRepo.ListByEventID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	status := &domain.CertificateStatus{
		Event:        event,
		Participants: participants,
		Records:      []*domain.GenerationRecord{},
	}
	tpl, err := s.templateRepo.GetActiveByEventID(ctx, eventID)
	switch {
	case err == nil:
		status.TemplateType = tpl.TemplateType
		if tpl.Records != nil {
			status.Records = tpl.Records
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("get certificate template: %w", err)
	}
	return status, nil
}
