package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"eventcertificates/internal/domain"
)

type eventService struct {
	eventRepo       domain.EventRepository
	participantRepo domain.ParticipantRepository
	templateRepo    domain.CertificateTemplateRepository
	planner         domain.CertificatePlanner
	logger          *slog.Logger
	contextTimeout  time.Duration
}

// NewEventService returns an EventService. planner may be nil when no one-shot runs should
// be registered (CLI usage).
func NewEventService(eventRepo domain.EventRepository,
	participantRepo domain.ParticipantRepository,
	templateRepo domain.CertificateTemplateRepository,
	planner domain.CertificatePlanner,
	logger *slog.Logger,
	timeout time.Duration,
) domain.EventService {
	return &eventService{
		eventRepo:       eventRepo,
		participantRepo: participantRepo,
		templateRepo:    templateRepo,
		planner:         planner,
		logger:          logger,
		contextTimeout:  timeout,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, event *domain.Event, templateType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if event.OwnerID == "" {
		return fmt.Errorf("event owner is required")
	}
	if templateType == "" {
		templateType = domain.TemplateParticipation
	}
	if !domain.IsKnownTemplateType(templateType) {
		return fmt.Errorf("unknown certificate template type %q", templateType)
	}

	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	tpl := &domain.CertificateTemplate{
		EventID:      event.ID,
		TemplateType: templateType,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.templateRepo.Create(ctx, tpl); err != nil {
		err = fmt.Errorf("create certificate template: %w", err)
		// An event without a template can never produce certificates.
		if delErr := s.removeEvent(ctx, event.ID); delErr != nil {
			s.logger.Error("failed to remove event after template creation failed", "event_id", event.ID, "err", delErr)
			return errors.Join(err, fmt.Errorf("remove event: %w", delErr))
		}
		return err
	}

	s.plan(event)
	return nil
}

func (s *eventService) removeEvent(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.contextTimeout)
	defer cancel()
	return s.eventRepo.Delete(ctx, eventID)
}

// plan registers the one-shot run. Failing to plan is not fatal: the recurring trigger still
// covers the event.
func (s *eventService) plan(event *domain.Event) bool {
	if s.planner == nil {
		return false
	}
	planned, err := s.planner.PlanEvent(event)
	if err != nil {
		s.logger.Warn("failed to plan certificate run", "event_id", event.ID, "err", err)
		return false
	}
	return planned
}

func (s *eventService) ownedEvent(ctx context.Context, eventID, ownerID string) (*domain.Event, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if event.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return event, nil
}

func (s *eventService) GetEvent(ctx context.Context, eventID, ownerID string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	return s.ownedEvent(ctx, eventID, ownerID)
}

func (s *eventService) DeleteEvent(ctx context.Context, eventID, ownerID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := s.ownedEvent(ctx, eventID, ownerID); err != nil {
		return err
	}
	if err := s.eventRepo.Delete(ctx, eventID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete event: %w", err)
	}
	if s.planner != nil {
		s.planner.CancelEvent(eventID)
	}
	return nil
}

func (s *eventService) AddParticipant(ctx context.Context, eventID, ownerID string, participant *domain.Participant) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := s.ownedEvent(ctx, eventID, ownerID); err != nil {
		return err
	}
	participant.EventID = eventID
	participant.Email = strings.TrimSpace(strings.ToLower(participant.Email))
	participant.Name = strings.TrimSpace(participant.Name)
	if participant.CreatedAt.IsZero() {
		participant.CreatedAt = time.Now()
	}
	if err := s.participantRepo.Create(ctx, participant); err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (s *eventService) Replan(ctx context.Context, eventID, ownerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := s.ownedEvent(ctx, eventID, ownerID)
	if err != nil {
		return false, err
	}
	if s.planner == nil {
		return false, nil
	}
	planned, err := s.planner.PlanEvent(event)
	if err != nil {
		return false, fmt.Errorf("plan certificate run: %w", err)
	}
	return planned, nil
}

func (s *eventService) Unplan(ctx context.Context, eventID, ownerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := s.ownedEvent(ctx, eventID, ownerID); err != nil {
		return false, err
	}
	if s.planner == nil {
		return false, nil
	}
	return s.planner.CancelEvent(eventID), nil
}
