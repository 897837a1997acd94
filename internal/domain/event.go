package domain

import (
	"context"
	"time"
)

// Event represents a scheduled activity whose participants receive certificates.
// Date carries civil-date semantics only; its time-of-day is not authoritative.
// swagger:model Event
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	Description *string   `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewEvent returns a new Event with the given fields. ID is typically set by the repository on create.
func NewEvent(name string, date time.Time, ownerID string, createdAt, updatedAt time.Time) *Event {
	return &Event{
		Name:      name,
		Date:      date,
		OwnerID:   ownerID,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

// EventRepository defines the interface for event storage
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	// ListByDateRange returns events whose civil date falls in [from, to], both inclusive.
	ListByDateRange(ctx context.Context, from, to time.Time) ([]*Event, error)
	Delete(ctx context.Context, id string) error
}

// EventService defines event management operations exposed to the HTTP layer.
type EventService interface {
	// CreateEvent stores the event with an active certificate template of templateType and
	// plans its one-shot certificate run.
	CreateEvent(ctx context.Context, event *Event, templateType string) error
	// GetEvent returns the event if ownerID owns it: ErrNotFound or ErrForbidden otherwise.
	GetEvent(ctx context.Context, eventID, ownerID string) (*Event, error)
	DeleteEvent(ctx context.Context, eventID, ownerID string) error
	AddParticipant(ctx context.Context, eventID, ownerID string, participant *Participant) error
	// Replan re-registers the event's one-shot run; planned is false when its generation
	// time has already passed.
	Replan(ctx context.Context, eventID, ownerID string) (planned bool, err error)
	Unplan(ctx context.Context, eventID, ownerID string) (cancelled bool, err error)
}

// CertificatePlanner registers per-event one-shot certificate runs.
type CertificatePlanner interface {
	// PlanEvent schedules the event's runs, replacing any previous plan. It returns false
	// without error when the generation time has already passed.
	PlanEvent(event *Event) (bool, error)
	CancelEvent(eventID string) bool
}
