package domain

import (
	"context"
	"time"
)

// Participant is a person registered to an event and eligible for a certificate.
// CertificateSent is the authoritative "done" signal for both certificate steps.
// swagger:model Participant
type Participant struct {
	ID                string     `json:"id"`
	EventID           string     `json:"event_id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	CertificateSent   bool       `json:"certificate_sent"`
	CertificateSentAt *time.Time `json:"certificate_sent_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// NewParticipant creates a new Participant. ID is typically set by the repository on create.
func NewParticipant(eventID, name, email string, createdAt time.Time) *Participant {
	return &Participant{
		EventID:   eventID,
		Name:      name,
		Email:     email,
		CreatedAt: createdAt,
	}
}

// MarkCertificateSent flags the participant as done at the given time.
func (p *Participant) MarkCertificateSent(at time.Time) {
	p.CertificateSent = true
	p.CertificateSentAt = &at
}

// ParticipantRepository defines storage operations for participants.
type ParticipantRepository interface {
	Create(ctx context.Context, participant *Participant) error
	ListByEventID(ctx context.Context, eventID string) ([]*Participant, error)
	// Save persists the participant's certificate status.
	Save(ctx context.Context, participant *Participant) error
}
