package domain

import (
	"context"
	"time"
)

// Template types understood by the certificate renderer.
const (
	TemplateParticipation = "participation"
	TemplateCompletion    = "completion"
	TemplateSpeaker       = "speaker"
)

// IsKnownTemplateType reports whether the renderer supports the template type.
func IsKnownTemplateType(t string) bool {
	switch t {
	case TemplateParticipation, TemplateCompletion, TemplateSpeaker:
		return true
	}
	return false
}

// GenerationRecord tracks one rendered certificate for a participant under a template.
// A record with SentAt set is terminal for that participant.
// swagger:model GenerationRecord
type GenerationRecord struct {
	ParticipantID   string     `json:"participant_id"`
	CertificatePath string     `json:"certificate_path"`
	CertificateURL  string     `json:"certificate_url"`
	GeneratedAt     time.Time  `json:"generated_at"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
}

// Generated reports whether the record carries a rendered certificate.
func (r *GenerationRecord) Generated() bool {
	return !r.GeneratedAt.IsZero()
}

// CertificateTemplate is the active certificate configuration of an event together with
// its ordered generation records.
// swagger:model CertificateTemplate
type CertificateTemplate struct {
	ID           string              `json:"id"`
	EventID      string              `json:"event_id"`
	TemplateType string              `json:"template_type"`
	Active       bool                `json:"active"`
	Records      []*GenerationRecord `json:"records"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// RecordFor returns the generation record of the participant, or nil.
func (t *CertificateTemplate) RecordFor(participantID string) *GenerationRecord {
	for _, r := range t.Records {
		if r.ParticipantID == participantID {
			return r
		}
	}
	return nil
}

// AddRecord appends a record unless the participant already has one. It returns false when
// a record existed.
func (t *CertificateTemplate) AddRecord(rec *GenerationRecord) bool {
	if t.RecordFor(rec.ParticipantID) != nil {
		return false
	}
	t.Records = append(t.Records, rec)
	return true
}

// CertificateTemplateRepository defines storage operations for certificate templates and their records.
type CertificateTemplateRepository interface {
	// GetActiveByEventID returns the event's active template with its records loaded,
	// or ErrNotFound.
	GetActiveByEventID(ctx context.Context, eventID string) (*CertificateTemplate, error)
	Create(ctx context.Context, tpl *CertificateTemplate) error
	// Save upserts every record of the template.
	Save(ctx context.Context, tpl *CertificateTemplate) error
}

// RenderedCertificate is the output of a successful render.
type RenderedCertificate struct {
	FilePath  string
	PublicURL string
}

// CertificateRenderer produces a certificate file for a participant.
type CertificateRenderer interface {
	Render(ctx context.Context, participant *Participant, event *Event, templateType string) (*RenderedCertificate, error)
}

// CertificateSender emails a rendered certificate to a participant.
type CertificateSender interface {
	SendCertificate(ctx context.Context, participant *Participant, event *Event, filePath string) error
}

// StepStatus classifies the outcome of a certificate step.
type StepStatus string

const (
	StatusCompleted        StepStatus = "completed"
	StatusEventNotFound    StepStatus = "event_not_found"
	StatusTemplateNotFound StepStatus = "template_not_found"
	StatusFailed           StepStatus = "failed"
)

// ParticipantOutcome is the per-participant result of a step.
// swagger:model ParticipantOutcome
type ParticipantOutcome struct {
	ParticipantID  string `json:"participant_id"`
	Email          string `json:"email,omitempty"`
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	CertificateURL string `json:"certificate_url,omitempty"`
}

// StepResult is the structured summary every certificate step returns, including under partial failure.
// swagger:model StepResult
type StepResult struct {
	EventID    string               `json:"event_id"`
	Success    bool                 `json:"success"`
	Status     StepStatus           `json:"status"`
	Message    string               `json:"message"`
	Total      int                  `json:"total"`
	Successful int                  `json:"successful"`
	Failed     int                  `json:"failed"`
	Results    []ParticipantOutcome `json:"results"`
}

// NotFound reports whether the step stopped on a missing event or template.
func (r *StepResult) NotFound() bool {
	return r.Status == StatusEventNotFound || r.Status == StatusTemplateNotFound
}

// CertificateStatus is a read view of an event's certificate progress.
// swagger:model CertificateStatus
type CertificateStatus struct {
	Event        *Event              `json:"event"`
	TemplateType string              `json:"template_type"`
	Participants []*Participant      `json:"participants"`
	Records      []*GenerationRecord `json:"records"`
}

// CertificateService runs the certificate lifecycle steps for one event.
type CertificateService interface {
	// Generate renders certificates for participants lacking one. participantIDs optionally
	// restricts the run.
	Generate(ctx context.Context, eventID string, participantIDs []string) (*StepResult, error)
	// Dispatch emails generated-but-unsent certificates and marks them sent.
	Dispatch(ctx context.Context, eventID string) (*StepResult, error)
	Status(ctx context.Context, eventID string) (*CertificateStatus, error)
}
