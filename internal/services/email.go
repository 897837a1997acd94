package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"eventcertificates/internal/domain"
)

const certificateTemplate = "certificate"

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
	readFile func(name string) ([]byte, error)
}

// NewEmailService returns a CertificateSender that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.CertificateSender {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger, readFile: os.ReadFile}
}

// SendCertificate emails the rendered certificate at filePath to the participant using the
// "certificate" template.
func (s *emailService) SendCertificate(ctx context.Context, participant *domain.Participant, event *domain.Event, filePath string) error {
	if participant == nil || event == nil {
		return fmt.Errorf("participant and event are required")
	}
	if participant.Email == "" {
		return fmt.Errorf("participant %s has no email address", participant.ID)
	}
	data, err := s.readFile(filePath)
	if err != nil {
		return fmt.Errorf("read certificate file: %w", err)
	}
	subject, htmlBody, textBody, err := s.renderer.Render(certificateTemplate, &domain.CertificateEmailData{
		Email:           participant.Email,
		ParticipantName: participant.Name,
		EventName:       event.Name,
		EventDate:       event.Date.Format("January 2, 2006"),
	})
	if err != nil {
		return fmt.Errorf("failed to render certificate template: %w", err)
	}
	msg := &domain.EmailMessage{
		To:      participant.Email,
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
		Attachments: []domain.Attachment{{
			Filename:    filepath.Base(filePath),
			ContentType: contentTypeFor(filePath),
			Data:        data,
		}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send certificate email: %w", err)
	}
	s.logger.Debug("certificate email sent", "event_id", event.ID, "participant_id", participant.ID, "to", participant.Email)
	return nil
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
