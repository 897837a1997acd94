package domain

import "context"

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailMessage is a rendered email ready for a Mailer.
type EmailMessage struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Mailer defines the contract for sending emails (infrastructure port).
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// CertificateEmailData holds data for the certificate email.
type CertificateEmailData struct {
	Email           string
	ParticipantName string
	EventName       string
	EventDate       string
}
