package email

import (
	"bytes"
	"fmt"

	jemail "github.com/jordan-wright/email"

	"eventcertificates/internal/domain"
)

// buildRawMessage encodes msg as the raw MIME document SES SendRawEmail expects: text and
// HTML alternatives plus one part per attachment.
func buildRawMessage(from string, msg *domain.EmailMessage) ([]byte, error) {
	e := jemail.NewEmail()
	e.From = from
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	if msg.Text != "" {
		e.Text = []byte(msg.Text)
	}
	if msg.HTML != "" {
		e.HTML = []byte(msg.HTML)
	}
	for _, a := range msg.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := e.Attach(bytes.NewReader(a.Data), a.Filename, contentType); err != nil {
			return nil, fmt.Errorf("attach %s: %w", a.Filename, err)
		}
	}
	return e.Bytes()
}
