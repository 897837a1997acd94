package domain

import (
	"context"
	"time"
)

// Notification names published after each step.
const (
	NotificationGenerated = "certificates.generated"
	NotificationSent      = "certificates.sent"
)

// NotificationSink fans out step summaries to connected clients. Delivery is best-effort:
// callers log a returned error and carry on.
type NotificationSink interface {
	Publish(ctx context.Context, name string, payload any) error
}

// StepSummary is the payload published for a finished step.
type StepSummary struct {
	EventID    string    `json:"event_id"`
	EventName  string    `json:"event_name"`
	Total      int       `json:"total"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	At         time.Time `json:"at"`
}
