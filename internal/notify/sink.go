package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eventcertificates/internal/domain"
)

// Envelope is the wire form of a published notification.
type Envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope wraps payload with a fresh message ID.
func NewEnvelope(name string, payload any) *Envelope {
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      name,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Envelope) marshal() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return body, nil
}

// Safe publishes to sink and swallows any failure (including a panic in the sink) after
// logging it. A nil sink does nothing.
func Safe(ctx context.Context, sink domain.NotificationSink, logger *slog.Logger, name string, payload any) {
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("notification sink panicked", "notification", name, "panic", r)
		}
	}()
	if err := sink.Publish(ctx, name, payload); err != nil {
		logger.Warn("failed to publish notification", "notification", name, "err", err)
	}
}

type multiSink []domain.NotificationSink

// Multi fans a notification out to every non-nil sink. It returns nil when no sink remains.
func Multi(sinks ...domain.NotificationSink) domain.NotificationSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

func (m multiSink) Publish(ctx context.Context, name string, payload any) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to a logger. Useful when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Publish(ctx context.Context, name string, payload any) error {
	s.Logger.InfoContext(ctx, "notification", "name", name, "payload", payload)
	return nil
}
