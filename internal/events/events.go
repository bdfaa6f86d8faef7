package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"quantumquery/internal/retry"
)

// Subject is the NATS subject interactions are published on.
const Subject = "quantumquery.interactions"

// Interaction describes one answered (or failed) question. It never carries
// the API key, the question text or the answer.
type Interaction struct {
	ID         uuid.UUID `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	HasPDF     bool      `json:"has_pdf"`
	HasImage   bool      `json:"has_image"`
	Warnings   int       `json:"warnings"`
	OK         bool      `json:"ok"`
	StatusCode int       `json:"status_code,omitempty"`
	Model      string    `json:"model,omitempty"`
}

// Publisher emits interaction events.
type Publisher interface {
	Publish(ctx context.Context, event Interaction) error
	Close() error
}

// PublishWithRetry attempts to publish with retries and exponential backoff.
func PublishWithRetry(ctx context.Context, p Publisher, event Interaction, attempts int, base time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if err := p.Publish(ctx, event); err == nil {
			return nil
		} else if attempt == attempts-1 {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, base)):
		}
	}
	return nil
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Interaction) error { return nil }

func (NoopPublisher) Close() error { return nil }
