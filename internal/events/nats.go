package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NewNATS constructs a publisher on an established connection.
func NewNATS(log *slog.Logger, nc *nats.Conn) Publisher {
	return &natsPublisher{log: log, nc: nc}
}

type natsPublisher struct {
	log *slog.Logger
	nc  *nats.Conn
}

func (p *natsPublisher) Publish(_ context.Context, event Interaction) error {
	if p.nc == nil {
		return errors.New("nats connection required")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(Subject, body); err != nil {
		return err
	}
	p.log.Debug("interaction published", "id", event.ID, "subject", Subject)
	return nil
}

func (p *natsPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
