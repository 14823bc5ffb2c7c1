package service

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

// DefaultEventSubject is the NATS subject simulation lifecycle events are published on.
const DefaultEventSubject = "cybervantage.simulation.events"

// EventPublisher fans simulation lifecycle events out to other processes.
type EventPublisher interface {
	Publish(event models.SimulationEvent)
}

type natsEventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewEventPublisher publishes on NATS. A nil connection yields a publisher that drops events.
func NewEventPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) EventPublisher {
	if subject == "" {
		subject = DefaultEventSubject
	}
	return &natsEventPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsEventPublisher) Publish(event models.SimulationEvent) {
	if p.conn == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode simulation event")
		return
	}
	if err := p.conn.Publish(p.subject+"."+event.Type, payload); err != nil {
		p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish simulation event")
	}
}
