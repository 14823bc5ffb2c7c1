package service

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ashuthecoder/cybervantage-api/internal/models"
)

func TestEventPublisherWithoutConnectionDropsEvents(t *testing.T) {
	publisher := NewEventPublisher(nil, "", zerolog.New(io.Discard))
	impl, ok := publisher.(*natsEventPublisher)
	require.True(t, ok)
	require.Equal(t, DefaultEventSubject, impl.subject)

	require.NotPanics(t, func() {
		publisher.Publish(models.SimulationEvent{Type: "started", SimulationID: "sim-1", UserID: 1})
	})
}
