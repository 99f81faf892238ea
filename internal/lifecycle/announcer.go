package lifecycle

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
)

// StatusAnnouncer publishes the service's liveness on {root}/connected.
// Every status message is retained at QoS 1 so late subscribers see the
// current state.
type StatusAnnouncer struct {
	client mqtt.BrokerClient
	topics mqtt.Topics
}

// NewStatusAnnouncer returns an announcer for the given topic root.
func NewStatusAnnouncer(client mqtt.BrokerClient, topicRoot string) *StatusAnnouncer {
	return &StatusAnnouncer{
		client: client,
		topics: mqtt.Topics{Root: topicRoot},
	}
}

// Topic returns the status topic.
func (a *StatusAnnouncer) Topic() string {
	return a.topics.Connected()
}

// Will returns the message the broker publishes if the session dies
// without a clean disconnect.
func (a *StatusAnnouncer) Will() mqtt.Message {
	return a.message(mqtt.Disconnected)
}

// AnnounceConnected publishes ConnectedBrokerAndDevice.
func (a *StatusAnnouncer) AnnounceConnected(ctx context.Context) error {
	return a.Announce(ctx, mqtt.ConnectedBrokerAndDevice)
}

// AnnounceDisconnected publishes Disconnected.
func (a *StatusAnnouncer) AnnounceDisconnected(ctx context.Context) error {
	return a.Announce(ctx, mqtt.Disconnected)
}

// Announce publishes state on the status topic.
func (a *StatusAnnouncer) Announce(ctx context.Context, state mqtt.ConnectionState) error {
	if err := a.client.Publish(ctx, a.message(state)); err != nil {
		return fmt.Errorf("announcing %s: %w", state, err)
	}
	return nil
}

func (a *StatusAnnouncer) message(state mqtt.ConnectionState) mqtt.Message {
	return mqtt.Message{
		Topic:    a.Topic(),
		Payload:  state.Payload(),
		QoS:      mqtt.QoSAtLeastOnce,
		Retained: true,
	}
}
