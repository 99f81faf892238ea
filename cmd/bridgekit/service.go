package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-bridgekit/internal/device"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-bridgekit/internal/lifecycle"
)

// echoTimeout bounds a value publish made from the message handler.
const echoTimeout = 5 * time.Second

// publisher is the part of the lifecycle controller the virtual hub uses.
type publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
}

// virtualHub is a loopback derived service. It stands in for a real device
// bridge: commands are validated against the hub schema and the accepted
// value is echoed as retained state, as a device acknowledging it would.
type virtualHub struct {
	registry *device.Registry
	topics   mqtt.Topics
	logger   *logging.Logger
	schema   []byte
	pub      publisher
}

// newVirtualHub encodes the schema once; it does not change while running.
func newVirtualHub(registry *device.Registry, topicRoot string, logger *logging.Logger) (*virtualHub, error) {
	schema, err := registry.Hub().EncodeJSON()
	if err != nil {
		return nil, err
	}
	return &virtualHub{
		registry: registry,
		topics:   mqtt.Topics{Root: topicRoot},
		logger:   logger.With("component", "virtual_hub"),
		schema:   schema,
	}, nil
}

// bind sets the publisher. It must be called before the controller starts.
func (h *virtualHub) bind(pub publisher) {
	h.pub = pub
}

// OnServiceStart publishes the hub schema retained on {root}/hub.
func (h *virtualHub) OnServiceStart(ctx context.Context) error {
	if err := h.pub.Publish(ctx, h.topics.Hub(), h.schema, true); err != nil {
		return fmt.Errorf("publishing hub schema: %w", err)
	}
	h.logger.Info("virtual hub online",
		"hub", h.registry.Hub().Name,
		"controls", h.registry.ControlCount(),
	)
	return nil
}

// OnServiceStop leaves retained state in place so values survive restarts.
func (h *virtualHub) OnServiceStop(context.Context) error {
	h.logger.Info("virtual hub offline", "values_held", len(h.registry.Values()))
	return nil
}

// HandleMessage applies a command and echoes the accepted value.
// Commands for unknown topics are ignored.
func (h *virtualHub) HandleMessage(topic string, payload []byte) error {
	update, err := h.registry.Apply(topic, payload)
	if err != nil {
		if errors.Is(err, device.ErrControlNotFound) {
			h.logger.Debug("command for unknown control ignored", "topic", topic)
			return nil
		}
		return err
	}

	if !update.Publishable() {
		h.logger.Info("command accepted", "device", update.Device, "control", update.Control.ID)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), echoTimeout)
	defer cancel()
	if err := h.pub.Publish(ctx, update.Control.ValueTopic, []byte(update.Value), true); err != nil {
		return fmt.Errorf("echoing %s: %w", update.Control.ValueTopic, err)
	}

	h.logger.Info("control updated",
		"device", update.Device,
		"control", update.Control.ID,
		"value", update.Value,
		"changed", update.Changed,
	)
	return nil
}

// defaultHub is served when no hub file is configured.
func defaultHub(name string) *device.Hub {
	return &device.Hub{
		Name: name,
		Devices: []*device.Device{
			{
				Name: "Virtual Lamp",
				Controls: []*device.Control{
					device.NewBinarySwitch("power", "Power"),
					device.NewDimmer("level", "Brightness"),
				},
			},
			{
				Name: "Virtual Receiver",
				Controls: []*device.Control{
					device.NewBinarySwitch("power", "Power"),
					device.NewSelector("input", "Input", map[string]string{
						"hdmi1": "HDMI 1",
						"hdmi2": "HDMI 2",
						"tuner": "Tuner",
					}),
					device.NewButton("mute", "Mute"),
				},
			},
		},
	}
}

var _ lifecycle.Service = (*virtualHub)(nil)
