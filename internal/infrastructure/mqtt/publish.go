package mqtt

import (
	"context"
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the broker and waits for the acknowledgement
// its QoS requires.
//
// Retained Messages:
//   - When true, broker stores the last message for each topic
//   - New subscribers immediately receive the retained message
//   - Use for state topics (connection status, control values)
//   - Don't use for commands
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *PahoClient) Publish(ctx context.Context, msg Message) error {
	if err := ValidateTopic(msg.Topic); err != nil {
		return err
	}
	if msg.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if len(msg.Payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(msg.Payload), maxPayloadSize)
	}

	client := c.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if err := waitToken(ctx, token, defaultOperationTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
