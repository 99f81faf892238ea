package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subackFailure is the SUBACK return code for a rejected filter.
const subackFailure = 0x80

// Subscribe issues one batched subscribe for every filter in subs.
//
// Filters can include MQTT wildcards:
//   - + (single-level): "harmony/+/+/set" matches any device control command
//   - # (multi-level): "harmony/#" matches everything under the root
//
// Inbound messages on these filters go to EventHandlers.OnMessage.
// The subscription is not tracked here; the caller restores it after a
// reconnect.
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *PahoClient) Subscribe(ctx context.Context, subs []Subscription) error {
	if len(subs) == 0 {
		return nil
	}

	filters := make(map[string]byte, len(subs))
	for _, s := range subs {
		if err := ValidateFilter(s.Filter); err != nil {
			return err
		}
		if s.QoS > maxQoS {
			return ErrInvalidQoS
		}
		filters[s.Filter] = s.QoS
	}

	client := c.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	// nil callback routes messages to the default publish handler.
	token := client.SubscribeMultiple(filters, nil)
	if err := waitToken(ctx, token, defaultOperationTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		for filter, code := range st.Result() {
			if code == subackFailure {
				return fmt.Errorf("%w: broker rejected %q", ErrSubscribeFailed, filter)
			}
		}
	}

	return nil
}

// Unsubscribe issues one batched unsubscribe for filters.
//
// Any messages in flight may still be delivered after it returns.
func (c *PahoClient) Unsubscribe(ctx context.Context, filters []string) error {
	if len(filters) == 0 {
		return nil
	}
	for _, f := range filters {
		if f == "" {
			return ErrInvalidTopic
		}
	}

	client := c.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Unsubscribe(filters...)
	if err := waitToken(ctx, token, defaultOperationTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}
