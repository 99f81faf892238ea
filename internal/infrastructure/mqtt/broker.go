package mqtt

import "context"

// BrokerClient is the broker session capability the lifecycle layer drives.
//
// Implementations own the wire protocol. They must not reconnect on their
// own: retry and resubscription are decided by the caller.
type BrokerClient interface {
	// Connect opens a session with opts. It returns once the broker has
	// acknowledged the session or the attempt has failed.
	Connect(ctx context.Context, opts *ConnectOptions) error

	// Publish sends one message.
	Publish(ctx context.Context, msg Message) error

	// Subscribe issues a single batched subscribe for subs.
	Subscribe(ctx context.Context, subs []Subscription) error

	// Unsubscribe issues a single batched unsubscribe for filters.
	Unsubscribe(ctx context.Context, filters []string) error

	// Disconnect ends the session cleanly. It is a no-op when not connected.
	Disconnect(ctx context.Context) error

	// Close releases the underlying handle. Calling it again is a no-op.
	Close() error

	// IsConnected reports whether a session is currently open.
	IsConnected() bool

	// SetEventHandlers replaces the session event callbacks.
	SetEventHandlers(h EventHandlers)
}

// EventHandlers are invoked from broker client goroutines.
// Any of them may be nil.
type EventHandlers struct {
	// OnConnect fires after a session has been established.
	OnConnect func()

	// OnConnectionLost fires when an established session drops without
	// a call to Disconnect.
	OnConnectionLost func(err error)

	// OnMessage receives every inbound publish.
	OnMessage func(topic string, payload []byte)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}
