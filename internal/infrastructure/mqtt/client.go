package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// PahoClient implements BrokerClient over paho.mqtt.golang.
//
// A new paho client is created for every Connect so each session carries
// fresh options (client ID, will, TLS). Paho's own reconnect logic is
// disabled.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Event handlers run on paho goroutines; messages are delivered
//     concurrently (order is not preserved across topics).
type PahoClient struct {
	client pahomqtt.Client
	mu     sync.RWMutex

	handlers   EventHandlers
	handlersMu sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// NewPahoClient returns an unconnected client.
func NewPahoClient() *PahoClient {
	return &PahoClient{}
}

// Connect establishes a session with the MQTT broker.
//
// It performs the following setup:
//  1. Translates ConnectOptions into paho options (URL, auth, TLS, will)
//  2. Disables paho auto-reconnect and connect retry
//  3. Attempts a single connection bounded by ctx and the connect timeout
//
// Returns:
//   - error: ErrConnectionFailed wrapping the cause, or ErrTimeout
func (c *PahoClient) Connect(ctx context.Context, opts *ConnectOptions) error {
	if opts == nil {
		return fmt.Errorf("%w: connect options are required", ErrConfiguration)
	}

	po := buildClientOptions(opts)
	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	po.SetDefaultPublishHandler(c.handleMessage)

	client := pahomqtt.NewClient(po)
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	if err := waitToken(ctx, client.Connect(), timeout); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.mu.Lock()
	previous := c.client
	c.client = client
	c.mu.Unlock()

	if previous != nil && previous.IsConnectionOpen() {
		previous.Disconnect(0)
	}

	return nil
}

// Disconnect ends the session, waiting up to the quiesce period for
// in-flight work. It is a no-op when not connected.
func (c *PahoClient) Disconnect(ctx context.Context) error {
	client := c.current()
	if client == nil || !client.IsConnectionOpen() {
		return nil
	}

	done := make(chan struct{})
	go func() {
		client.Disconnect(defaultDisconnectQuiesce)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt disconnect: %w", ctx.Err())
	}
}

// Close drops the paho handle. A connection that is still open is torn down
// without quiesce. Calling Close again is a no-op.
func (c *PahoClient) Close() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(0)
	}
	return nil
}

// IsConnected returns the current connection state.
func (c *PahoClient) IsConnected() bool {
	client := c.current()
	return client != nil && client.IsConnectionOpen()
}

// SetEventHandlers replaces the session event callbacks.
func (c *PahoClient) SetEventHandlers(h EventHandlers) {
	c.handlersMu.Lock()
	c.handlers = h
	c.handlersMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (c *PahoClient) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *PahoClient) current() pahomqtt.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

func (c *PahoClient) getHandlers() EventHandlers {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	return c.handlers
}

// getLogger returns the current logger (may be nil).
func (c *PahoClient) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *PahoClient) handleConnect() {
	if h := c.getHandlers(); h.OnConnect != nil {
		h.OnConnect()
	}
}

func (c *PahoClient) handleConnectionLost(err error) {
	if h := c.getHandlers(); h.OnConnectionLost != nil {
		h.OnConnectionLost(err)
	}
}

// handleMessage forwards an inbound publish with panic recovery.
func (c *PahoClient) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	if h := c.getHandlers(); h.OnMessage != nil {
		h.OnMessage(msg.Topic(), msg.Payload())
	}
}

// buildClientOptions creates paho MQTT options from ConnectOptions.
//
// This configures:
//   - Broker URL and client ID
//   - Authentication credentials (only when both are set)
//   - TLS configuration (if present)
//   - Last will
//   - Clean session, keepalive, and connect timeout
//   - No auto-reconnect: the lifecycle supervisor owns retry
func buildClientOptions(opts *ConnectOptions) *pahomqtt.ClientOptions {
	po := pahomqtt.NewClientOptions()
	po.AddBroker(opts.BrokerURL)
	po.SetClientID(opts.ClientID)

	if opts.HasCredentials() {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	if opts.TLSConfig != nil {
		po.SetTLSConfig(opts.TLSConfig)
	}

	if w := opts.Will; w != nil {
		po.SetBinaryWill(w.Topic, w.Payload, w.QoS, w.Retained)
	}

	po.SetCleanSession(opts.CleanSession)
	po.SetAutoReconnect(false)
	po.SetConnectRetry(false)
	po.SetResumeSubs(false)
	po.SetOrderMatters(false)

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	po.SetKeepAlive(keepAlive)

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	po.SetConnectTimeout(connectTimeout)

	return po
}

// waitToken blocks until token completes, ctx is cancelled, or timeout elapses.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

var _ BrokerClient = (*PahoClient)(nil)
