package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
)

var (
	// errConnectionClosed stands in for a nil cause from the broker client.
	errConnectionClosed = errors.New("connection closed")

	// errSessionDropped reports a session lost before subscriptions were applied.
	errSessionDropped = fmt.Errorf("%w: session dropped before it was ready", mqtt.ErrConnectionFailed)
)

// Options configures a Controller.
type Options struct {
	// Service receives the lifecycle hooks and inbound messages. Required.
	Service Service

	// Endpoint is the broker to connect to.
	Endpoint mqtt.BrokerEndpoint

	// TopicRoot scopes the status topic and everything the service owns. Required.
	TopicRoot string

	// Filters are declared up front and subscribed on every connect.
	Filters []string

	// Policy applies to unexpected disconnects while running.
	Policy DisconnectPolicy

	// Client defaults to mqtt.NewPahoClient().
	Client mqtt.BrokerClient

	// Logger defaults to logging.Default().
	Logger *logging.Logger

	// ClientID defaults to a random UUID.
	ClientID string
}

// Controller runs a Service against a broker session.
//
// It sequences startup (options, subscriptions, connect, announce, service
// start) and shutdown (service stop, announce, unsubscribe, disconnect,
// release), and reacts to unexpected disconnects according to its policy.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Broker events and Start/Stop are serialised by one lock that guards the
//     phase, the connection state, and the subscription set.
//   - The lock is never held while service hooks run, so hooks may call
//     Publish, Subscribe, and Unsubscribe.
type Controller struct {
	service   Service
	client    mqtt.BrokerClient
	logger    *logging.Logger
	clientID  string
	topicRoot string
	policy    DisconnectPolicy

	supervisor *Supervisor
	subs       *SubscriptionManager
	announcer  *StatusAnnouncer

	mu           sync.Mutex
	phase        Phase
	declared     []string
	opts         *mqtt.ConnectOptions
	runCtx       context.Context    // cancelled when the current run ends
	runCancel    context.CancelFunc // cancels runCtx
	startDone    chan struct{}      // closed when the pending Start returns
	reconnecting bool

	// wg tracks reconnect goroutines.
	wg sync.WaitGroup

	fatal chan error
}

// New creates a Controller in the Idle phase.
// Call Start to connect and start the service.
func New(opts Options) (*Controller, error) {
	if opts.Service == nil {
		return nil, ErrNoService
	}
	if opts.TopicRoot == "" {
		return nil, ErrNoTopicRoot
	}
	if err := mqtt.ValidateTopic(opts.TopicRoot); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoTopicRoot, err)
	}

	declared, err := normalise(opts.Filters)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("component", "lifecycle", "topic_root", opts.TopicRoot)

	client := opts.Client
	if client == nil {
		paho := mqtt.NewPahoClient()
		paho.SetLogger(logger)
		client = paho
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	c := &Controller{
		service:   opts.Service,
		client:    client,
		logger:    logger,
		clientID:  clientID,
		topicRoot: opts.TopicRoot,
		policy:    opts.Policy,
		declared:  declared,
		announcer: NewStatusAnnouncer(client, opts.TopicRoot),
		fatal:     make(chan error, 1),
	}
	c.supervisor = NewSupervisor(SupervisorOptions{
		Client:   client,
		Endpoint: opts.Endpoint,
		ClientID: clientID,
		Will:     c.announcer.Will(),
		Policy:   opts.Policy,
		Logger:   logger,
	})
	c.subs = NewSubscriptionManager(client, c.supervisor.Connected, logger)

	return c, nil
}

// Declare adds filters to the set subscribed on every connect.
// It is only valid while Idle; use Subscribe on a running controller.
func (c *Controller) Declare(filters ...string) error {
	unique, err := normalise(filters)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIdle {
		return fmt.Errorf("%w: declare while %s", ErrInvalidLifecycleTransition, c.phase)
	}
	c.declared = dedupe(append(c.declared, unique...))
	return nil
}

// Start connects to the broker and starts the service.
//
// It performs, in order:
//  1. Option building (TLS, certificates); errors here abort with no broker calls
//  2. Recording the declared subscriptions
//  3. Connecting, retrying at the reconnect delay until success
//  4. Applying subscriptions and announcing the connected status
//  5. Calling Service.OnServiceStart
//
// Connection failures are retried, not returned, unless the policy is
// PolicyFailFast. A failed subscribe, a hook error, a cancelled ctx, or a
// concurrent Stop tears everything down again and leaves the controller Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: start while %s", ErrInvalidLifecycleTransition, phase)
	}

	opts, err := c.supervisor.BuildOptions()
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("invalid broker configuration", "error", err)
		return err
	}

	c.supervisor.reset()
	c.client.SetEventHandlers(mqtt.EventHandlers{
		OnConnect:        c.handleConnect,
		OnConnectionLost: c.handleConnectionLost,
		OnMessage:        c.handleMessage,
	})
	if err := c.subs.SubscribeAll(ctx, c.declared); err != nil {
		c.mu.Unlock()
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.runCtx, c.runCancel = runCtx, runCancel
	c.startDone = done
	c.opts = opts
	c.phase = PhaseStarting
	c.mu.Unlock()
	defer close(done)

	c.logger.Info("starting service",
		"broker", opts.BrokerURL,
		"client_id", c.clientID,
		"policy", c.policy.String(),
	)

	// Stop cancels runCtx, which must also abort the pending start.
	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopAfter := context.AfterFunc(runCtx, cancel)
	defer stopAfter()

	if err := c.connectForStart(startCtx, opts); err != nil {
		c.abortStart(ctx, false)
		return err
	}

	if err := cancelled(runCtx, startCtx); err != nil {
		c.abortStart(ctx, false)
		return fmt.Errorf("start cancelled: %w", err)
	}

	if err := c.service.OnServiceStart(startCtx); err != nil {
		c.logger.Error("service start failed", "error", err)
		c.abortStart(ctx, false)
		return fmt.Errorf("starting service: %w", err)
	}

	c.mu.Lock()
	if err := cancelled(runCtx, startCtx); err != nil {
		c.mu.Unlock()
		c.abortStart(ctx, true)
		return fmt.Errorf("start cancelled: %w", err)
	}
	c.phase = PhaseRunning
	if !c.supervisor.Connected() {
		// Lost while OnServiceStart ran; handleConnectionLost left it to us.
		c.logger.Error("broker connection lost during start", "policy", c.policy.String())
		c.recoverLocked(errSessionDropped)
	}
	c.mu.Unlock()

	c.logger.Info("service started")
	return nil
}

// connectForStart connects and applies subscriptions. A session that drops
// before it is ready is retried under PolicyReconnect and reported under
// PolicyFailFast.
func (c *Controller) connectForStart(ctx context.Context, opts *mqtt.ConnectOptions) error {
	for {
		if err := c.supervisor.Connect(ctx, opts); err != nil {
			return err
		}

		err := c.onConnected(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errSessionDropped) && c.policy == PolicyReconnect:
			c.logger.Warn("broker session dropped during start, reconnecting")
		default:
			c.logger.Error("broker session setup failed", "error", err)
			return err
		}
	}
}

// Stop stops the service and closes the broker session.
//
// Sequence: OnServiceStop, announce disconnected, unsubscribe all,
// disconnect, release the client. Failures along the way are logged and
// never returned; the client is released on every path.
//
// OnServiceStop receives ctx. The broker steps ignore its cancellation and
// are bounded by the client's own timeouts, so a cancelled Stop still
// publishes the disconnected status before closing the session.
//
// Stop from Idle fails with ErrInvalidLifecycleTransition. Stop while
// Starting cancels the pending Start and waits for its teardown, returning
// ctx's error only if that wait is abandoned.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseIdle, PhaseStopping:
		phase := c.phase
		c.mu.Unlock()
		return fmt.Errorf("%w: stop while %s", ErrInvalidLifecycleTransition, phase)

	case PhaseStarting:
		done := c.startDone
		c.runCancel()
		c.mu.Unlock()

		c.logger.Info("stop requested during start")
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for start to abort: %w", ctx.Err())
		}
	}

	c.phase = PhaseStopping
	c.mu.Unlock()

	c.logger.Info("stopping service")
	c.teardown(ctx, true)
	c.logger.Info("service stopped")
	return nil
}

// Publish sends a QoS 1 message on behalf of the service.
func (c *Controller) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	c.mu.Lock()
	connected := c.supervisor.Connected()
	c.mu.Unlock()

	if !connected {
		return mqtt.ErrNotConnected
	}
	return c.client.Publish(ctx, mqtt.Message{
		Topic:    topic,
		Payload:  payload,
		QoS:      mqtt.QoSAtLeastOnce,
		Retained: retained,
	})
}

// Subscribe adds filters at runtime. They are applied now when connected
// and on every later connect.
func (c *Controller) Subscribe(ctx context.Context, filters ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.phase.active() {
		return fmt.Errorf("%w: subscribe while %s", ErrInvalidLifecycleTransition, c.phase)
	}
	return c.subs.SubscribeAll(ctx, filters)
}

// Unsubscribe removes filters at runtime.
func (c *Controller) Unsubscribe(ctx context.Context, filters ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.phase.active() {
		return fmt.Errorf("%w: unsubscribe while %s", ErrInvalidLifecycleTransition, c.phase)
	}
	return c.subs.UnsubscribeAll(ctx, filters)
}

// Subscriptions returns the currently held filters in insertion order.
func (c *Controller) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs.Filters()
}

// State returns the current connection state.
func (c *Controller) State() mqtt.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.supervisor.State()
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ClientID returns the broker client identifier.
func (c *Controller) ClientID() string {
	return c.clientID
}

// TopicRoot returns the topic root.
func (c *Controller) TopicRoot() string {
	return c.topicRoot
}

// Topics returns the topic builders for this controller's root.
func (c *Controller) Topics() mqtt.Topics {
	return mqtt.Topics{Root: c.topicRoot}
}

// Fatal delivers the error that ended a PolicyFailFast session.
// At most one error is buffered.
func (c *Controller) Fatal() <-chan error {
	return c.fatal
}

// onConnected applies subscriptions and announces after a successful connect.
//
// While Starting, a failed subscribe is returned before anything is
// announced. While Running it is logged and the status is still announced;
// the held set is retried on the next connect. errSessionDropped means the
// session went away before it could be used.
func (c *Controller) onConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.phase.active() || c.supervisor.Connected() {
		return nil
	}
	if !c.client.IsConnected() {
		return errSessionDropped
	}
	c.supervisor.setState(mqtt.ConnectedBrokerAndDevice)

	if err := c.subs.Resubscribe(ctx); err != nil {
		if !c.client.IsConnected() {
			c.supervisor.setState(mqtt.Disconnected)
			return errSessionDropped
		}
		if !errors.Is(err, mqtt.ErrSubscribeFailed) {
			err = fmt.Errorf("%w: %w", mqtt.ErrSubscribeFailed, err)
		}
		if c.phase == PhaseStarting {
			return err
		}
		c.logger.Warn("restoring subscriptions failed", "error", err)
	}
	if err := c.announcer.AnnounceConnected(ctx); err != nil {
		c.logger.Warn("announcing connected status failed", "error", err)
	}
	return nil
}

// cancelled returns the first error among ctxs. runCtx is checked directly
// because the AfterFunc propagating it to the start context runs
// asynchronously.
func cancelled(ctxs ...context.Context) error {
	for _, ctx := range ctxs {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// abortStart tears down a start that failed after the options were built.
// OnServiceStop, if due, also runs when ctx is already cancelled.
func (c *Controller) abortStart(ctx context.Context, serviceStarted bool) {
	c.logger.Warn("start aborted, tearing down")
	c.teardown(context.WithoutCancel(ctx), serviceStarted)
}

// teardown runs the shutdown sequence and leaves the controller Idle.
func (c *Controller) teardown(ctx context.Context, stopService bool) {
	var errs error

	c.mu.Lock()
	c.phase = PhaseStopping
	runCancel := c.runCancel
	c.mu.Unlock()

	// No new reconnects from here on.
	runCancel()

	if stopService {
		if err := c.service.OnServiceStop(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stopping service: %w", err))
		}
	}

	c.wg.Wait()

	brokerCtx := context.WithoutCancel(ctx)

	c.mu.Lock()
	if c.supervisor.Connected() {
		errs = multierr.Append(errs, c.announcer.AnnounceDisconnected(brokerCtx))
	}
	errs = multierr.Append(errs, c.subs.UnsubscribeAll(brokerCtx, c.subs.Filters()))
	errs = multierr.Append(errs, c.supervisor.Disconnect(brokerCtx))
	c.supervisor.setState(mqtt.Disconnected)
	errs = multierr.Append(errs, c.supervisor.Release())
	c.phase = PhaseIdle
	c.reconnecting = false
	c.mu.Unlock()

	for _, err := range multierr.Errors(errs) {
		c.logger.Warn("shutdown step failed", "error", err)
	}
}

// handleConnect is invoked by the broker client once a session is up.
// State changes happen in onConnected, after Connect returns.
func (c *Controller) handleConnect() {
	c.logger.Debug("broker session established")
}

// handleConnectionLost reacts to a dropped session.
func (c *Controller) handleConnectionLost(err error) {
	if err == nil {
		err = errConnectionClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.supervisor.setState(mqtt.Disconnected)

	switch c.phase {
	case PhaseRunning:
	case PhaseStarting:
		// Start notices the lost session and owns the recovery.
		c.logger.Warn("broker connection lost during start", "error", err)
		return
	default:
		c.logger.Info("broker connection closed while stopping", "error", err)
		return
	}
	c.logger.Error("broker connection lost", "error", err, "policy", c.policy.String())
	c.recoverLocked(err)
}

// recoverLocked applies the disconnect policy to a lost session.
// c.mu must be held.
func (c *Controller) recoverLocked(err error) {
	if c.policy == PolicyFailFast {
		select {
		case c.fatal <- fmt.Errorf("%w: connection lost: %w", mqtt.ErrConnectionFailed, err):
		default:
		}
		return
	}

	if c.reconnecting || c.runCtx.Err() != nil {
		return
	}
	c.reconnecting = true
	c.wg.Add(1)
	go c.reconnect(c.runCtx, c.opts)
}

// reconnect runs the connect loop until a session sticks or the run ends.
func (c *Controller) reconnect(ctx context.Context, opts *mqtt.ConnectOptions) {
	defer c.wg.Done()

	for {
		c.logger.Info("reconnecting to broker", "delay", opts.ReconnectDelay)
		if err := c.supervisor.Connect(ctx, opts); err != nil {
			c.logger.Debug("reconnect abandoned", "error", err)
			break
		}
		if err := c.onConnected(ctx); err != nil {
			c.logger.Warn("reconnected session dropped", "error", err)
		}

		c.mu.Lock()
		again := c.phase.active() && ctx.Err() == nil && !c.supervisor.Connected()
		if !again {
			c.reconnecting = false
		}
		c.mu.Unlock()

		if !again {
			return
		}
	}

	c.mu.Lock()
	c.reconnecting = false
	c.mu.Unlock()
}

// handleMessage dispatches an inbound publish to the service.
func (c *Controller) handleMessage(topic string, payload []byte) {
	c.mu.Lock()
	phase := c.phase
	wanted := c.subs.Matches(topic)
	c.mu.Unlock()

	if !phase.active() {
		c.logger.Debug("message dropped", "topic", topic, "phase", phase.String())
		return
	}
	if !wanted {
		c.logger.Debug("message matches no held filter", "topic", topic)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("service message handler panic recovered",
				"topic", topic,
				"panic", r,
			)
		}
	}()

	if err := c.service.HandleMessage(topic, payload); err != nil {
		c.logger.Warn("service message handler returned error",
			"topic", topic,
			"error", err,
		)
	}
}
