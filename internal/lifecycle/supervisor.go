package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
)

// Supervisor owns the broker session: option building, the connect retry
// loop, clean disconnect, and release of the client handle.
//
// Not safe for concurrent use except for Connect, which touches no shared
// state. A Controller serialises the rest under its lock.
type Supervisor struct {
	client   mqtt.BrokerClient
	endpoint mqtt.BrokerEndpoint
	clientID string
	will     mqtt.Message
	policy   DisconnectPolicy
	logger   *logging.Logger

	state    mqtt.ConnectionState
	released bool
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Client   mqtt.BrokerClient
	Endpoint mqtt.BrokerEndpoint
	ClientID string
	Will     mqtt.Message
	Policy   DisconnectPolicy
	Logger   *logging.Logger
}

// NewSupervisor returns a disconnected supervisor.
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	return &Supervisor{
		client:   opts.Client,
		endpoint: opts.Endpoint,
		clientID: opts.ClientID,
		will:     opts.Will,
		policy:   opts.Policy,
		logger:   opts.Logger,
		state:    mqtt.Disconnected,
	}
}

// BuildOptions validates the endpoint and composes session options carrying
// the last will. It performs no network I/O.
func (s *Supervisor) BuildOptions() (*mqtt.ConnectOptions, error) {
	ep := s.endpoint
	if (ep.Username == "") != (ep.Password == "") {
		s.logger.Warn("broker username and password must both be set; connecting anonymously")
	}
	if ep.UseTLS && ep.TLS != nil && ep.TLS.IgnoreCertificateRevocationErrors {
		s.logger.Debug("certificate revocation is not checked by the TLS stack")
	}

	opts, err := mqtt.BuildOptions(ep, s.clientID, &s.will)
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// Connect attempts to connect until it succeeds, retrying at the constant
// reconnect delay. Failures are logged and swallowed; the only error returned
// is the context's.
//
// Under PolicyFailFast the first failure is returned instead, wrapped in
// mqtt.ErrConnectionFailed.
func (s *Supervisor) Connect(ctx context.Context, opts *mqtt.ConnectOptions) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := s.client.Connect(ctx, opts)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		if !errors.Is(err, mqtt.ErrConnectionFailed) {
			err = fmt.Errorf("%w: %w", mqtt.ErrConnectionFailed, err)
		}
		if s.policy == PolicyFailFast {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		s.logger.Warn("broker connection attempt failed",
			"broker", opts.BrokerURL,
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(opts.ReconnectDelay), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.logger.Error("broker connection failed", "broker", opts.BrokerURL, "error", err)
		return err
	}

	s.logger.Info("connected to broker",
		"broker", opts.BrokerURL,
		"client_id", opts.ClientID,
		"attempts", attempt,
	)
	return nil
}

// Disconnect ends the session cleanly. It is a no-op when already disconnected.
func (s *Supervisor) Disconnect(ctx context.Context) error {
	if !s.state.IsConnected() {
		return nil
	}
	s.state = mqtt.Disconnected
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting from broker: %w", err)
	}
	return nil
}

// Release closes the client handle. Only the first call per run reaches the
// client; see reset.
func (s *Supervisor) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("releasing broker client: %w", err)
	}
	return nil
}

// State returns the current connection state.
func (s *Supervisor) State() mqtt.ConnectionState {
	return s.state
}

// Connected reports whether the session is up.
func (s *Supervisor) Connected() bool {
	return s.state.IsConnected()
}

func (s *Supervisor) setState(state mqtt.ConnectionState) {
	s.state = state
}

// reset prepares the supervisor for a new run.
func (s *Supervisor) reset() {
	s.state = mqtt.Disconnected
	s.released = false
}
