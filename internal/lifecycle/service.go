package lifecycle

import "context"

// Service is the behaviour a derived service plugs into a Controller.
//
// OnServiceStart runs once the broker session is up, subscriptions are
// applied, and the connected status is announced. OnServiceStop runs first
// during Stop, while the session is still up, so it may publish final state.
//
// HandleMessage receives every inbound publish on a subscribed filter. It is
// called from broker client goroutines, possibly concurrently; returned
// errors are logged and otherwise ignored.
type Service interface {
	OnServiceStart(ctx context.Context) error
	OnServiceStop(ctx context.Context) error
	HandleMessage(topic string, payload []byte) error
}

// ServiceFuncs adapts plain functions to the Service interface.
// Nil fields are no-ops.
type ServiceFuncs struct {
	Start   func(ctx context.Context) error
	Stop    func(ctx context.Context) error
	Message func(topic string, payload []byte) error
}

// OnServiceStart calls f.Start.
func (f ServiceFuncs) OnServiceStart(ctx context.Context) error {
	if f.Start == nil {
		return nil
	}
	return f.Start(ctx)
}

// OnServiceStop calls f.Stop.
func (f ServiceFuncs) OnServiceStop(ctx context.Context) error {
	if f.Stop == nil {
		return nil
	}
	return f.Stop(ctx)
}

// HandleMessage calls f.Message.
func (f ServiceFuncs) HandleMessage(topic string, payload []byte) error {
	if f.Message == nil {
		return nil
	}
	return f.Message(topic, payload)
}

var _ Service = ServiceFuncs{}
