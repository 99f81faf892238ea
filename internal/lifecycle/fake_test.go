package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
)

// fakeBroker implements mqtt.BrokerClient and records every call in order.
type fakeBroker struct {
	mu sync.Mutex

	calls     []string
	publishes []mqtt.Message
	subscribe [][]string
	handlers  mqtt.EventHandlers
	connected bool
	attempts  int
	lastOpts  *mqtt.ConnectOptions

	// connectErrs fail the next attempts in order; failAlways fails every attempt.
	connectErrs  []error
	failAlways   error
	subscribeErr error
	publishErr   error

	// afterConnect runs once, after the next successful connect returns to
	// the event handler.
	afterConnect func()
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{}
}

func (f *fakeBroker) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeBroker) Connect(ctx context.Context, opts *mqtt.ConnectOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.attempts++
	f.lastOpts = opts
	f.record("connect")

	var err error
	switch {
	case f.failAlways != nil:
		err = f.failAlways
	case len(f.connectErrs) > 0:
		err = f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
	default:
		f.connected = true
	}
	onConnect := f.handlers.OnConnect
	var after func()
	if err == nil {
		after, f.afterConnect = f.afterConnect, nil
	}
	f.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", mqtt.ErrConnectionFailed, err)
	}
	if onConnect != nil {
		onConnect()
	}
	if after != nil {
		after()
	}
	return nil
}

func (f *fakeBroker) Publish(ctx context.Context, msg mqtt.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return mqtt.ErrNotConnected
	}
	f.record(fmt.Sprintf("publish %s=%s", msg.Topic, msg.Payload))
	if f.publishErr != nil {
		return f.publishErr
	}
	f.publishes = append(f.publishes, msg)
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, subs []mqtt.Subscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return mqtt.ErrNotConnected
	}
	filters := make([]string, len(subs))
	for i, s := range subs {
		filters[i] = s.Filter
	}
	f.record("subscribe " + strings.Join(filters, ","))
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribe = append(f.subscribe, filters)
	return nil
}

func (f *fakeBroker) Unsubscribe(ctx context.Context, filters []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return mqtt.ErrNotConnected
	}
	f.record("unsubscribe " + strings.Join(filters, ","))
	return nil
}

func (f *fakeBroker) Disconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("disconnect")
	f.connected = false
	return nil
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.record("close")
	f.connected = false
	return nil
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) SetEventHandlers(h mqtt.EventHandlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_handlers")
	f.handlers = h
}

// drop simulates the broker closing the session.
func (f *fakeBroker) drop(err error) {
	f.mu.Lock()
	f.connected = false
	lost := f.handlers.OnConnectionLost
	f.mu.Unlock()

	if lost != nil {
		lost(err)
	}
}

// deliver simulates an inbound publish.
func (f *fakeBroker) deliver(topic, payload string) {
	f.mu.Lock()
	onMessage := f.handlers.OnMessage
	f.mu.Unlock()

	if onMessage != nil {
		onMessage(topic, []byte(payload))
	}
}

// mark appends a non-broker event so it can be ordered against broker calls.
func (f *fakeBroker) mark(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(event)
}

func (f *fakeBroker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBroker) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeBroker) LastOptions() *mqtt.ConnectOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOpts
}

func (f *fakeBroker) Publishes() []mqtt.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mqtt.Message(nil), f.publishes...)
}

func (f *fakeBroker) Subscribes() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.subscribe...)
}

// indexOf returns the position of the first call starting with prefix, or -1.
func (f *fakeBroker) indexOf(prefix string) int {
	for i, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// count returns how many calls start with prefix.
func (f *fakeBroker) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// mockService implements Service with testify/mock.
type mockService struct {
	mock.Mock
}

func (m *mockService) OnServiceStart(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockService) OnServiceStop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockService) HandleMessage(topic string, payload []byte) error {
	return m.Called(topic, payload).Error(0)
}

var (
	_ mqtt.BrokerClient = (*fakeBroker)(nil)
	_ Service           = (*mockService)(nil)
)
