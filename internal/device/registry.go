package device

import (
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Update is the outcome of applying a command to a control.
type Update struct {
	Device  string
	Control *Control

	// Value is the accepted value; empty for buttons.
	Value string

	// Changed is false when the value equals the last one held.
	Changed bool
}

// Publishable reports whether the update carries a value for the value topic.
func (u Update) Publishable() bool {
	return u.Control.Kind.Stateful() && u.Control.ValueTopic != ""
}

// Registry indexes a hub by command topic and holds the last accepted
// value of every stateful control.
//
// Values live in memory only; retained messages on the broker are the
// durable copy.
//
// All public methods are thread-safe.
type Registry struct {
	hub       *Hub
	byCommand map[string]entry // Controls by command topic
	logger    Logger

	mu     sync.RWMutex      // Protects values
	values map[string]string // Last value by control command topic
}

type entry struct {
	device  string
	control *Control
}

// NewRegistry indexes hub. Topics must already be assigned.
// Returns ErrDuplicateControl if two controls share a command topic.
func NewRegistry(hub *Hub) (*Registry, error) {
	r := &Registry{
		hub:       hub,
		byCommand: make(map[string]entry, hub.ControlCount()),
		values:    make(map[string]string),
		logger:    noopLogger{},
	}

	for _, d := range hub.Devices {
		for _, c := range d.Controls {
			if c.CommandTopic == "" {
				return nil, fmt.Errorf("%w: %s/%s has no command topic", ErrInvalidControl, d.Name, c.ID)
			}
			if _, ok := r.byCommand[c.CommandTopic]; ok {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateControl, c.CommandTopic)
			}
			r.byCommand[c.CommandTopic] = entry{device: d.Name, control: c}
		}
	}
	return r, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Hub returns the indexed schema.
func (r *Registry) Hub() *Hub {
	return r.hub
}

// Apply validates payload for the control owning topic and records the
// accepted value.
//
// Returns ErrControlNotFound for unknown topics and ErrInvalidValue for
// payloads the control rejects; the held value is unchanged in both cases.
func (r *Registry) Apply(topic string, payload []byte) (Update, error) {
	e, ok := r.byCommand[topic]
	if !ok {
		return Update{}, fmt.Errorf("%w: %s", ErrControlNotFound, topic)
	}

	value, err := e.control.ParseValue(payload)
	if err != nil {
		r.logger.Debug("command rejected", "topic", topic, "error", err)
		return Update{}, err
	}

	u := Update{Device: e.device, Control: e.control, Value: value, Changed: true}
	if !e.control.Kind.Stateful() {
		u.Value = ""
		r.logger.Debug("button pressed", "device", e.device, "control", e.control.ID)
		return u, nil
	}

	r.mu.Lock()
	prev, held := r.values[topic]
	r.values[topic] = value
	r.mu.Unlock()

	u.Changed = !held || prev != value
	r.logger.Debug("control value updated",
		"device", e.device,
		"control", e.control.ID,
		"value", value,
		"changed", u.Changed,
	)
	return u, nil
}

// Value returns the last accepted value for the control owning commandTopic.
func (r *Registry) Value(commandTopic string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[commandTopic]
	return v, ok
}

// Values returns a copy of every held value keyed by command topic.
func (r *Registry) Values() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Reset forgets every held value.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.values = make(map[string]string)
	r.mu.Unlock()
}

// ControlCount returns the number of indexed controls.
func (r *Registry) ControlCount() int {
	return len(r.byCommand)
}
