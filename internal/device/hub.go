package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
)

// LoadHub reads a hub schema from a YAML file, applies defaults, and validates it.
// Topics are not assigned; call AssignTopics with the service's topic root.
func LoadHub(path string) (*Hub, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrHubFileNotFound, path)
		}
		return nil, fmt.Errorf("reading hub file: %w", err)
	}
	return ParseHub(data)
}

// ParseHub decodes a YAML hub schema, applies defaults, and validates it.
// Unknown fields are rejected so typos in settings do not pass silently.
func ParseHub(data []byte) (*Hub, error) {
	var hub Hub
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&hub); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHub, err)
	}

	hub.applyDefaults()
	if err := hub.Validate(); err != nil {
		return nil, err
	}
	return &hub, nil
}

func (h *Hub) applyDefaults() {
	for _, d := range h.Devices {
		if d == nil {
			continue
		}
		for _, c := range d.Controls {
			if c != nil {
				c.applyDefaults()
			}
		}
	}
}

// AssignTopics fills in missing topics below root:
//
//	{root}/{device-slug}/{control-id}/set    command topic, every control
//	{root}/{device-slug}/{control-id}/state  value topic, stateful controls only
//
// Topics set explicitly in the schema are kept.
func (h *Hub) AssignTopics(root string) {
	topics := mqtt.Topics{Root: root}
	for _, d := range h.Devices {
		slug := Sluggify(d.Name)
		for _, c := range d.Controls {
			if c.CommandTopic == "" {
				c.CommandTopic = topics.ControlCommand(slug, c.ID)
			}
			if c.ValueTopic == "" && c.Kind.Stateful() {
				c.ValueTopic = topics.ControlValue(slug, c.ID)
			}
		}
	}
}

// CommandTopics returns every control's command topic in schema order.
// Empty topics are skipped.
func (h *Hub) CommandTopics() []string {
	var out []string
	for _, d := range h.Devices {
		for _, c := range d.Controls {
			if c.CommandTopic != "" {
				out = append(out, c.CommandTopic)
			}
		}
	}
	return out
}

// FindByCommandTopic returns the device and control owning topic.
// Returns ErrControlNotFound when no control matches.
func (h *Hub) FindByCommandTopic(topic string) (*Device, *Control, error) {
	for _, d := range h.Devices {
		for _, c := range d.Controls {
			if c.CommandTopic == topic {
				return d, c, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrControlNotFound, topic)
}

// ControlCount returns the number of controls across all devices.
func (h *Hub) ControlCount() int {
	n := 0
	for _, d := range h.Devices {
		n += len(d.Controls)
	}
	return n
}

// EncodeJSON renders the schema as published on {root}/hub.
func (h *Hub) EncodeJSON() ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encoding hub: %w", err)
	}
	return data, nil
}
