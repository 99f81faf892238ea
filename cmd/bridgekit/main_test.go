package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-bridgekit/internal/device"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestParseOptions(t *testing.T) {
	t.Setenv("BRIDGEKIT_CONFIG", "")
	os.Unsetenv("BRIDGEKIT_CONFIG")

	opts, err := parseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, "configs/config.yaml", opts.Config)
	assert.Empty(t, opts.Verbose)
	assert.False(t, opts.MQTTLogs)

	opts, err = parseOptions([]string{"-c", "/etc/bridgekit.yaml", "-v", "--mqttlogs"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/bridgekit.yaml", opts.Config)
	assert.Len(t, opts.Verbose, 1)
	assert.True(t, opts.MQTTLogs)
}

func TestParseOptions_Env(t *testing.T) {
	t.Setenv("BRIDGEKIT_CONFIG", "/srv/bridgekit/config.yaml")

	opts, err := parseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/bridgekit/config.yaml", opts.Config)
}

func TestParseOptions_UnknownFlag(t *testing.T) {
	_, err := parseOptions([]string{"--no-such-flag"})
	assert.Error(t, err)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, &Options{Config: "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_TLSWithoutSettings verifies the pre-flight check fails before any
// broker connection is attempted.
func TestRun_TLSWithoutSettings(t *testing.T) {
	path := writeConfig(t, `
service:
  name: test
  topic_root: test
mqtt:
  brokerIp: 127.0.0.1
  brokerPort: 1883
  brokerUseTls: true
logging:
  output: discard
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, &Options{Config: path})
	require.ErrorIs(t, err, mqtt.ErrConfiguration)
}

func TestRun_MissingHubFile(t *testing.T) {
	path := writeConfig(t, `
service:
  name: test
  topic_root: test
  hub_file: /nonexistent/hub.yaml
logging:
  output: discard
`)

	err := run(context.Background(), &Options{Config: path})
	require.ErrorIs(t, err, device.ErrHubFileNotFound)
}

func TestRun_CancelledDuringStart(t *testing.T) {
	// Nothing listens on this port, so Start keeps retrying until cancelled.
	path := writeConfig(t, `
service:
  name: test
  topic_root: test
mqtt:
  brokerIp: 127.0.0.1
  brokerPort: 19999
  brokerReconnectDelaySeconds: 1
logging:
  output: discard
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := run(ctx, &Options{Config: path})
	assert.NoError(t, err, "a signal during start is a clean shutdown")
}

func TestLoadHub_Default(t *testing.T) {
	hub, err := loadHub(config.ServiceConfig{Name: "demo"})
	require.NoError(t, err)
	assert.Equal(t, "demo", hub.Name)
	assert.Equal(t, 5, hub.ControlCount())
}

// recordingPublisher records publishes made by the virtual hub.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []mqtt.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, mqtt.Message{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

func (p *recordingPublisher) messages() []mqtt.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]mqtt.Message(nil), p.msgs...)
}

func newTestHub(t *testing.T) (*virtualHub, *recordingPublisher) {
	t.Helper()
	hub := defaultHub("demo")
	require.NoError(t, hub.Validate())
	hub.AssignTopics("bk")

	reg, err := device.NewRegistry(hub)
	require.NoError(t, err)

	svc, err := newVirtualHub(reg, "bk", logging.Discard())
	require.NoError(t, err)

	pub := &recordingPublisher{}
	svc.bind(pub)
	return svc, pub
}

func TestVirtualHub_StartPublishesSchema(t *testing.T) {
	svc, pub := newTestHub(t)

	require.NoError(t, svc.OnServiceStart(context.Background()))

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bk/hub", msgs[0].Topic)
	assert.True(t, msgs[0].Retained)

	var schema device.Hub
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &schema))
	assert.Equal(t, "demo", schema.Name)
	assert.Len(t, schema.Devices, 2)
}

func TestVirtualHub_StartPublishError(t *testing.T) {
	svc, pub := newTestHub(t)
	pub.err = mqtt.ErrNotConnected

	err := svc.OnServiceStart(context.Background())
	assert.ErrorIs(t, err, mqtt.ErrNotConnected)
}

func TestVirtualHub_HandleMessage(t *testing.T) {
	tests := []struct {
		name      string
		topic     string
		payload   string
		wantTopic string
		wantValue string
		wantErr   error
	}{
		{"switch on", "bk/VirtualLamp/power/set", "on", "bk/VirtualLamp/power/state", "ON", nil},
		{"dimmer level", "bk/VirtualLamp/level/set", "75", "bk/VirtualLamp/level/state", "75", nil},
		{"selector input", "bk/VirtualReceiver/input/set", "tuner", "bk/VirtualReceiver/input/state", "tuner", nil},
		{"dimmer out of range", "bk/VirtualLamp/level/set", "150", "", "", device.ErrInvalidValue},
		{"unknown selection", "bk/VirtualReceiver/input/set", "vga", "", "", device.ErrInvalidValue},
		{"button", "bk/VirtualReceiver/mute/set", "", "", "", nil},
		{"unknown control", "bk/Toaster/power/set", "on", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, pub := newTestHub(t)

			err := svc.HandleMessage(tt.topic, []byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, pub.messages())
				return
			}
			require.NoError(t, err)

			msgs := pub.messages()
			if tt.wantTopic == "" {
				assert.Empty(t, msgs)
				return
			}
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantTopic, msgs[0].Topic)
			assert.Equal(t, tt.wantValue, string(msgs[0].Payload))
			assert.True(t, msgs[0].Retained)
		})
	}
}

func TestVirtualHub_HandleMessagePublishError(t *testing.T) {
	svc, pub := newTestHub(t)
	pub.err = errors.New("broker gone")

	err := svc.HandleMessage("bk/VirtualLamp/power/set", []byte("OFF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bk/VirtualLamp/power/state")
}

func TestVirtualHub_StopKeepsValues(t *testing.T) {
	svc, pub := newTestHub(t)
	require.NoError(t, svc.HandleMessage("bk/VirtualLamp/power/set", []byte("ON")))

	require.NoError(t, svc.OnServiceStop(context.Background()))

	assert.Len(t, pub.messages(), 1, "stop publishes nothing")
	v, ok := svc.registry.Value("bk/VirtualLamp/power/set")
	assert.True(t, ok)
	assert.Equal(t, "ON", v)
}
