package device

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControl_ParseValue(t *testing.T) {
	tvPower := NewBinarySwitch("power", "Power")
	tvPower.Switch = &BinarySwitch{OnLabel: "On", OffLabel: "Standby", OnArgument: "PowerOn", OffArgument: "PowerOff"}
	dimmer := NewDimmer("level", "Level")
	dimmer.Dimmer = &Dimmer{LowerBound: 10, UpperBound: 90}
	selector := NewSelector("input", "Input", map[string]string{"hdmi1": "HDMI 1", "tv": "Antenna"})

	tests := []struct {
		name    string
		control *Control
		payload string
		want    string
		wantErr bool
	}{
		{"switch on label", NewBinarySwitch("p", "P"), "ON", "ON", false},
		{"switch case insensitive", NewBinarySwitch("p", "P"), " off ", "OFF", false},
		{"switch garbage", NewBinarySwitch("p", "P"), "maybe", "", true},
		{"switch argument maps to label", tvPower, "poweron", "On", false},
		{"switch off label", tvPower, "Standby", "Standby", false},
		{"dimmer in range", dimmer, "42", "42", false},
		{"dimmer normalised", dimmer, "+042", "42", false},
		{"dimmer lower bound", dimmer, "10", "10", false},
		{"dimmer upper bound", dimmer, "90", "90", false},
		{"dimmer below", dimmer, "9", "", true},
		{"dimmer above", dimmer, "91", "", true},
		{"dimmer not a number", dimmer, "bright", "", true},
		{"selector key", selector, "hdmi1", "hdmi1", false},
		{"selector label is not a key", selector, "HDMI 1", "", true},
		{"button anything", NewButton("m", "M"), "press", "press", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.control.ParseValue([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestControl_ParseValueUnknownKind(t *testing.T) {
	c := &Control{ID: "x", Name: "X", Kind: "slider"}
	_, err := c.ParseValue([]byte("1"))
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(testHub(t))
	require.NoError(t, err)
	assert.Equal(t, 5, reg.ControlCount())
	assert.Equal(t, "Living Room Hub", reg.Hub().Name)
}

func TestNewRegistry_Errors(t *testing.T) {
	unassigned, err := ParseHub([]byte(testHubYAML))
	require.NoError(t, err)
	_, err = NewRegistry(unassigned)
	assert.ErrorIs(t, err, ErrInvalidControl, "topics must be assigned first")

	a := NewButton("a", "A")
	b := NewButton("b", "B")
	a.CommandTopic = "bk/x/set"
	b.CommandTopic = "bk/x/set"
	dup := &Hub{Name: "h", Devices: []*Device{{Name: "d", Controls: []*Control{a, b}}}}
	_, err = NewRegistry(dup)
	assert.ErrorIs(t, err, ErrDuplicateControl)
}

func TestRegistry_Apply(t *testing.T) {
	reg, err := NewRegistry(testHub(t))
	require.NoError(t, err)
	reg.SetLogger(noopLogger{})

	u, err := reg.Apply("bk/CeilingLight/level/set", []byte("55"))
	require.NoError(t, err)
	assert.Equal(t, "CeilingLight", Sluggify(u.Device))
	assert.Equal(t, "55", u.Value)
	assert.True(t, u.Changed)
	assert.True(t, u.Publishable())
	assert.Equal(t, "bk/CeilingLight/level/state", u.Control.ValueTopic)

	u, err = reg.Apply("bk/CeilingLight/level/set", []byte("55"))
	require.NoError(t, err)
	assert.False(t, u.Changed, "same value twice")

	v, ok := reg.Value("bk/CeilingLight/level/set")
	assert.True(t, ok)
	assert.Equal(t, "55", v)
}

func TestRegistry_ApplyRejected(t *testing.T) {
	reg, err := NewRegistry(testHub(t))
	require.NoError(t, err)

	_, err = reg.Apply("bk/CeilingLight/level/set", []byte("50"))
	require.NoError(t, err)

	_, err = reg.Apply("bk/CeilingLight/level/set", []byte("500"))
	assert.ErrorIs(t, err, ErrInvalidValue)
	v, _ := reg.Value("bk/CeilingLight/level/set")
	assert.Equal(t, "50", v, "rejected value must not replace the held one")

	_, err = reg.Apply("bk/Unknown/power/set", []byte("ON"))
	assert.ErrorIs(t, err, ErrControlNotFound)
}

func TestRegistry_ApplyButton(t *testing.T) {
	reg, err := NewRegistry(testHub(t))
	require.NoError(t, err)

	u, err := reg.Apply("bk/TVLounge/mute/set", []byte("press"))
	require.NoError(t, err)
	assert.Empty(t, u.Value)
	assert.False(t, u.Publishable())
	assert.Empty(t, reg.Values(), "buttons hold no value")
}

func TestRegistry_ValuesAndReset(t *testing.T) {
	reg, err := NewRegistry(testHub(t))
	require.NoError(t, err)

	_, err = reg.Apply("bk/CeilingLight/power/set", []byte("on"))
	require.NoError(t, err)
	_, err = reg.Apply("bk/TVLounge/InputSource/set", []byte("tv"))
	require.NoError(t, err)

	values := reg.Values()
	assert.Equal(t, map[string]string{
		"bk/CeilingLight/power/set":   "ON",
		"bk/TVLounge/InputSource/set": "tv",
	}, values)

	values["bk/CeilingLight/power/set"] = "mutated"
	v, _ := reg.Value("bk/CeilingLight/power/set")
	assert.Equal(t, "ON", v, "Values returns a copy")

	reg.Reset()
	assert.Empty(t, reg.Values())
}

func TestRegistry_ConcurrentApply(t *testing.T) {
	reg, err := NewRegistry(testHub(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(level int) {
			defer wg.Done()
			if _, err := reg.Apply("bk/CeilingLight/level/set", []byte{byte('1'), byte('0' + level%10)}); err != nil {
				errs <- err
			}
			reg.Values()
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Apply() unexpected error: %v", err)
		}
	}
	_, ok := reg.Value("bk/CeilingLight/level/set")
	assert.True(t, ok)
}
