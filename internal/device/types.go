package device

// Kind identifies what a control does and which settings it carries.
type Kind string

// Control kinds.
const (
	// KindButton is a momentary control. It accepts commands and has no value.
	KindButton Kind = "button"

	// KindSwitch is an on/off control with a value topic.
	KindSwitch Kind = "switch"

	// KindDimmer is an integer level between two bounds.
	KindDimmer Kind = "dimmer"

	// KindSelector picks one of a fixed set of keys.
	KindSelector Kind = "selector"
)

// Default settings applied by the constructors and by LoadHub.
const (
	DefaultOnLabel    = "ON"
	DefaultOffLabel   = "OFF"
	DefaultLowerBound = 0
	DefaultUpperBound = 100
)

// AllKinds returns every recognised control kind.
func AllKinds() []Kind {
	return []Kind{KindButton, KindSwitch, KindDimmer, KindSelector}
}

// Valid reports whether k is a recognised kind.
func (k Kind) Valid() bool {
	switch k {
	case KindButton, KindSwitch, KindDimmer, KindSelector:
		return true
	default:
		return false
	}
}

// Stateful reports whether controls of this kind publish a value.
func (k Kind) Stateful() bool {
	return k == KindSwitch || k == KindDimmer || k == KindSelector
}

// Hub is the root of a capability schema: the devices a bridge exposes.
// It is published retained on {root}/hub so clients can discover controls.
type Hub struct {
	Name    string    `yaml:"name" json:"name"`
	Devices []*Device `yaml:"devices" json:"devices"`
}

// Device is one controllable thing behind the hub.
type Device struct {
	Name     string     `yaml:"name" json:"name"`
	Controls []*Control `yaml:"controls" json:"controls"`
}

// Control is a single command (and, for stateful kinds, value) exposed by a device.
//
// Exactly the settings block matching Kind is used; the others are ignored.
type Control struct {
	// Identity
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Kind Kind   `yaml:"kind" json:"kind"`

	// Topics are filled by Hub.AssignTopics when left empty.
	CommandTopic string `yaml:"command_topic,omitempty" json:"commandTopic"`
	ValueTopic   string `yaml:"value_topic,omitempty" json:"valueTopic,omitempty"`

	// Kind-specific settings
	Switch   *BinarySwitch `yaml:"switch,omitempty" json:"switch,omitempty"`
	Dimmer   *Dimmer       `yaml:"dimmer,omitempty" json:"dimmer,omitempty"`
	Selector *Selector     `yaml:"selector,omitempty" json:"selector,omitempty"`
}

// BinarySwitch holds the labels and arguments of an on/off control.
// Arguments are what the device expects on the wire; labels are what
// clients display and what the value topic carries.
type BinarySwitch struct {
	OnLabel     string `yaml:"on_label" json:"onStateLabel"`
	OffLabel    string `yaml:"off_label" json:"offStateLabel"`
	OnArgument  string `yaml:"on_argument,omitempty" json:"onStateArgument,omitempty"`
	OffArgument string `yaml:"off_argument,omitempty" json:"offStateArgument,omitempty"`
}

// Dimmer holds the inclusive bounds of a level control.
type Dimmer struct {
	LowerBound int `yaml:"lower_bound" json:"lowerBound"`
	UpperBound int `yaml:"upper_bound" json:"upperBound"`
}

// Selector maps selection keys to display labels.
type Selector struct {
	SelectionLabels map[string]string `yaml:"selection_labels" json:"selectionLabels"`
}

// NewButton returns a momentary control.
func NewButton(id, name string) *Control {
	return &Control{ID: id, Name: name, Kind: KindButton}
}

// NewBinarySwitch returns a switch labelled ON/OFF.
func NewBinarySwitch(id, name string) *Control {
	return &Control{
		ID:     id,
		Name:   name,
		Kind:   KindSwitch,
		Switch: &BinarySwitch{OnLabel: DefaultOnLabel, OffLabel: DefaultOffLabel},
	}
}

// NewDimmer returns a dimmer bounded 0..100.
func NewDimmer(id, name string) *Control {
	return &Control{
		ID:     id,
		Name:   name,
		Kind:   KindDimmer,
		Dimmer: &Dimmer{LowerBound: DefaultLowerBound, UpperBound: DefaultUpperBound},
	}
}

// NewSelector returns a selector over labels. A nil map yields an empty
// selector, which fails validation until labels are added.
func NewSelector(id, name string, labels map[string]string) *Control {
	cpy := make(map[string]string, len(labels))
	for k, v := range labels {
		cpy[k] = v
	}
	return &Control{
		ID:       id,
		Name:     name,
		Kind:     KindSelector,
		Selector: &Selector{SelectionLabels: cpy},
	}
}

// applyDefaults fills the settings a hub file may leave out: the control
// ID (from its name), switch labels, and dimmer bounds.
func (c *Control) applyDefaults() {
	if c.ID == "" {
		c.ID = Sluggify(c.Name)
	}
	switch c.Kind {
	case KindSwitch:
		if c.Switch == nil {
			c.Switch = &BinarySwitch{}
		}
		if c.Switch.OnLabel == "" {
			c.Switch.OnLabel = DefaultOnLabel
		}
		if c.Switch.OffLabel == "" {
			c.Switch.OffLabel = DefaultOffLabel
		}
	case KindDimmer:
		if c.Dimmer == nil {
			c.Dimmer = &Dimmer{LowerBound: DefaultLowerBound, UpperBound: DefaultUpperBound}
		}
	}
}
