package mqtt

import (
	"fmt"
	"strings"
)

// Topic segments shared by every service instance.
const (
	// segmentConnected is the status topic leaf under a topic root.
	segmentConnected = "connected"

	// segmentHub is the leaf carrying the retained hub schema.
	segmentHub = "hub"

	// segmentSet and segmentState are the command and value leaves of a control.
	segmentSet   = "set"
	segmentState = "state"
)

// Topics provides builders for the topics owned by one service instance.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Root: "harmony"}
//	topics.Connected() // "harmony/connected"
type Topics struct {
	Root string
}

// Connected returns the retained liveness topic.
//
// Example: harmony/connected
func (t Topics) Connected() string {
	return fmt.Sprintf("%s/%s", t.Root, segmentConnected)
}

// Hub returns the retained hub schema topic.
//
// Example: harmony/hub
func (t Topics) Hub() string {
	return fmt.Sprintf("%s/%s", t.Root, segmentHub)
}

// ControlCommand returns the command topic of a device control.
//
// Example: harmony/living-room-tv/power/set
func (t Topics) ControlCommand(device, control string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Root, device, control, segmentSet)
}

// ControlValue returns the value topic of a stateful device control.
//
// Example: harmony/living-room-tv/power/state
func (t Topics) ControlValue(device, control string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.Root, device, control, segmentState)
}

// AllCommands returns a filter matching every control command of this instance.
//
// Pattern: harmony/+/+/set
func (t Topics) AllCommands() string {
	return fmt.Sprintf("%s/+/+/%s", t.Root, segmentSet)
}

// ValidateTopic checks a topic name used for publishing.
// Wildcards are not allowed in topic names.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter.
//
// Rules:
//   - "+" must occupy a whole level
//   - "#" must occupy a whole level and be the last one
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: filter cannot be empty", ErrInvalidTopic)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "#") && (level != "#" || i != len(levels)-1) {
			return fmt.Errorf("%w: %q misplaces multi-level wildcard", ErrInvalidTopic, filter)
		}
		if strings.Contains(level, "+") && level != "+" {
			return fmt.Errorf("%w: %q misplaces single-level wildcard", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// MatchFilter reports whether topic is matched by filter.
// The filter is assumed to be valid (see ValidateFilter).
func MatchFilter(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, level := range fl {
		if level == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if level != "+" && level != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
