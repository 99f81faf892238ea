package device

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ParseValue checks a command payload against the control's kind and
// returns the value to publish on its value topic.
//
// Accepted payloads:
//   - switch: the on/off argument or label, case-insensitive; returns the label
//   - dimmer: a decimal integer within the bounds; returns it normalised
//   - selector: one of the selection keys; returns the key
//   - button: anything; returns the trimmed payload, which is never published
//
// Returns ErrInvalidValue for anything else.
func (c *Control) ParseValue(payload []byte) (string, error) {
	v := strings.TrimSpace(string(payload))

	switch c.Kind {
	case KindButton:
		return v, nil

	case KindSwitch:
		s := c.Switch
		switch {
		case matches(v, s.OnArgument, s.OnLabel):
			return s.OnLabel, nil
		case matches(v, s.OffArgument, s.OffLabel):
			return s.OffLabel, nil
		}
		return "", fmt.Errorf("%w: %s expects %s or %s, got %q", ErrInvalidValue, c.ID, s.OnLabel, s.OffLabel, v)

	case KindDimmer:
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", fmt.Errorf("%w: %s expects an integer, got %q", ErrInvalidValue, c.ID, v)
		}
		if n < c.Dimmer.LowerBound || n > c.Dimmer.UpperBound {
			return "", fmt.Errorf("%w: %s level %d outside %d..%d",
				ErrInvalidValue, c.ID, n, c.Dimmer.LowerBound, c.Dimmer.UpperBound)
		}
		return strconv.Itoa(n), nil

	case KindSelector:
		if _, ok := c.Selector.SelectionLabels[v]; ok {
			return v, nil
		}
		keys := make([]string, 0, len(c.Selector.SelectionLabels))
		for k := range c.Selector.SelectionLabels {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		return "", fmt.Errorf("%w: %s expects one of %s, got %q",
			ErrInvalidValue, c.ID, strings.Join(keys, ", "), v)
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidKind, c.Kind)
}

// matches reports whether v equals any non-empty candidate, ignoring case.
func matches(v string, candidates ...string) bool {
	for _, c := range candidates {
		if c != "" && strings.EqualFold(v, c) {
			return true
		}
	}
	return false
}
