package device

import (
	"fmt"
	"regexp"

	"go.uber.org/multierr"
)

// slugStrip matches every character a topic slug may not contain.
var slugStrip = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// Sluggify removes every character outside [a-zA-Z0-9-].
// Case is preserved: "Living Room" becomes "LivingRoom".
func Sluggify(s string) string {
	return slugStrip.ReplaceAllString(s, "")
}

// Validate checks the whole hub and returns every problem found, combined.
//
// It checks:
//   - the hub, every device, and every control are named
//   - device slugs are non-empty and unique across the hub
//   - control IDs are non-empty slugs, unique within their device
//   - each control has a known kind and the settings that kind needs
//   - no two controls share a command topic
func (h *Hub) Validate() error {
	if h == nil {
		return fmt.Errorf("%w: nil hub", ErrInvalidHub)
	}

	var errs error
	if h.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: name is required", ErrInvalidHub))
	}

	slugs := make(map[string]string, len(h.Devices))
	commands := make(map[string]string)
	for i, d := range h.Devices {
		if d == nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: devices[%d] is empty", ErrInvalidDevice, i))
			continue
		}
		errs = multierr.Append(errs, d.Validate())

		slug := Sluggify(d.Name)
		if slug == "" {
			continue
		}
		if other, ok := slugs[slug]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %q and %q share slug %q",
				ErrInvalidDevice, other, d.Name, slug))
		}
		slugs[slug] = d.Name

		for _, c := range d.Controls {
			if c == nil || c.CommandTopic == "" {
				continue
			}
			if owner, ok := commands[c.CommandTopic]; ok {
				errs = multierr.Append(errs, fmt.Errorf("%w: command topic %q used by %s and %s/%s",
					ErrDuplicateControl, c.CommandTopic, owner, d.Name, c.ID))
			}
			commands[c.CommandTopic] = d.Name + "/" + c.ID
		}
	}
	return errs
}

// Validate checks a device and its controls.
func (d *Device) Validate() error {
	var errs error
	if d.Name == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: name is required", ErrInvalidDevice))
	} else if Sluggify(d.Name) == "" {
		errs = multierr.Append(errs, fmt.Errorf("%w: name %q has no slug characters", ErrInvalidDevice, d.Name))
	}

	ids := make(map[string]struct{}, len(d.Controls))
	for i, c := range d.Controls {
		if c == nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s controls[%d] is empty", ErrInvalidControl, d.Name, i))
			continue
		}
		if err := c.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", d.Name, err))
			continue
		}
		if _, ok := ids[c.ID]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s has two controls with id %q",
				ErrDuplicateControl, d.Name, c.ID))
		}
		ids[c.ID] = struct{}{}
	}
	return errs
}

// Validate checks a single control's identity and kind settings.
// Returns the first failure found.
func (c *Control) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidControl)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: %q: id is required", ErrInvalidControl, c.Name)
	}
	if Sluggify(c.ID) != c.ID {
		return fmt.Errorf("%w: %q: id %q may only contain letters, digits, and hyphens",
			ErrInvalidControl, c.Name, c.ID)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: %q: %q", ErrInvalidKind, c.Name, c.Kind)
	}

	switch c.Kind {
	case KindSwitch:
		if c.Switch == nil || c.Switch.OnLabel == "" || c.Switch.OffLabel == "" {
			return fmt.Errorf("%w: %q: switch needs on and off labels", ErrInvalidControl, c.Name)
		}
		if c.Switch.OnLabel == c.Switch.OffLabel {
			return fmt.Errorf("%w: %q: on and off labels are identical", ErrInvalidControl, c.Name)
		}
	case KindDimmer:
		if c.Dimmer == nil {
			return fmt.Errorf("%w: %q: dimmer needs bounds", ErrInvalidControl, c.Name)
		}
		if c.Dimmer.LowerBound >= c.Dimmer.UpperBound {
			return fmt.Errorf("%w: %q: lower bound %d must be below upper bound %d",
				ErrInvalidControl, c.Name, c.Dimmer.LowerBound, c.Dimmer.UpperBound)
		}
	case KindSelector:
		if c.Selector == nil || len(c.Selector.SelectionLabels) == 0 {
			return fmt.Errorf("%w: %q: selector needs selection labels", ErrInvalidControl, c.Name)
		}
	}
	return nil
}
