package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrControlNotFound) {
//	    // not one of ours
//	}
var (
	// ErrHubFileNotFound is returned when the hub schema file does not exist.
	ErrHubFileNotFound = errors.New("device: hub file not found")

	// ErrInvalidHub is returned when the hub schema cannot be parsed or fails validation.
	ErrInvalidHub = errors.New("device: invalid hub")

	// ErrInvalidDevice is returned when a device fails validation.
	ErrInvalidDevice = errors.New("device: invalid device")

	// ErrInvalidControl is returned when a control fails validation.
	ErrInvalidControl = errors.New("device: invalid control")

	// ErrInvalidKind is returned when a control kind is not recognised.
	ErrInvalidKind = errors.New("device: invalid control kind")

	// ErrDuplicateControl is returned when two controls share an ID or a topic.
	ErrDuplicateControl = errors.New("device: duplicate control")

	// ErrControlNotFound is returned when no control owns a command topic.
	ErrControlNotFound = errors.New("device: control not found")

	// ErrInvalidValue is returned when a command payload is not acceptable
	// for the control it targets.
	ErrInvalidValue = errors.New("device: invalid value")
)
