package lifecycle

import "errors"

// Domain errors for the lifecycle package.
var (
	// ErrInvalidLifecycleTransition is returned when Start, Stop, or Declare
	// is called from a phase that does not allow it.
	ErrInvalidLifecycleTransition = errors.New("lifecycle: invalid lifecycle transition")

	// ErrNoService is returned by New when no Service is provided.
	ErrNoService = errors.New("lifecycle: service is required")

	// ErrNoTopicRoot is returned by New when the topic root is empty or
	// contains wildcards.
	ErrNoTopicRoot = errors.New("lifecycle: topic root is required")

	// ErrInvalidPolicy is returned when a disconnect policy name is not recognised.
	ErrInvalidPolicy = errors.New("lifecycle: invalid disconnect policy")
)
