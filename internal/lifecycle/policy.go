package lifecycle

import (
	"fmt"
	"strings"
)

// DisconnectPolicy decides what happens when an established broker session
// drops while the service is running.
type DisconnectPolicy int

const (
	// PolicyReconnect retries the connection at the configured delay, then
	// restores subscriptions and re-announces. This is the default.
	PolicyReconnect DisconnectPolicy = iota

	// PolicyFailFast reports the drop on Controller.Fatal so the host
	// process can terminate.
	PolicyFailFast
)

// String returns the configuration name of the policy.
func (p DisconnectPolicy) String() string {
	switch p {
	case PolicyReconnect:
		return "reconnect"
	case PolicyFailFast:
		return "fail-fast"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a configuration value into a DisconnectPolicy.
// An empty string selects PolicyReconnect.
func ParsePolicy(s string) (DisconnectPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reconnect":
		return PolicyReconnect, nil
	case "fail-fast", "failfast":
		return PolicyFailFast, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}
