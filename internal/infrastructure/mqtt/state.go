package mqtt

import "strconv"

// ConnectionState describes the liveness a service reports on its status topic.
//
// The numeric values are part of the wire contract: subscribers of
// {topicRoot}/connected receive the ASCII decimal of the state.
type ConnectionState int

const (
	// Disconnected means the broker session is down.
	Disconnected ConnectionState = 0

	// ConnectedBroker means the transport is up but device liveness is unknown.
	// No handshake distinguishes it from ConnectedBrokerAndDevice, so it is never published.
	ConnectedBroker ConnectionState = 1

	// ConnectedBrokerAndDevice means the transport is up and the device is assumed live.
	ConnectedBrokerAndDevice ConnectionState = 2
)

// String returns a human-readable state name for logs.
func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectedBroker:
		return "connected_broker"
	case ConnectedBrokerAndDevice:
		return "connected_broker_and_device"
	default:
		return "unknown"
	}
}

// Payload returns the status topic payload for the state.
func (s ConnectionState) Payload() []byte {
	return []byte(strconv.Itoa(int(s)))
}

// IsConnected reports whether the state implies a live transport.
func (s ConnectionState) IsConnected() bool {
	return s == ConnectedBroker || s == ConnectedBrokerAndDevice
}
