package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConfiguration is returned when broker options cannot be built from
	// the endpoint configuration. It is fatal and detected before any network I/O.
	ErrConfiguration = errors.New("mqtt: invalid configuration")

	// ErrCertificateNotFound is returned when a configured TLS certificate
	// file does not exist.
	ErrCertificateNotFound = errors.New("mqtt: certificate not found")

	// ErrUnsupportedProtocol is returned when the TLS protocol version is not
	// one of the supported values. It is always wrapped together with ErrConfiguration.
	ErrUnsupportedProtocol = errors.New("mqtt: unsupported TLS protocol version")

	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe operation fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or malformed topic or filter is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
