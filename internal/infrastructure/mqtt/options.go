package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for one connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultOperationTimeout is the maximum time to wait for publish,
	// subscribe, and unsubscribe acknowledgements.
	defaultOperationTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultReconnectDelay applies when an endpoint does not set one.
	defaultReconnectDelay = 5 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// QoSAtLeastOnce is the delivery guarantee used for every subscription and
// status publish.
const QoSAtLeastOnce byte = 1

// BrokerEndpoint describes where and how to reach the broker.
type BrokerEndpoint struct {
	Host     string
	Port     int
	Username string
	Password string

	// ReconnectDelay is the constant delay between connection attempts.
	ReconnectDelay time.Duration

	// UseTLS requires TLS to be non-nil.
	UseTLS bool
	TLS    *TLSProfile
}

// TLSProfile holds the TLS trust and identity settings for a broker endpoint.
type TLSProfile struct {
	AllowUntrustedCertificates        bool
	IgnoreCertificateChainErrors      bool
	IgnoreCertificateRevocationErrors bool

	// Protocol is "1.2" (default when empty) or "1.3".
	Protocol string

	// Certificates are loaded in order. See loadCertificates for accepted formats.
	Certificates []CertificateSource
}

// CertificateSource points at a certificate file and its optional pass phrase.
type CertificateSource struct {
	File       string
	PassPhrase string
}

// Message is a single publish, also used for the last will.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Subscription is a topic filter with the QoS it is subscribed at.
type Subscription struct {
	Filter string
	QoS    byte
}

// ConnectOptions is everything a BrokerClient needs for one session.
// Build it with BuildOptions rather than by hand.
type ConnectOptions struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TLSConfig      *tls.Config
	Will           *Message
	CleanSession   bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
}

// HasCredentials reports whether the session authenticates with the broker.
func (o *ConnectOptions) HasCredentials() bool {
	return o.Username != "" && o.Password != ""
}

// NewEndpoint maps the configuration surface onto a BrokerEndpoint.
//
// The TLS profile is carried over whenever it is present in the configuration,
// even with TLS disabled; BuildOptions ignores it in that case.
func NewEndpoint(cfg config.MQTTConfig) BrokerEndpoint {
	ep := BrokerEndpoint{
		Host:           cfg.BrokerIP,
		Port:           cfg.BrokerPort,
		Username:       cfg.BrokerUsername,
		Password:       cfg.BrokerPassword,
		ReconnectDelay: cfg.ReconnectDelay(),
		UseTLS:         cfg.BrokerUseTLS,
	}

	if t := cfg.BrokerTLSSettings; t != nil {
		profile := &TLSProfile{
			AllowUntrustedCertificates:        t.AllowUntrustedCertificates,
			IgnoreCertificateChainErrors:      t.IgnoreCertificateChainErrors,
			IgnoreCertificateRevocationErrors: t.IgnoreCertificateRevocationErrors,
			Protocol:                          t.SSLProtocol,
		}
		for _, c := range t.Certificates {
			profile.Certificates = append(profile.Certificates, CertificateSource{
				File:       c.File,
				PassPhrase: c.PassPhrase,
			})
		}
		ep.TLS = profile
	}

	return ep
}

// BuildOptions validates an endpoint and composes the options for a session.
//
// It performs, in order:
//  1. TLS invariant check (UseTLS requires a profile)
//  2. Protocol version resolution and certificate loading
//  3. Credential selection (username and password are only used together)
//  4. Will message attachment
//
// No network I/O happens here, so every error is a pre-flight error:
// ErrConfiguration, ErrCertificateNotFound, or ErrUnsupportedProtocol
// (wrapped together with ErrConfiguration).
func BuildOptions(ep BrokerEndpoint, clientID string, will *Message) (*ConnectOptions, error) {
	if ep.Host == "" {
		return nil, fmt.Errorf("%w: broker host is required", ErrConfiguration)
	}
	if ep.Port < 1 || ep.Port > 65535 {
		return nil, fmt.Errorf("%w: broker port %d out of range", ErrConfiguration, ep.Port)
	}
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrConfiguration)
	}
	if ep.UseTLS && ep.TLS == nil {
		return nil, fmt.Errorf("%w: TLS enabled without a TLS profile", ErrConfiguration)
	}

	opts := &ConnectOptions{
		ClientID:       clientID,
		CleanSession:   true,
		KeepAlive:      defaultKeepAlive,
		ConnectTimeout: defaultConnectTimeout,
		ReconnectDelay: ep.ReconnectDelay,
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}

	scheme := "tcp"
	if ep.UseTLS {
		scheme = "ssl"
		tlsConfig, err := newTLSConfig(ep.Host, ep.TLS)
		if err != nil {
			return nil, err
		}
		opts.TLSConfig = tlsConfig
	}
	opts.BrokerURL = fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port)))

	if ep.Username != "" && ep.Password != "" {
		opts.Username = ep.Username
		opts.Password = ep.Password
	}

	if will != nil {
		if err := ValidateTopic(will.Topic); err != nil {
			return nil, fmt.Errorf("%w: will message: %w", ErrConfiguration, err)
		}
		if will.QoS > maxQoS {
			return nil, fmt.Errorf("%w: will message: %w", ErrConfiguration, ErrInvalidQoS)
		}
		w := *will
		opts.Will = &w
	}

	return opts, nil
}
