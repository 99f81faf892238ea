package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for a BridgeKit service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig identifies the service instance.
type ServiceConfig struct {
	Name      string `yaml:"name" validate:"required"`
	TopicRoot string `yaml:"topic_root" validate:"required,excludesall=+#"`

	// HubFile is an optional hub schema (YAML) served by the virtual hub.
	HubFile string `yaml:"hub_file"`
}

// MQTTConfig contains MQTT broker connection settings.
// Key names match the broker settings block used by existing deployments.
type MQTTConfig struct {
	BrokerIP                    string         `yaml:"brokerIp" validate:"required"`
	BrokerPort                  int            `yaml:"brokerPort" validate:"min=1,max=65535"`
	BrokerUsername              string         `yaml:"brokerUsername"`
	BrokerPassword              string         `yaml:"brokerPassword"`
	BrokerReconnectDelaySeconds int            `yaml:"brokerReconnectDelaySeconds" validate:"min=1"`
	BrokerUseTLS                bool           `yaml:"brokerUseTls"`
	BrokerTLSSettings           *MQTTTLSConfig `yaml:"brokerTlsSettings"`

	// DisconnectPolicy decides what happens when an established session drops:
	// "reconnect" or "fail-fast".
	DisconnectPolicy string `yaml:"disconnectPolicy" validate:"oneof=reconnect fail-fast"`
}

// MQTTTLSConfig contains broker TLS settings.
// Semantic checks (protocol support, certificate presence) happen when the
// broker options are built.
type MQTTTLSConfig struct {
	AllowUntrustedCertificates        bool                 `yaml:"allowUntrustedCertificates"`
	IgnoreCertificateChainErrors      bool                 `yaml:"ignoreCertificateChainErrors"`
	IgnoreCertificateRevocationErrors bool                 `yaml:"ignoreCertificateRevocationErrors"`
	SSLProtocol                       string               `yaml:"sslProtocol"`
	Certificates                      []MQTTTLSCertificate `yaml:"certificates" validate:"dive"`
}

// MQTTTLSCertificate points at a certificate file.
type MQTTTLSCertificate struct {
	File       string `yaml:"file" validate:"required"`
	PassPhrase string `yaml:"passPhrase"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level" validate:"oneof=debug info warn error"`
	Format string            `yaml:"format" validate:"oneof=json text"`
	Output string            `yaml:"output" validate:"oneof=stdout stderr discard"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// File logging is enabled when Path is set.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size" validate:"min=0"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0"`
	MaxAge     int    `yaml:"max_age" validate:"min=0"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BRIDGEKIT_SECTION_KEY
// For example: BRIDGEKIT_MQTT_BROKER_IP, BRIDGEKIT_LOG_LEVEL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "bridgekit",
			TopicRoot: "bridgekit",
		},
		MQTT: MQTTConfig{
			BrokerIP:                    "127.0.0.1",
			BrokerPort:                  1883,
			BrokerReconnectDelaySeconds: 5,
			DisconnectPolicy:            "reconnect",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     30,
				Compress:   true,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BRIDGEKIT_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Service
	if v := os.Getenv("BRIDGEKIT_TOPIC_ROOT"); v != "" {
		cfg.Service.TopicRoot = v
	}

	// MQTT
	if v := os.Getenv("BRIDGEKIT_MQTT_BROKER_IP"); v != "" {
		cfg.MQTT.BrokerIP = v
	}
	if v := os.Getenv("BRIDGEKIT_MQTT_BROKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing BRIDGEKIT_MQTT_BROKER_PORT: %w", err)
		}
		cfg.MQTT.BrokerPort = port
	}
	if v := os.Getenv("BRIDGEKIT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.BrokerUsername = v
	}
	if v := os.Getenv("BRIDGEKIT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.BrokerPassword = v
	}

	// Logging
	if v := os.Getenv("BRIDGEKIT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Every violation is reported, keyed by its YAML path.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("configuration errors: %w", err)
	}

	errs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, describe(fe))
	}
	return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
}

// ReconnectDelay returns the broker reconnect delay as a Duration.
func (c MQTTConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.BrokerReconnectDelaySeconds) * time.Second
}

// newValidator returns a validator that names fields by their YAML keys.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describe renders a field error as "path reason".
func describe(fe validator.FieldError) string {
	// Namespace is "Config.mqtt.brokerPort"; drop the root type.
	_, path, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", path, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "max":
		if strings.HasSuffix(path, "Port") {
			return path + " must be between 1 and 65535"
		}
		if fe.Tag() == "min" {
			return fmt.Sprintf("%s must be at least %s", path, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	case "excludesall":
		return path + " must not contain MQTT wildcards"
	default:
		return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
}
