// Gray Logic BridgeKit - MQTT bridge service host
//
// This is the entry point for a BridgeKit service. It loads configuration,
// sets up logging, and runs a derived service under the lifecycle
// controller, which owns the broker session:
//   - Retained liveness on {topic_root}/connected, with a last will
//   - Subscriptions restored on every reconnect
//   - Clean shutdown on SIGINT/SIGTERM
//
// The bundled service is a virtual hub: it publishes a device schema and
// echoes accepted commands back as retained state.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	golog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jessevdk/go-flags"

	"github.com/nerrad567/gray-logic-bridgekit/internal/device"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-bridgekit/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-bridgekit/internal/lifecycle"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// shutdownTimeout bounds the stop sequence after a signal or fatal error.
const shutdownTimeout = 10 * time.Second

// Options are the command line flags.
type Options struct {
	Config   string `long:"config" short:"c" env:"BRIDGEKIT_CONFIG" default:"configs/config.yaml" description:"Path to the YAML configuration file"`
	Verbose  []bool `long:"verbose" short:"v" description:"Log at debug level"`
	MQTTLogs bool   `long:"mqttlogs" short:"m" description:"For developer - show MQTT client library logs on stderr"`
	Version  bool   `long:"version" description:"Print version information and exit"`
}

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	if opts.Version {
		fmt.Printf("bridgekit %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseOptions parses command line arguments. Parse errors and help output
// are printed by the parser itself.
func parseOptions(args []string) (*Options, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return &opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command line flags
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts *Options) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting BridgeKit",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if len(opts.Verbose) > 0 {
		cfg.Logging.Level = "debug"
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, cfg.Service.Name, version)
	defer func() {
		if closeErr := log.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "closing log file: %v\n", closeErr)
		}
	}()
	log.Info("configuration loaded",
		"path", opts.Config,
		"topic_root", cfg.Service.TopicRoot,
		"level", cfg.Logging.Level,
	)

	if opts.MQTTLogs {
		routeClientLogs(os.Stderr)
	}

	policy, err := lifecycle.ParsePolicy(cfg.MQTT.DisconnectPolicy)
	if err != nil {
		return err
	}

	hub, err := loadHub(cfg.Service)
	if err != nil {
		return fmt.Errorf("loading hub: %w", err)
	}
	hub.AssignTopics(cfg.Service.TopicRoot)

	registry, err := device.NewRegistry(hub)
	if err != nil {
		return fmt.Errorf("indexing hub: %w", err)
	}
	registry.SetLogger(log)

	svc, err := newVirtualHub(registry, cfg.Service.TopicRoot, log)
	if err != nil {
		return err
	}

	ctrl, err := lifecycle.New(lifecycle.Options{
		Service:   svc,
		Endpoint:  mqtt.NewEndpoint(cfg.MQTT),
		TopicRoot: cfg.Service.TopicRoot,
		Filters:   hub.CommandTopics(),
		Policy:    policy,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("creating lifecycle controller: %w", err)
	}
	svc.bind(ctrl)

	if err := ctrl.Start(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown requested before the service started")
			return nil
		}
		return fmt.Errorf("starting service: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", len(hub.Devices),
		"controls", registry.ControlCount(),
	)

	var fatal error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case fatal = <-ctrl.Fatal():
		log.Error("broker session lost, shutting down", "error", fatal)
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		log.Warn("stop did not complete", "error", err)
	}

	if fatal != nil {
		return fmt.Errorf("broker session: %w", fatal)
	}
	log.Info("BridgeKit stopped")
	return nil
}

// loadHub reads the configured hub file, or falls back to the built-in
// demo hub when none is configured.
func loadHub(cfg config.ServiceConfig) (*device.Hub, error) {
	if cfg.HubFile == "" {
		hub := defaultHub(cfg.Name)
		if err := hub.Validate(); err != nil {
			return nil, err
		}
		return hub, nil
	}
	return device.LoadHub(cfg.HubFile)
}

// routeClientLogs enables the paho library loggers, which are silent by default.
func routeClientLogs(w io.Writer) {
	pahomqtt.ERROR = golog.New(w, "[ERROR] ", 0)
	pahomqtt.CRITICAL = golog.New(w, "[CRIT] ", 0)
	pahomqtt.WARN = golog.New(w, "[WARN]  ", 0)
	pahomqtt.DEBUG = golog.New(w, "[DEBUG] ", 0)
}
