// Package lifecycle manages the broker session of a BridgeKit service.
//
// A Controller composes four parts:
//   - Supervisor: builds session options, runs the connect retry loop,
//     disconnects, and releases the client handle
//   - SubscriptionManager: the declarative filter set, re-applied on every connect
//   - StatusAnnouncer: the retained {root}/connected status and last will
//   - Service: the derived service's start/stop hooks and message handler
//
// # Lifecycle
//
//	Idle --Start--> Starting --connected, OnServiceStart--> Running
//	Running --Stop--> Stopping --OnServiceStop, "0", unsubscribe, disconnect--> Idle
//
// Connection failures during Start are retried at the endpoint's reconnect
// delay and never surfaced, so OnServiceStart only runs against a live
// session. An unexpected drop while running either reconnects (the default)
// or is reported on Fatal, depending on the DisconnectPolicy. Drops seen
// while stopping are expected and ignored.
//
// # Usage
//
//	ctrl, err := lifecycle.New(lifecycle.Options{
//	    Service:   svc,
//	    Endpoint:  mqtt.NewEndpoint(cfg.MQTT),
//	    TopicRoot: cfg.Service.TopicRoot,
//	    Filters:   []string{mqtt.Topics{Root: cfg.Service.TopicRoot}.AllCommands()},
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := ctrl.Start(ctx); err != nil {
//	    return err
//	}
//	defer ctrl.Stop(context.Background())
package lifecycle
