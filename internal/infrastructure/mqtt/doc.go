// Package mqtt provides MQTT broker connectivity for BridgeKit services.
//
// This package manages:
//   - The BrokerClient capability and its paho.mqtt.golang implementation
//   - Broker endpoint and TLS profile modelling
//   - Pre-flight option building (TLS, certificates, credentials, last will)
//   - The connection state reported on the status topic
//   - Topic builders and filter validation
//
// # Architecture
//
// A BridgeKit service bridges one device hub to the broker. Everything it
// owns lives under a single topic root:
//
//	{root}/connected                 retained liveness (0, 1, 2)
//	{root}/hub                       retained hub schema
//	{root}/{device}/{control}/set    commands
//	{root}/{device}/{control}/state  retained control values
//
// The client in this package performs exactly one connection attempt per
// Connect call. Retry, resubscription, and status announcements belong to
// the lifecycle package.
//
// # Security Considerations
//
//   - TLS is opt-in per endpoint and pinned to one protocol version
//   - Client certificates may be PEM (certificate and key in one file) or
//     pass-phrase protected PKCS#12 bundles
//   - Credentials are only sent when both username and password are set
//
// # Usage
//
//	ep := mqtt.NewEndpoint(cfg.MQTT)
//	will := &mqtt.Message{Topic: topics.Connected(), Payload: mqtt.Disconnected.Payload(), QoS: 1, Retained: true}
//	opts, err := mqtt.BuildOptions(ep, clientID, will)
//	if err != nil {
//	    return err
//	}
//
//	client := mqtt.NewPahoClient()
//	if err := client.Connect(ctx, opts); err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
