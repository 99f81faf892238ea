// Package device describes what a bridge exposes: a Hub of Devices, each
// with Controls that accept commands and, for stateful kinds, publish values.
//
// # Schema
//
//	Hub
//	 └── Device (name → topic slug)
//	      └── Control (id, kind, command topic, value topic)
//	           ├── button    momentary, no value
//	           ├── switch    on/off labels and arguments (ON/OFF by default)
//	           ├── dimmer    integer level within bounds (0..100 by default)
//	           └── selector  one key of a label map
//
// # Topics
//
// AssignTopics derives topics from the service's topic root:
//
//	{root}/{device-slug}/{control-id}/set    command
//	{root}/{device-slug}/{control-id}/state  value (stateful kinds)
//
// Slugs keep only [a-zA-Z0-9-]; see Sluggify.
//
// # Usage
//
//	hub, err := device.LoadHub("configs/hub.yaml")
//	if err != nil {
//	    return err
//	}
//	hub.AssignTopics(cfg.Service.TopicRoot)
//
//	reg, err := device.NewRegistry(hub)
//	if err != nil {
//	    return err
//	}
//	update, err := reg.Apply(topic, payload)
//
// The Registry is safe for concurrent use; Hub values are not and should be
// treated as read-only once indexed.
package device
