package bridge

import "github.com/taskhive/realtime/src/hub"

// Bridge relays realtime events between server instances so a client on
// one instance sees messages sent to a conversation hosted on another.
type Bridge interface {
	// Publish sends an event to all other instances via the bridge.
	Publish(ev hub.BridgeEvent) error

	// Start begins listening for events from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// CastTarget is implemented by the Hub to receive events from the bridge.
type CastTarget interface {
	CastLocal(ev hub.BridgeEvent)
}
