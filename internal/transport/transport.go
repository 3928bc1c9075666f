// Package transport defines the narrow event transport the chat client talks through.
package transport

import "encoding/json"

// Listener receives the raw payload of a named event.
type Listener func(payload json.RawMessage)

// Options tune a connection attempt.
type Options struct {
	// Secure forces a TLS scheme on the endpoint.
	Secure bool
}

// Transport is a bidirectional named-event channel.
//
// Connect must not block on the network: it acknowledges asynchronously by
// dispatching proto.EventConnect or proto.EventConnectError to listeners.
type Transport interface {
	Connect(url string, opts Options) error
	On(event string, fn Listener)
	Emit(event string, payload any) error
	Close() error
}
