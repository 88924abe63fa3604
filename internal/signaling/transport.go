// Package signaling defines the rendezvous envelope scheme and the transport
// seam it travels through. Three variants exist: a websocket client speaking
// to the room relay, a same-device bus, and a manual copy-paste exchange for
// exactly two peers. The mesh layer never branches on which one it holds.
package signaling

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned by Send after Close, or when the underlying
// delivery path has gone away.
var ErrTransportClosed = errors.New("transport closed")

// Transport is the rendezvous seam. Delivery is best effort: Send never
// blocks on remote peers, and inbound envelopes arrive on the handler
// registered with OnEnvelope, one at a time, in arrival order.
//
// OnEnvelope must be called before Connect.
type Transport interface {
	// Connect establishes the variant's delivery path. The context bounds
	// the wait; variants without a remote endpoint return immediately.
	Connect(ctx context.Context) error

	// Send dispatches one envelope. Directed envelopes carry their target in
	// To; the relay variant forwards everything to the server, the bus
	// delivers targeted envelopes to that endpoint and broadcasts the rest.
	Send(env Envelope) error

	// OnEnvelope registers the single inbound handler.
	OnEnvelope(fn func(Envelope))

	// Close releases the delivery path. Safe to call more than once.
	Close() error
}
