package signaling

import (
	"context"
	"log/slog"
	"sync"
)

const busInboxSize = 64

// Bus is the same-device rendezvous: every endpoint attached to one Bus can
// reach every other without a server. Peers on a bus discover each other
// through announce envelopes rather than room membership replies.
type Bus struct {
	mu        sync.Mutex
	endpoints map[string]*BusTransport
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{endpoints: make(map[string]*BusTransport)}
}

// Endpoint creates a transport attached to this bus for the given peer id.
// The endpoint joins the bus on Connect, not on creation.
func (b *Bus) Endpoint(peerID string) *BusTransport {
	return &BusTransport{
		bus:    b,
		peerID: peerID,
		inbox:  make(chan Envelope, busInboxSize),
		done:   make(chan struct{}),
	}
}

func (b *Bus) attach(t *BusTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints[t.peerID] = t
}

func (b *Bus) detach(t *BusTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endpoints[t.peerID] == t {
		delete(b.endpoints, t.peerID)
	}
}

// route delivers an envelope to one endpoint, or to everyone but the sender
// when target is empty.
func (b *Bus) route(from string, target string, env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if target != "" {
		if ep, ok := b.endpoints[target]; ok {
			ep.deliver(env)
		}
		return
	}
	for id, ep := range b.endpoints {
		if id == from {
			continue
		}
		ep.deliver(env)
	}
}

// BusTransport is one endpoint of a Bus.
type BusTransport struct {
	bus       *Bus
	peerID    string
	inbox     chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	handler   func(Envelope)
}

// OnEnvelope registers the inbound handler. Must be called before Connect.
func (t *BusTransport) OnEnvelope(fn func(Envelope)) {
	t.handler = fn
}

// Connect attaches the endpoint to the bus and starts inbound delivery.
func (t *BusTransport) Connect(ctx context.Context) error {
	t.bus.attach(t)
	go t.run()
	return nil
}

// run drains the inbox so each endpoint sees envelopes one at a time, in
// arrival order.
func (t *BusTransport) run() {
	for {
		select {
		case env := <-t.inbox:
			if t.handler != nil {
				t.handler(env)
			}
		case <-t.done:
			return
		}
	}
}

func (t *BusTransport) deliver(env Envelope) {
	select {
	case t.inbox <- env:
	default:
		slog.Warn("bus inbox full, dropping envelope", "peer", t.peerID, "type", env.Type)
	}
}

// Send routes one envelope through the bus. The generic join and leave
// announcements become bus announces; room listing has no meaning here and
// is dropped.
func (t *BusTransport) Send(env Envelope) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	switch env.Type {
	case TypeJoin:
		env = NewAnnounce(env.PeerID, env.PeerName)
	case TypeGetRooms:
		slog.Debug("room listing not supported on the local bus")
		return nil
	}

	t.bus.route(t.peerID, env.To, env)
	return nil
}

// Close detaches the endpoint from the bus.
func (t *BusTransport) Close() error {
	t.closeOnce.Do(func() {
		t.bus.detach(t)
		close(t.done)
	})
	return nil
}
