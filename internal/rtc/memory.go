package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// MemoryNetwork links in-process connections by their synthetic SDP so mesh
// logic can be exercised without sockets or ICE. An offer's SDP names the
// connection that produced it; applying the matching answer links the pair,
// opens mirrored channels and fires connected states on both ends.
type MemoryNetwork struct {
	mu    sync.Mutex
	seq   int
	conns map[string]*MemoryConn
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{conns: make(map[string]*MemoryConn)}
}

// Dialer returns a Dialer creating connections on this network. Every peer
// of a test shares one network.
func (n *MemoryNetwork) Dialer() Dialer {
	return memoryDialer{net: n}
}

type memoryDialer struct {
	net *MemoryNetwork
}

func (d memoryDialer) NewConn() (Conn, error) {
	return d.net.NewConn(), nil
}

// NewConn creates an unlinked connection. Exposed so tests can drive one end
// by hand.
func (n *MemoryNetwork) NewConn() *MemoryConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	c := &MemoryConn{
		net:      n,
		token:    fmt.Sprintf("memory-conn-%d", n.seq),
		dispatch: make(chan func(), 64),
		done:     make(chan struct{}),
	}
	n.conns[c.token] = c
	go c.dispatchLoop()
	return c
}

func (n *MemoryNetwork) lookup(sdp string) *MemoryConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[sdp]
}

// Conn returns the connection that minted the given synthetic SDP token, so
// tests can inspect an end they did not create themselves.
func (n *MemoryNetwork) Conn(token string) *MemoryConn {
	return n.lookup(token)
}

// FailingDialer always fails, for exercising primitive-creation errors.
type FailingDialer struct {
	Err error
}

func (d FailingDialer) NewConn() (Conn, error) {
	return nil, d.Err
}

// MemoryConn is one end of a potential in-memory pair. Callbacks run on a
// per-connection dispatch goroutine, one at a time, in post order, matching
// the delivery discipline of the production primitive.
type MemoryConn struct {
	net   *MemoryNetwork
	token string

	mu         sync.Mutex
	remote     *MemoryConn
	linked     bool
	localDesc  bool
	remoteSet  bool
	closed     bool
	candidates []signaling.Candidate
	channels   []*MemoryChannel

	onCandidate func(signaling.Candidate)
	onChannel   func(Channel)
	onState     func(State)

	dispatch chan func()
	done     chan struct{}
}

func (c *MemoryConn) dispatchLoop() {
	for {
		select {
		case fn := <-c.dispatch:
			fn()
		case <-c.done:
			// Drain what was queued before shutdown, then stop.
			for {
				select {
				case fn := <-c.dispatch:
					fn()
				default:
					return
				}
			}
		}
	}
}

func (c *MemoryConn) post(fn func()) {
	select {
	case c.dispatch <- fn:
	case <-c.done:
	}
}

func (c *MemoryConn) CreateOffer() (signaling.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.SessionDescription{}, errors.New("connection closed")
	}
	c.localDesc = true
	return signaling.SessionDescription{Type: "offer", SDP: c.token}, nil
}

func (c *MemoryConn) CreateAnswer() (signaling.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return signaling.SessionDescription{}, errors.New("connection closed")
	}
	if !c.remoteSet {
		return signaling.SessionDescription{}, errors.New("no remote offer to answer")
	}
	c.localDesc = true
	return signaling.SessionDescription{Type: "answer", SDP: c.token}, nil
}

func (c *MemoryConn) SetRemoteDescription(desc signaling.SessionDescription) error {
	peer := c.net.lookup(desc.SDP)
	if peer == nil {
		return fmt.Errorf("unknown session description %q", desc.SDP)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	if c.remoteSet {
		c.mu.Unlock()
		return errors.New("remote description already set")
	}
	// Same signaling-state rules as the real primitive: a remote offer is
	// invalid once a local offer exists, a remote answer needs one.
	switch desc.Type {
	case "offer":
		if c.localDesc {
			c.mu.Unlock()
			return errors.New("cannot apply remote offer in have-local-offer state")
		}
	case "answer":
		if !c.localDesc {
			c.mu.Unlock()
			return errors.New("no pending local offer")
		}
	default:
		c.mu.Unlock()
		return fmt.Errorf("unexpected session description type: %s", desc.Type)
	}
	c.remoteSet = true
	c.remote = peer
	c.mu.Unlock()

	if desc.Type == "answer" {
		c.net.linkPair(c, peer)
	}
	return nil
}

func (c *MemoryConn) AddCandidate(cand signaling.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if !c.remoteSet {
		return errors.New("remote description is not set")
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

// AppliedCandidates reports every candidate accepted so far, in order.
func (c *MemoryConn) AppliedCandidates() []signaling.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]signaling.Candidate, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// EmitCandidate simulates local candidate discovery.
func (c *MemoryConn) EmitCandidate(cand signaling.Candidate) {
	c.post(func() {
		if c.onCandidate != nil {
			c.onCandidate(cand)
		}
	})
}

func (c *MemoryConn) CreateChannel(label string) (Channel, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("connection closed")
	}
	ch := &MemoryChannel{parent: c, label: label}
	c.channels = append(c.channels, ch)
	linked := c.linked
	remote := c.remote
	c.mu.Unlock()

	if linked {
		mirrorChannel(ch, remote)
	}
	return ch, nil
}

func (c *MemoryConn) OnCandidate(fn func(signaling.Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *MemoryConn) OnChannel(fn func(Channel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChannel = fn
}

func (c *MemoryConn) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *MemoryConn) fireState(s State) {
	c.post(func() {
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})
}

func (c *MemoryConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	remote := c.remote
	linked := c.linked
	chans := make([]*MemoryChannel, len(c.channels))
	copy(chans, c.channels)
	c.mu.Unlock()

	for _, ch := range chans {
		ch.shutdown()
	}
	c.fireState(StateClosed)
	if linked && remote != nil {
		remote.peerWentAway()
	}
	close(c.done)
	return nil
}

// peerWentAway mimics the remote side noticing a closed counterpart.
func (c *MemoryConn) peerWentAway() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	chans := make([]*MemoryChannel, len(c.channels))
	copy(chans, c.channels)
	c.mu.Unlock()

	for _, ch := range chans {
		ch.shutdown()
	}
	c.fireState(StateDisconnected)
}

// linkPair completes a negotiation: both ends report connected and every
// channel created by either side gets a mirror on the other.
func (n *MemoryNetwork) linkPair(a, b *MemoryConn) {
	a.mu.Lock()
	a.linked = true
	aChans := make([]*MemoryChannel, len(a.channels))
	copy(aChans, a.channels)
	a.mu.Unlock()

	b.mu.Lock()
	b.linked = true
	b.remote = a
	bChans := make([]*MemoryChannel, len(b.channels))
	copy(bChans, b.channels)
	b.mu.Unlock()

	a.fireState(StateConnected)
	b.fireState(StateConnected)

	for _, ch := range aChans {
		mirrorChannel(ch, b)
	}
	for _, ch := range bChans {
		mirrorChannel(ch, a)
	}
}

// mirrorChannel announces ch to the far side and opens both ends. The far
// side's announce is posted before its open, so handlers registered inside
// OnChannel always see the open event.
func mirrorChannel(ch *MemoryChannel, far *MemoryConn) {
	mirror := &MemoryChannel{parent: far, label: ch.label}

	far.mu.Lock()
	far.channels = append(far.channels, mirror)
	far.mu.Unlock()

	ch.mu.Lock()
	ch.peer = mirror
	ch.mu.Unlock()
	mirror.mu.Lock()
	mirror.peer = ch
	mirror.mu.Unlock()

	far.post(func() {
		far.mu.Lock()
		fn := far.onChannel
		far.mu.Unlock()
		if fn != nil {
			fn(mirror)
		}
	})
	mirror.fireOpen()
	ch.fireOpen()
}

// MemoryChannel is one end of a mirrored channel pair.
type MemoryChannel struct {
	parent *MemoryConn
	label  string

	mu        sync.Mutex
	peer      *MemoryChannel
	open      bool
	closed    bool
	onOpen    func()
	onClose   func()
	onMessage func([]byte)
}

func (ch *MemoryChannel) Label() string {
	return ch.label
}

func (ch *MemoryChannel) Send(data []byte) error {
	ch.mu.Lock()
	open := ch.open && !ch.closed
	peer := ch.peer
	ch.mu.Unlock()

	if !open || peer == nil {
		return errors.New("channel not open")
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	peer.parent.post(func() {
		peer.mu.Lock()
		fn := peer.onMessage
		peer.mu.Unlock()
		if fn != nil {
			fn(buf)
		}
	})
	return nil
}

func (ch *MemoryChannel) OnOpen(fn func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onOpen = fn
}

func (ch *MemoryChannel) OnClose(fn func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onClose = fn
}

func (ch *MemoryChannel) OnMessage(fn func(data []byte)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.onMessage = fn
}

func (ch *MemoryChannel) Close() error {
	ch.mu.Lock()
	peer := ch.peer
	ch.mu.Unlock()

	ch.shutdown()
	if peer != nil {
		peer.shutdown()
	}
	return nil
}

func (ch *MemoryChannel) fireOpen() {
	ch.mu.Lock()
	ch.open = true
	ch.mu.Unlock()
	ch.parent.post(func() {
		ch.mu.Lock()
		fn := ch.onOpen
		ch.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (ch *MemoryChannel) shutdown() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	wasOpen := ch.open
	ch.open = false
	ch.mu.Unlock()

	if wasOpen {
		ch.parent.post(func() {
			ch.mu.Lock()
			fn := ch.onClose
			ch.mu.Unlock()
			if fn != nil {
				fn()
			}
		})
	}
}
