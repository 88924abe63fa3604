package mesh

import (
	"log/slog"
	"sort"

	"github.com/LittleBoy9/peerbeam/internal/identity"
	"github.com/LittleBoy9/peerbeam/internal/rtc"
	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// chatChannelLabel names the single data channel each pair shares.
const chatChannelLabel = "chat"

// peerLink is one peer record: the connection, its channel, negotiation
// state, and the candidates that arrived before the remote description.
type peerLink struct {
	id          string
	name        string
	conn        rtc.Conn
	channel     rtc.Channel
	channelOpen bool
	state       ConnState
	remoteSet   bool
	pending     []signaling.Candidate
}

func (l *peerLink) entry() RosterEntry {
	return RosterEntry{ID: l.id, Name: l.name, State: l.state, ChannelOpen: l.channelOpen}
}

// negotiator drives connection setup per peer. Every method runs on the
// coordinator loop, so the record map needs no locking.
type negotiator struct {
	self   identity.Identity
	dialer rtc.Dialer
	links  map[string]*peerLink

	send   func(signaling.Envelope)
	post   func(any)
	failed func(id, name string, err error)
}

func newNegotiator(self identity.Identity, dialer rtc.Dialer, send func(signaling.Envelope), post func(any), failed func(id, name string, err error)) *negotiator {
	return &negotiator{
		self:   self,
		dialer: dialer,
		links:  make(map[string]*peerLink),
		send:   send,
		post:   post,
		failed: failed,
	}
}

// link returns the record for id, or nil.
func (n *negotiator) link(id string) *peerLink {
	return n.links[id]
}

// initiate creates a record for a discovered peer and offers to it. A second
// initiate for a live id is a no-op, so repeated discovery never produces a
// second record.
func (n *negotiator) initiate(id, name string) {
	if _, ok := n.links[id]; ok {
		slog.Debug("initiate skipped, record exists", "peer", id)
		return
	}

	conn, err := n.dialer.NewConn()
	if err != nil {
		slog.Error("peer connection setup failed", "peer", id, "error", err)
		n.failed(id, name, newPeerError("initiate", id, err))
		return
	}

	link := &peerLink{id: id, name: name, conn: conn, state: StateNegotiating}
	n.links[id] = link
	n.wire(link)

	// The channel must exist before the offer so it rides in the description.
	ch, err := conn.CreateChannel(chatChannelLabel)
	if err != nil {
		n.fail(link, newPeerError("initiate", id, err))
		return
	}
	n.hookChannel(id, conn, ch)
	link.channel = ch

	offer, err := conn.CreateOffer()
	if err != nil {
		n.fail(link, newPeerError("initiate", id, err))
		return
	}
	n.send(signaling.NewOffer(n.self.ID, n.self.Name, id, offer))
}

// receiveOffer answers an inbound offer, creating the record when the peer
// is new. On a record already holding a local offer the remote description
// is attempted anyway: whichever side's description applies first wins, and
// a rejection leaves the existing record untouched.
func (n *negotiator) receiveOffer(env signaling.Envelope) {
	if env.From == "" || env.Offer == nil {
		slog.Warn("dropping malformed offer", "from", env.From)
		return
	}

	if link, ok := n.links[env.From]; ok {
		if link.remoteSet {
			slog.Debug("dropping duplicate offer", "from", env.From)
			return
		}
		if err := link.conn.SetRemoteDescription(*env.Offer); err != nil {
			slog.Debug("offer collision, keeping local offer", "from", env.From, "error", err)
			return
		}
		link.remoteSet = true
		if env.FromName != "" {
			link.name = env.FromName
		}
		n.flushPending(link)
		n.sendAnswer(link)
		return
	}

	conn, err := n.dialer.NewConn()
	if err != nil {
		slog.Error("peer connection setup failed", "peer", env.From, "error", err)
		n.failed(env.From, env.FromName, newPeerError("accept", env.From, err))
		return
	}

	link := &peerLink{id: env.From, name: env.FromName, conn: conn, state: StateNegotiating}
	n.links[env.From] = link
	n.wire(link)

	if err := conn.SetRemoteDescription(*env.Offer); err != nil {
		n.fail(link, newPeerError("accept", env.From, err))
		return
	}
	link.remoteSet = true
	n.flushPending(link)
	n.sendAnswer(link)
}

func (n *negotiator) sendAnswer(link *peerLink) {
	answer, err := link.conn.CreateAnswer()
	if err != nil {
		n.fail(link, newPeerError("answer", link.id, err))
		return
	}
	n.send(signaling.NewAnswer(n.self.ID, n.self.Name, link.id, answer))
}

// receiveAnswer completes a negotiation this side initiated. Answers with no
// matching record, or for a record whose remote description is already set,
// are stale and dropped.
func (n *negotiator) receiveAnswer(env signaling.Envelope) {
	link, ok := n.links[env.From]
	if !ok || link.remoteSet {
		slog.Debug("dropping stale answer", "from", env.From)
		return
	}
	if env.Answer == nil {
		slog.Warn("dropping malformed answer", "from", env.From)
		return
	}

	if err := link.conn.SetRemoteDescription(*env.Answer); err != nil {
		n.fail(link, newPeerError("apply answer", link.id, err))
		return
	}
	link.remoteSet = true
	if env.FromName != "" {
		link.name = env.FromName
	}
	n.flushPending(link)
}

// receiveCandidate adds a candidate, queueing it while the record's remote
// description is still pending. Candidates with no matching record are
// stale and dropped.
func (n *negotiator) receiveCandidate(env signaling.Envelope) {
	link, ok := n.links[env.From]
	if !ok {
		slog.Debug("dropping candidate for unknown peer", "from", env.From)
		return
	}
	if env.Candidate == nil {
		slog.Warn("dropping malformed candidate", "from", env.From)
		return
	}

	if !link.remoteSet {
		link.pending = append(link.pending, *env.Candidate)
		return
	}
	if err := link.conn.AddCandidate(*env.Candidate); err != nil {
		slog.Warn("add candidate failed", "peer", link.id, "error", err)
	}
}

// flushPending applies queued candidates in arrival order, once.
func (n *negotiator) flushPending(link *peerLink) {
	for _, cand := range link.pending {
		if err := link.conn.AddCandidate(cand); err != nil {
			slog.Warn("add candidate failed", "peer", link.id, "error", err)
		}
	}
	link.pending = nil
}

// teardown closes a record's handles and removes it. Returns the removed
// record, or nil when the id is unknown.
func (n *negotiator) teardown(id string) *peerLink {
	link, ok := n.links[id]
	if !ok {
		return nil
	}
	delete(n.links, id)
	if link.channel != nil {
		link.channel.Close()
	}
	if err := link.conn.Close(); err != nil {
		slog.Debug("connection close", "peer", id, "error", err)
	}
	link.state = StateDisconnected
	link.channelOpen = false
	return link
}

// teardownAll clears every record.
func (n *negotiator) teardownAll() {
	for id := range n.links {
		n.teardown(id)
	}
}

func (n *negotiator) fail(link *peerLink, err error) {
	slog.Error("negotiation failed", "peer", link.id, "error", err)
	n.teardown(link.id)
	n.failed(link.id, link.name, err)
}

// broadcast sends one payload to every open channel, skipping and logging
// per-peer failures. Returns the number of peers reached.
func (n *negotiator) broadcast(data []byte) int {
	sent := 0
	for _, link := range n.links {
		if !link.channelOpen {
			continue
		}
		if err := link.channel.Send(data); err != nil {
			slog.Warn("send failed, skipping peer", "peer", link.id, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// roster snapshots every record, sorted by name then id.
func (n *negotiator) roster() []RosterEntry {
	entries := make([]RosterEntry, 0, len(n.links))
	for _, link := range n.links {
		entries = append(entries, link.entry())
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// wire posts connection callbacks into the loop, tagged with the connection
// handle so events for replaced records are dropped as no-ops.
func (n *negotiator) wire(link *peerLink) {
	id, conn := link.id, link.conn
	conn.OnCandidate(func(cand signaling.Candidate) {
		n.post(candidateFound{peer: id, conn: conn, cand: cand})
	})
	conn.OnStateChange(func(state rtc.State) {
		n.post(connStateChanged{peer: id, conn: conn, state: state})
	})
	conn.OnChannel(func(ch rtc.Channel) {
		n.hookChannel(id, conn, ch)
		n.post(channelArrived{peer: id, conn: conn, channel: ch})
	})
}

// hookChannel registers channel callbacks straight away, on the primitive's
// callback goroutine, so no open or message event can slip past before the
// loop stores the channel. The hooks only post.
func (n *negotiator) hookChannel(id string, conn rtc.Conn, ch rtc.Channel) {
	ch.OnOpen(func() {
		n.post(channelOpened{peer: id, conn: conn})
	})
	ch.OnClose(func() {
		n.post(channelClosed{peer: id, conn: conn})
	})
	ch.OnMessage(func(data []byte) {
		n.post(channelMessage{peer: id, conn: conn, data: data})
	})
}
