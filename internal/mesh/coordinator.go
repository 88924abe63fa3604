// Package mesh coordinates a full mesh of peer connections discovered over a
// signaling transport. One loop goroutine owns all per-peer state; transport
// handlers, connection callbacks, and the public API feed it through
// channels.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/LittleBoy9/peerbeam/internal/identity"
	"github.com/LittleBoy9/peerbeam/internal/rtc"
	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// Internal loop events. Connection callbacks carry the connection handle;
// the loop ignores events whose handle no longer matches the record.
type envIn struct {
	env signaling.Envelope
}

type transportLost struct {
	err error
}

type candidateFound struct {
	peer string
	conn rtc.Conn
	cand signaling.Candidate
}

type connStateChanged struct {
	peer  string
	conn  rtc.Conn
	state rtc.State
}

type channelArrived struct {
	peer    string
	conn    rtc.Conn
	channel rtc.Channel
}

type channelOpened struct {
	peer string
	conn rtc.Conn
}

type channelClosed struct {
	peer string
	conn rtc.Conn
}

type channelMessage struct {
	peer string
	conn rtc.Conn
	data []byte
}

// Loop commands from the public API.
type cmdJoin struct {
	ctx    context.Context
	roomID string
	resp   chan error
}

type cmdSend struct {
	text string
	resp chan sendResult
}

type cmdLeave struct {
	resp chan struct{}
}

type cmdRoster struct {
	resp chan []RosterEntry
}

type cmdRooms struct {
	ctx  context.Context
	resp chan roomsResult
}

type sendResult struct {
	msg ChatMessage
	err error
}

type roomsResult struct {
	rooms []signaling.RoomSummary
	err   error
}

// Coordinator owns the peer roster and fans chat out across it. It never
// inspects which transport variant it is running over; variant differences
// live behind the signaling.Transport seam.
type Coordinator struct {
	self      identity.Identity
	transport signaling.Transport
	neg       *negotiator

	events  chan any
	updates chan Event
	done    chan struct{}

	// Loop-owned state.
	connected   bool
	joined      bool
	roomsWaiter chan roomsResult
}

// New wires a coordinator over a transport and a connection dialer and
// starts its loop.
func New(self identity.Identity, transport signaling.Transport, dialer rtc.Dialer) *Coordinator {
	c := &Coordinator{
		self:      self,
		transport: transport,
		events:    make(chan any, 256),
		updates:   make(chan Event, 64),
		done:      make(chan struct{}),
	}
	c.neg = newNegotiator(self, dialer, c.sendEnvelope, c.post, c.peerFailed)

	transport.OnEnvelope(func(env signaling.Envelope) {
		c.post(envIn{env: env})
	})
	if notifier, ok := transport.(signaling.CloseNotifier); ok {
		notifier.OnClosed(func(err error) {
			c.post(transportLost{err: err})
		})
	}

	go c.run()
	return c
}

// Events returns the host-facing event feed. It is closed by Leave.
func (c *Coordinator) Events() <-chan Event {
	return c.updates
}

// Self returns the local identity.
func (c *Coordinator) Self() identity.Identity {
	return c.self
}

// Join connects the transport and enters roomID. Membership and connection
// progress arrive as events.
func (c *Coordinator) Join(ctx context.Context, roomID string) error {
	roomID = signaling.NormalizeRoomID(roomID)
	if roomID == "" {
		return newError("join", errors.New("room id required"))
	}
	cmd := cmdJoin{ctx: ctx, roomID: roomID, resp: make(chan error, 1)}
	if err := c.postCmd(cmd); err != nil {
		return newError("join", err)
	}
	select {
	case err := <-cmd.resp:
		return err
	case <-c.done:
		return newError("join", ErrCoordinatorDone)
	}
}

// CreateOrJoin joins roomID, generating a fresh id when none is given.
// Returns the room id in use.
func (c *Coordinator) CreateOrJoin(ctx context.Context, roomID string) (string, error) {
	roomID = signaling.NormalizeRoomID(roomID)
	if roomID == "" {
		roomID = signaling.GenerateRoomID()
	}
	return roomID, c.Join(ctx, roomID)
}

// SendMessage fans text out to every open channel and returns the message as
// sent, for local echo. Peers whose channel is not open are skipped.
func (c *Coordinator) SendMessage(text string) (ChatMessage, error) {
	cmd := cmdSend{text: text, resp: make(chan sendResult, 1)}
	if err := c.postCmd(cmd); err != nil {
		return ChatMessage{}, newError("send", err)
	}
	select {
	case r := <-cmd.resp:
		return r.msg, r.err
	case <-c.done:
		return ChatMessage{}, newError("send", ErrCoordinatorDone)
	}
}

// Roster snapshots the current peer records.
func (c *Coordinator) Roster() []RosterEntry {
	cmd := cmdRoster{resp: make(chan []RosterEntry, 1)}
	if err := c.postCmd(cmd); err != nil {
		return nil
	}
	select {
	case entries := <-cmd.resp:
		return entries
	case <-c.done:
		return nil
	}
}

// Rooms asks the rendezvous for its room listing. Only the server-relayed
// transport answers; on the others the call runs into the ctx deadline.
func (c *Coordinator) Rooms(ctx context.Context) ([]signaling.RoomSummary, error) {
	cmd := cmdRooms{ctx: ctx, resp: make(chan roomsResult, 1)}
	if err := c.postCmd(cmd); err != nil {
		return nil, newError("rooms", err)
	}
	select {
	case r := <-cmd.resp:
		return r.rooms, r.err
	case <-ctx.Done():
		return nil, newError("rooms", ErrDiscoveryTimeout)
	case <-c.done:
		return nil, newError("rooms", ErrCoordinatorDone)
	}
}

// Leave announces departure where the transport supports it, tears down
// every record, closes the transport, and stops the loop. The events
// channel is closed on the way out.
func (c *Coordinator) Leave() {
	cmd := cmdLeave{resp: make(chan struct{}, 1)}
	if err := c.postCmd(cmd); err != nil {
		return
	}
	select {
	case <-cmd.resp:
	case <-c.done:
	}
}

// post delivers a loop event, giving up once the loop has stopped.
func (c *Coordinator) post(ev any) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Coordinator) postCmd(cmd any) error {
	select {
	case c.events <- cmd:
		return nil
	case <-c.done:
		return ErrCoordinatorDone
	}
}

func (c *Coordinator) sendEnvelope(env signaling.Envelope) {
	if err := c.transport.Send(env); err != nil {
		slog.Warn("signaling send failed", "type", env.Type, "error", err)
	}
}

// emit hands an event to the host without ever blocking the loop.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.updates <- ev:
	default:
		slog.Warn("event consumer lagging, dropping", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Coordinator) peerFailed(id, name string, err error) {
	c.emit(PeerFailed{PeerID: id, PeerName: name, Err: err})
}

func (c *Coordinator) run() {
	for {
		select {
		case ev := <-c.events:
			if stop := c.handle(ev); stop {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) handle(ev any) bool {
	switch ev := ev.(type) {
	case envIn:
		c.handleEnvelope(ev.env)
	case transportLost:
		c.connected = false
		slog.Warn("signaling transport lost", "error", ev.err)
		c.emit(TransportClosed{Err: ev.err})
	case candidateFound:
		if link := c.liveLink(ev.peer, ev.conn); link != nil {
			c.sendEnvelope(signaling.NewICECandidate(c.self.ID, link.id, ev.cand))
		}
	case connStateChanged:
		c.connChanged(ev)
	case channelArrived:
		link := c.liveLink(ev.peer, ev.conn)
		if link == nil {
			ev.channel.Close()
			return false
		}
		link.channel = ev.channel
	case channelOpened:
		c.channelUp(ev)
	case channelClosed:
		if link := c.liveLink(ev.peer, ev.conn); link != nil {
			link.channelOpen = false
			slog.Debug("channel closed", "peer", link.id)
		}
	case channelMessage:
		c.channelData(ev)
	case cmdJoin:
		ev.resp <- c.joinRoom(ev.ctx, ev.roomID)
	case cmdSend:
		msg, err := c.sendChat(ev.text)
		ev.resp <- sendResult{msg: msg, err: err}
	case cmdRoster:
		ev.resp <- c.neg.roster()
	case cmdRooms:
		c.queryRooms(ev)
	case cmdLeave:
		c.leave()
		ev.resp <- struct{}{}
		close(c.done)
		close(c.updates)
		return true
	default:
		slog.Debug("unhandled loop event", "event", fmt.Sprintf("%T", ev))
	}
	return false
}

// liveLink resolves an event's record, dropping events whose connection
// handle belongs to a record that is already gone.
func (c *Coordinator) liveLink(id string, conn rtc.Conn) *peerLink {
	link := c.neg.link(id)
	if link == nil || link.conn != conn {
		return nil
	}
	return link
}

func (c *Coordinator) connect(ctx context.Context) error {
	if c.connected {
		return nil
	}
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	c.connected = true
	return nil
}

func (c *Coordinator) joinRoom(ctx context.Context, roomID string) error {
	if c.joined {
		return newError("join", ErrAlreadyJoined)
	}
	if err := c.connect(ctx); err != nil {
		return newError("join", err)
	}
	c.joined = true
	c.sendEnvelope(signaling.NewJoin(roomID, c.self.ID, c.self.Name))
	return nil
}

func (c *Coordinator) sendChat(text string) (ChatMessage, error) {
	if !c.joined {
		return ChatMessage{}, newError("send", ErrNotJoined)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, newError("send", ErrEmptyMessage)
	}

	msg := NewChatMessage(c.self.ID, c.self.Name, text)
	data, err := msg.encode()
	if err != nil {
		return ChatMessage{}, newError("send", err)
	}
	sent := c.neg.broadcast(data)
	slog.Debug("chat fanned out", "peers", sent)
	return msg, nil
}

func (c *Coordinator) queryRooms(cmd cmdRooms) {
	if err := c.connect(cmd.ctx); err != nil {
		cmd.resp <- roomsResult{err: newError("rooms", err)}
		return
	}
	if c.roomsWaiter != nil {
		slog.Warn("replacing outstanding rooms query")
	}
	c.roomsWaiter = cmd.resp
	c.sendEnvelope(signaling.NewGetRooms())
}

func (c *Coordinator) leave() {
	if c.joined {
		c.sendEnvelope(signaling.NewLeave(c.self.ID, c.self.Name))
	}
	c.neg.teardownAll()
	c.joined = false
	if err := c.transport.Close(); err != nil {
		slog.Debug("transport close", "error", err)
	}
}

func (c *Coordinator) handleEnvelope(env signaling.Envelope) {
	// Directed envelopes for someone else can only be misrouted.
	if env.To != "" && env.To != c.self.ID {
		slog.Debug("dropping misrouted envelope", "type", env.Type, "to", env.To)
		return
	}

	switch env.Type {
	case signaling.TypeRoomJoined:
		c.roomJoined(env)
	case signaling.TypePeerJoined:
		if env.PeerID == c.self.ID {
			return
		}
		// The newcomer initiates toward us; nothing to do yet.
		slog.Info("peer joined room", "peer", env.PeerID, "name", env.PeerName)
	case signaling.TypeAnnounce:
		c.handleAnnounce(env)
	case signaling.TypeOffer:
		c.neg.receiveOffer(env)
	case signaling.TypeAnswer:
		c.neg.receiveAnswer(env)
	case signaling.TypeICECandidate:
		c.neg.receiveCandidate(env)
	case signaling.TypePeerLeft, signaling.TypeLeave:
		c.peerGone(env)
	case signaling.TypeRoomsList:
		c.resolveRooms(env)
	default:
		slog.Debug("ignoring envelope", "type", env.Type)
	}
}

// roomJoined is the rendezvous acknowledgment: this side is the newcomer and
// initiates toward every member already present.
func (c *Coordinator) roomJoined(env signaling.Envelope) {
	slog.Info("joined room", "room", env.RoomID, "peers", len(env.Peers))
	for _, p := range env.Peers {
		if p.PeerID == c.self.ID {
			continue
		}
		c.neg.initiate(p.PeerID, p.PeerName)
	}
	c.emit(RoomJoined{RoomID: env.RoomID, Peers: env.Peers})
}

// handleAnnounce elects a deterministic offerer between two freshly
// acquainted peers: the smaller id initiates, so the pair never holds
// crossed offers. Broadcast announces get a targeted reply so the announcer
// learns who was already present.
func (c *Coordinator) handleAnnounce(env signaling.Envelope) {
	if env.PeerID == "" || env.PeerID == c.self.ID {
		return
	}
	if c.neg.link(env.PeerID) != nil {
		slog.Debug("announce for known peer", "peer", env.PeerID)
		return
	}

	if env.To == "" {
		reply := signaling.NewAnnounce(c.self.ID, c.self.Name)
		reply.To = env.PeerID
		c.sendEnvelope(reply)
	}
	if c.self.ID < env.PeerID {
		c.neg.initiate(env.PeerID, env.PeerName)
	}
}

func (c *Coordinator) peerGone(env signaling.Envelope) {
	if env.PeerID == c.self.ID {
		return
	}
	link := c.neg.teardown(env.PeerID)
	if link == nil {
		return
	}
	slog.Info("peer left", "peer", link.id, "name", link.name)
	c.emit(PeerLeft{Peer: link.entry()})
}

func (c *Coordinator) resolveRooms(env signaling.Envelope) {
	if c.roomsWaiter == nil {
		slog.Debug("unsolicited rooms listing")
		return
	}
	c.roomsWaiter <- roomsResult{rooms: env.Rooms}
	c.roomsWaiter = nil
}

func (c *Coordinator) connChanged(ev connStateChanged) {
	link := c.liveLink(ev.peer, ev.conn)
	if link == nil {
		return
	}

	switch {
	case ev.state == rtc.StateConnected:
		link.state = StateConnected
	case ev.state.Terminal():
		wasUp := link.state == StateConnected
		removed := c.neg.teardown(link.id)
		if removed == nil {
			return
		}
		if wasUp {
			slog.Info("peer connection lost", "peer", removed.id, "state", ev.state.String())
			c.emit(PeerLeft{Peer: removed.entry()})
		} else {
			err := newPeerError("negotiate", removed.id, fmt.Errorf("connection %s", ev.state))
			slog.Error("negotiation failed", "peer", removed.id, "state", ev.state.String())
			c.emit(PeerFailed{PeerID: removed.id, PeerName: removed.name, Err: err})
		}
	}
}

// channelUp marks the channel usable, sends the identity handshake, and
// surfaces the peer as connected.
func (c *Coordinator) channelUp(ev channelOpened) {
	link := c.liveLink(ev.peer, ev.conn)
	if link == nil || link.channel == nil {
		return
	}
	link.channelOpen = true
	link.state = StateConnected

	if data, err := newHandshake(c.self.ID, c.self.Name).encode(); err == nil {
		if err := link.channel.Send(data); err != nil {
			slog.Warn("handshake send failed", "peer", link.id, "error", err)
		}
	}
	c.emit(PeerConnected{Peer: link.entry()})
}

func (c *Coordinator) channelData(ev channelMessage) {
	link := c.liveLink(ev.peer, ev.conn)
	if link == nil {
		return
	}

	payload, err := decodePayload(ev.data)
	if err != nil {
		slog.Warn("dropping bad payload", "peer", link.id, "error", err)
		return
	}

	switch p := payload.(type) {
	case handshake:
		if p.Name != "" && p.Name != link.name {
			link.name = p.Name
			c.emit(PeerUpdated{Peer: link.entry()})
		}
	case ChatMessage:
		c.emit(MessageReceived{Message: p})
	}
}
