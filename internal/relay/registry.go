// Package relay implements the rendezvous server: a registry of rooms over
// websocket connections, relaying negotiation envelopes between the members
// of a room. A single loop goroutine owns all room and client state.
package relay

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

type inboundEnvelope struct {
	client *Client
	env    signaling.Envelope
}

// query reads a room snapshot off the loop, for the REST endpoints.
type query struct {
	resp chan []signaling.RoomSummary
}

// Registry is the signaling hub. Pumps and HTTP handlers communicate with
// its loop exclusively through channels.
type Registry struct {
	rooms   map[string]*Room
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEnvelope
	queries    chan query

	done     chan struct{}
	stopOnce sync.Once
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEnvelope),
		queries:    make(chan query),
		done:       make(chan struct{}),
	}
}

// Run is the registry's loop. It is the only goroutine that reads or writes
// rooms and client identity state.
func (reg *Registry) Run() {
	for {
		select {
		case client := <-reg.register:
			reg.clients[client] = true
			slog.Debug("client registered", "remote", client.remote)

		case client := <-reg.unregister:
			if !reg.clients[client] {
				continue
			}
			delete(reg.clients, client)
			reg.removeFromRoom(client)
			close(client.send)
			slog.Debug("client unregistered", "remote", client.remote)

		case in := <-reg.inbound:
			reg.handle(in.client, in.env)

		case q := <-reg.queries:
			q.resp <- reg.snapshot()

		case <-reg.done:
			return
		}
	}
}

// Stop ends the loop. Connected pumps notice on their own when their
// sockets close.
func (reg *Registry) Stop() {
	reg.stopOnce.Do(func() { close(reg.done) })
}

// Snapshot reports the current rooms. Safe from any goroutine.
func (reg *Registry) Snapshot() []signaling.RoomSummary {
	q := query{resp: make(chan []signaling.RoomSummary, 1)}
	select {
	case reg.queries <- q:
	case <-reg.done:
		return nil
	}
	select {
	case rooms := <-q.resp:
		return rooms
	case <-reg.done:
		return nil
	}
}

func (reg *Registry) handle(c *Client, env signaling.Envelope) {
	switch env.Type {
	case signaling.TypeJoin:
		reg.join(c, env)
	case signaling.TypeOffer, signaling.TypeAnswer, signaling.TypeICECandidate:
		reg.relay(c, env)
	case signaling.TypeGetRooms:
		c.deliver(signaling.NewRoomsList(reg.snapshot()))
	case signaling.TypeLeave:
		// Room exit without hanging up; the socket may join again.
		reg.removeFromRoom(c)
	default:
		slog.Debug("ignoring envelope", "type", env.Type, "remote", c.remote)
	}
}

func (reg *Registry) join(c *Client, env signaling.Envelope) {
	roomID := signaling.NormalizeRoomID(env.RoomID)
	if roomID == "" || env.PeerID == "" {
		slog.Warn("dropping malformed join", "remote", c.remote, "room", env.RoomID)
		return
	}

	// A join while in another room moves the client.
	if c.roomID != "" {
		reg.removeFromRoom(c)
	}
	c.peerID = env.PeerID
	c.peerName = env.PeerName

	room, ok := reg.rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		reg.rooms[roomID] = room
		slog.Info("room created", "room", roomID)
	}

	// A reconnect under the same peer id displaces the stale client.
	if stale, ok := room.Members[c.peerID]; ok && stale != c {
		stale.roomID = ""
		slog.Warn("displacing stale member", "room", roomID, "peer", c.peerID)
	}

	peers := room.peerList(c.peerID)
	room.Members[c.peerID] = c
	c.roomID = roomID
	slog.Info("peer joined room", "room", roomID, "peer", c.peerID, "name", c.peerName)

	c.deliver(signaling.NewRoomJoined(roomID, peers))
	notice := signaling.NewPeerJoined(c.peerID, c.peerName)
	for id, member := range room.Members {
		if id == c.peerID {
			continue
		}
		member.deliver(notice)
	}
}

// relay forwards a negotiation envelope verbatim to its target, but only
// within the sender's room. Unmatched targets are dropped without a reply.
func (reg *Registry) relay(c *Client, env signaling.Envelope) {
	if c.roomID == "" {
		slog.Debug("dropping signal before join", "remote", c.remote, "type", env.Type)
		return
	}
	room, ok := reg.rooms[c.roomID]
	if !ok {
		return
	}
	target, ok := room.Members[env.To]
	if !ok {
		slog.Debug("dropping signal for absent target", "room", c.roomID, "to", env.To)
		return
	}
	target.deliver(env)
}

func (reg *Registry) removeFromRoom(c *Client) {
	if c.roomID == "" {
		return
	}
	room, ok := reg.rooms[c.roomID]
	roomID := c.roomID
	c.roomID = ""
	if !ok {
		return
	}
	if member, ok := room.Members[c.peerID]; !ok || member != c {
		return
	}
	delete(room.Members, c.peerID)

	if room.empty() {
		delete(reg.rooms, roomID)
		slog.Info("room deleted", "room", roomID)
		return
	}

	notice := signaling.NewPeerLeft(c.peerID, c.peerName)
	for _, member := range room.Members {
		member.deliver(notice)
	}
	slog.Info("peer left room", "room", roomID, "peer", c.peerID)
}

func (reg *Registry) snapshot() []signaling.RoomSummary {
	ids := make([]string, 0, len(reg.rooms))
	for id := range reg.rooms {
		ids = append(ids, id)
	}
	// Stable order keeps listings and tests predictable.
	sort.Strings(ids)

	out := make([]signaling.RoomSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, reg.rooms[id].summary())
	}
	return out
}
