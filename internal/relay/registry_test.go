package relay

import (
	"testing"
	"time"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// testClient fabricates a registered-looking client without a socket; the
// loop only ever touches the send channel and the remote string.
func testClient(remote string) *Client {
	return &Client{send: make(chan signaling.Envelope, 16), remote: remote}
}

func startRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	go reg.Run()
	t.Cleanup(reg.Stop)
	return reg
}

func joinAs(t *testing.T, reg *Registry, c *Client, room, id, name string) {
	t.Helper()
	reg.register <- c
	reg.inbound <- inboundEnvelope{client: c, env: signaling.NewJoin(room, id, name)}
}

func nextEnvelope(t *testing.T, c *Client) signaling.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return signaling.Envelope{}
}

func TestRegistry_CaseInsensitiveJoin(t *testing.T) {
	reg := startRegistry(t)
	a := testClient("a:1")
	b := testClient("b:1")

	joinAs(t, reg, a, "ABCD", "peer-a", "alice")
	env := nextEnvelope(t, a)
	if env.Type != signaling.TypeRoomJoined || env.RoomID != "ABCD" || len(env.Peers) != 0 {
		t.Fatalf("first join reply = %+v, want empty room-joined for ABCD", env)
	}

	// Lowercase joins the same room.
	joinAs(t, reg, b, "abcd", "peer-b", "bob")
	env = nextEnvelope(t, b)
	if env.Type != signaling.TypeRoomJoined || env.RoomID != "ABCD" {
		t.Fatalf("second join reply = %+v, want room-joined for ABCD", env)
	}
	if len(env.Peers) != 1 || env.Peers[0].PeerID != "peer-a" || env.Peers[0].PeerName != "alice" {
		t.Fatalf("peer snapshot = %+v, want just alice", env.Peers)
	}

	notice := nextEnvelope(t, a)
	if notice.Type != signaling.TypePeerJoined || notice.PeerID != "peer-b" {
		t.Fatalf("notice = %+v, want peer-joined for peer-b", notice)
	}

	rooms := reg.Snapshot()
	if len(rooms) != 1 || rooms[0].ID != "ABCD" || rooms[0].PeerCount != 2 {
		t.Errorf("snapshot = %+v, want one ABCD room with 2 peers", rooms)
	}
}

func TestRegistry_RelayScopedToRoom(t *testing.T) {
	reg := startRegistry(t)
	a := testClient("a:1")
	b := testClient("b:1")
	x := testClient("x:1")

	joinAs(t, reg, a, "ROOM", "peer-a", "alice")
	nextEnvelope(t, a)
	joinAs(t, reg, b, "ROOM", "peer-b", "bob")
	nextEnvelope(t, b)
	nextEnvelope(t, a) // peer-joined
	joinAs(t, reg, x, "OTHR", "peer-x", "xena")
	nextEnvelope(t, x)

	desc := signaling.SessionDescription{Type: "offer", SDP: "sdp-a"}
	reg.inbound <- inboundEnvelope{client: a, env: signaling.NewOffer("peer-a", "alice", "peer-b", desc)}
	relayed := nextEnvelope(t, b)
	if relayed.Type != signaling.TypeOffer || relayed.From != "peer-a" || relayed.Offer == nil || relayed.Offer.SDP != "sdp-a" {
		t.Fatalf("relayed = %+v, want alice's offer verbatim", relayed)
	}

	// Same target id, but in another room: dropped without a reply.
	reg.inbound <- inboundEnvelope{client: a, env: signaling.NewOffer("peer-a", "alice", "peer-x", desc)}
	reg.Snapshot() // loop barrier
	if n := len(x.send); n != 0 {
		t.Errorf("cross-room leak: %d envelopes at peer-x", n)
	}

	// Unknown target: same silent drop.
	reg.inbound <- inboundEnvelope{client: a, env: signaling.NewOffer("peer-a", "alice", "ghost", desc)}
	reg.Snapshot()
	if n := len(b.send); n != 0 {
		t.Errorf("unexpected delivery to peer-b: %d envelopes", n)
	}
}

func TestRegistry_LeaveKeepsSocketUsable(t *testing.T) {
	reg := startRegistry(t)
	a := testClient("a:1")
	b := testClient("b:1")

	joinAs(t, reg, a, "ROOM", "peer-a", "alice")
	nextEnvelope(t, a)
	joinAs(t, reg, b, "ROOM", "peer-b", "bob")
	nextEnvelope(t, b)
	nextEnvelope(t, a)

	reg.inbound <- inboundEnvelope{client: a, env: signaling.NewLeave("peer-a", "alice")}
	notice := nextEnvelope(t, b)
	if notice.Type != signaling.TypePeerLeft || notice.PeerID != "peer-a" {
		t.Fatalf("notice = %+v, want peer-left for peer-a", notice)
	}

	// Same connection joins another room.
	reg.inbound <- inboundEnvelope{client: a, env: signaling.NewJoin("NEXT", "peer-a", "alice")}
	env := nextEnvelope(t, a)
	if env.Type != signaling.TypeRoomJoined || env.RoomID != "NEXT" {
		t.Fatalf("re-join reply = %+v, want room-joined for NEXT", env)
	}

	rooms := reg.Snapshot()
	if len(rooms) != 2 || rooms[0].ID != "NEXT" || rooms[1].ID != "ROOM" {
		t.Errorf("snapshot = %+v, want NEXT and ROOM", rooms)
	}
}

func TestRegistry_DisconnectCleansUp(t *testing.T) {
	reg := startRegistry(t)
	a := testClient("a:1")
	b := testClient("b:1")

	joinAs(t, reg, a, "ROOM", "peer-a", "alice")
	nextEnvelope(t, a)
	joinAs(t, reg, b, "ROOM", "peer-b", "bob")
	nextEnvelope(t, b)
	nextEnvelope(t, a)

	reg.unregister <- a
	notice := nextEnvelope(t, b)
	if notice.Type != signaling.TypePeerLeft || notice.PeerID != "peer-a" {
		t.Fatalf("notice = %+v, want peer-left for peer-a", notice)
	}
	if rooms := reg.Snapshot(); len(rooms) != 1 || rooms[0].PeerCount != 1 {
		t.Fatalf("snapshot = %+v, want ROOM with one peer", rooms)
	}

	// Last member out deletes the room.
	reg.unregister <- b
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(reg.Snapshot()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("room never deleted: %+v", reg.Snapshot())
}

func TestRegistry_RoomListing(t *testing.T) {
	reg := startRegistry(t)
	a := testClient("a:1")

	joinAs(t, reg, a, "ABCD", "peer-a", "alice")
	nextEnvelope(t, a)

	reg.inbound <- inboundEnvelope{client: a, env: signaling.NewGetRooms()}
	env := nextEnvelope(t, a)
	if env.Type != signaling.TypeRoomsList {
		t.Fatalf("reply type = %q, want %q", env.Type, signaling.TypeRoomsList)
	}
	if len(env.Rooms) != 1 {
		t.Fatalf("rooms = %+v, want one", env.Rooms)
	}
	room := env.Rooms[0]
	if room.ID != "ABCD" || room.PeerCount != 1 || len(room.Peers) != 1 || room.Peers[0].Name != "alice" {
		t.Errorf("room = %+v, want ABCD with alice", room)
	}
}

func TestRegistry_JoinMovesBetweenRooms(t *testing.T) {
	reg := startRegistry(t)
	a := testClient("a:1")
	b := testClient("b:1")

	joinAs(t, reg, a, "ROOM", "peer-a", "alice")
	nextEnvelope(t, a)
	joinAs(t, reg, b, "ROOM", "peer-b", "bob")
	nextEnvelope(t, b)
	nextEnvelope(t, a)

	// Joining a second room implies leaving the first.
	reg.inbound <- inboundEnvelope{client: a, env: signaling.NewJoin("ELSE", "peer-a", "alice")}
	env := nextEnvelope(t, a)
	if env.Type != signaling.TypeRoomJoined || env.RoomID != "ELSE" {
		t.Fatalf("reply = %+v, want room-joined for ELSE", env)
	}
	notice := nextEnvelope(t, b)
	if notice.Type != signaling.TypePeerLeft || notice.PeerID != "peer-a" {
		t.Fatalf("notice = %+v, want peer-left for peer-a", notice)
	}

	rooms := reg.Snapshot()
	if len(rooms) != 2 || rooms[0].ID != "ELSE" || rooms[1].ID != "ROOM" {
		t.Errorf("snapshot = %+v, want ELSE and ROOM", rooms)
	}
}
