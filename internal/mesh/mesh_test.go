package mesh

import (
	"context"
	"testing"
	"time"

	"github.com/LittleBoy9/peerbeam/internal/identity"
	"github.com/LittleBoy9/peerbeam/internal/rtc"
	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// TestMesh_LocalBusTrio runs three coordinators over one in-process bus and
// one memory network: every pair connects directly, chat fans out to all,
// and a departure is noticed everywhere.
func TestMesh_LocalBusTrio(t *testing.T) {
	bus := signaling.NewBus()
	network := rtc.NewMemoryNetwork()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := New(identity.Identity{ID: "aa-alice", Name: "alice"}, bus.Endpoint("aa-alice"), network.Dialer())
	t.Cleanup(alice.Leave)
	bob := New(identity.Identity{ID: "bb-bob", Name: "bob"}, bus.Endpoint("bb-bob"), network.Dialer())
	t.Cleanup(bob.Leave)

	if err := alice.Join(ctx, "LOCL"); err != nil {
		t.Fatalf("alice Join() error = %v", err)
	}
	if err := bob.Join(ctx, "LOCL"); err != nil {
		t.Fatalf("bob Join() error = %v", err)
	}

	if got := waitEvent[PeerConnected](t, alice); got.Peer.ID != "bb-bob" {
		t.Fatalf("alice connected to %q, want bb-bob", got.Peer.ID)
	}
	if got := waitEvent[PeerConnected](t, bob); got.Peer.ID != "aa-alice" {
		t.Fatalf("bob connected to %q, want aa-alice", got.Peer.ID)
	}

	// A latecomer links with both incumbents.
	carol := New(identity.Identity{ID: "cc-carol", Name: "carol"}, bus.Endpoint("cc-carol"), network.Dialer())
	t.Cleanup(carol.Leave)
	if err := carol.Join(ctx, "LOCL"); err != nil {
		t.Fatalf("carol Join() error = %v", err)
	}

	if got := waitEvent[PeerConnected](t, alice); got.Peer.ID != "cc-carol" {
		t.Fatalf("alice connected to %q, want cc-carol", got.Peer.ID)
	}
	if got := waitEvent[PeerConnected](t, bob); got.Peer.ID != "cc-carol" {
		t.Fatalf("bob connected to %q, want cc-carol", got.Peer.ID)
	}
	seen := map[string]bool{}
	for len(seen) < 2 {
		seen[waitEvent[PeerConnected](t, carol).Peer.ID] = true
	}
	if !seen["aa-alice"] || !seen["bb-bob"] {
		t.Fatalf("carol connected to %v, want aa-alice and bb-bob", seen)
	}

	// One send reaches every open channel.
	if _, err := alice.SendMessage("hello everyone"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	for name, peer := range map[string]*Coordinator{"bob": bob, "carol": carol} {
		got := waitEvent[MessageReceived](t, peer)
		if got.Message.Text != "hello everyone" || got.Message.SenderName != "alice" {
			t.Errorf("%s received %+v, want hello everyone from alice", name, got.Message)
		}
	}

	// Departure propagates and shrinks the remaining rosters.
	carol.Leave()
	if got := waitEvent[PeerLeft](t, alice); got.Peer.ID != "cc-carol" {
		t.Errorf("alice saw %q leave, want cc-carol", got.Peer.ID)
	}
	if got := waitEvent[PeerLeft](t, bob); got.Peer.ID != "cc-carol" {
		t.Errorf("bob saw %q leave, want cc-carol", got.Peer.ID)
	}
	if roster := alice.Roster(); len(roster) != 1 || roster[0].ID != "bb-bob" {
		t.Errorf("alice roster = %+v, want only bb-bob", roster)
	}
}

func waitTokenReady(t *testing.T, m *signaling.ManualExchange, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Pending() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("pending never reached %d", want)
}

// TestMesh_ManualTokenPair drives two coordinators through the offline
// copy-paste flow: invite token out, reply token back, then chat both ways
// with the handshake filling in the unknown name.
func TestMesh_ManualTokenPair(t *testing.T) {
	network := rtc.NewMemoryNetwork()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	aliceX := signaling.NewManualExchange(signaling.RoleOffer)
	bobX := signaling.NewManualExchange(signaling.RoleAnswer)

	alice := New(identity.Identity{ID: "1111-alice", Name: "alice"}, aliceX, network.Dialer())
	t.Cleanup(alice.Leave)
	bob := New(identity.Identity{ID: "2222-bob", Name: "bob"}, bobX, network.Dialer())
	t.Cleanup(bob.Leave)

	if err := alice.Join(ctx, "MANL"); err != nil {
		t.Fatalf("alice Join() error = %v", err)
	}
	if err := bob.Join(ctx, "MANL"); err != nil {
		t.Fatalf("bob Join() error = %v", err)
	}

	// The synthesized announce makes alice offer to the placeholder peer.
	waitTokenReady(t, aliceX, 1)
	invite, err := aliceX.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := bobX.Feed(invite); err != nil {
		t.Fatalf("Feed(invite) error = %v", err)
	}

	waitTokenReady(t, bobX, 1)
	reply, err := bobX.Flush()
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := aliceX.Feed(reply); err != nil {
		t.Fatalf("Feed(reply) error = %v", err)
	}

	if got := waitEvent[PeerConnected](t, bob); got.Peer.ID != "1111-alice" || got.Peer.Name != "alice" {
		t.Fatalf("bob connected to %+v, want 1111-alice/alice", got.Peer)
	}
	connected := waitEvent[PeerConnected](t, alice)
	if connected.Peer.ID != signaling.ManualPeerID {
		t.Fatalf("alice connected to %q, want placeholder %q", connected.Peer.ID, signaling.ManualPeerID)
	}

	// Bob's handshake supplies the name alice never had.
	updated := waitEvent[PeerUpdated](t, alice)
	if updated.Peer.Name != "bob" {
		t.Fatalf("PeerUpdated name = %q, want bob", updated.Peer.Name)
	}
	if roster := alice.Roster(); len(roster) != 1 || roster[0].Name != "bob" {
		t.Errorf("alice roster = %+v, want named bob", roster)
	}

	if _, err := alice.SendMessage("hi bob"); err != nil {
		t.Fatalf("alice SendMessage() error = %v", err)
	}
	if got := waitEvent[MessageReceived](t, bob); got.Message.Text != "hi bob" || got.Message.SenderName != "alice" {
		t.Errorf("bob received %+v, want hi bob from alice", got.Message)
	}

	if _, err := bob.SendMessage("hi alice"); err != nil {
		t.Fatalf("bob SendMessage() error = %v", err)
	}
	if got := waitEvent[MessageReceived](t, alice); got.Message.Text != "hi alice" || got.Message.SenderName != "bob" {
		t.Errorf("alice received %+v, want hi alice from bob", got.Message)
	}
}
