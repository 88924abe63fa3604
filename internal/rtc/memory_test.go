package rtc

import (
	"testing"
	"time"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

func waitState(t *testing.T, ch <-chan State, want State) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("state = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state %v", want)
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// TestMemoryConn_OfferAnswerLink walks the full happy path: offer, answer,
// link, mirrored channel open on both ends.
func TestMemoryConn_OfferAnswerLink(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewConn()
	b := net.NewConn()

	aStates := make(chan State, 8)
	bStates := make(chan State, 8)
	a.OnStateChange(func(s State) { aStates <- s })
	b.OnStateChange(func(s State) { bStates <- s })

	aOpen := make(chan struct{}, 1)
	bOpen := make(chan struct{}, 1)
	b.OnChannel(func(ch Channel) {
		if ch.Label() != "chat" {
			t.Errorf("Label() = %q, want chat", ch.Label())
		}
		ch.OnOpen(func() { bOpen <- struct{}{} })
	})

	ch, err := a.CreateChannel("chat")
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	ch.OnOpen(func() { aOpen <- struct{}{} })

	offer, err := a.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if offer.Type != "offer" {
		t.Errorf("offer.Type = %q, want offer", offer.Type)
	}

	if err := b.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription(offer) error = %v", err)
	}
	answer, err := b.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer() error = %v", err)
	}
	if err := a.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription(answer) error = %v", err)
	}

	waitState(t, aStates, StateConnected)
	waitState(t, bStates, StateConnected)
	waitSignal(t, aOpen, "initiator channel open")
	waitSignal(t, bOpen, "answerer channel open")
}

// TestMemoryConn_CandidateRules checks the primitive's gating: no candidates
// before the remote description, applied ones recorded in order.
func TestMemoryConn_CandidateRules(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewConn()
	b := net.NewConn()

	if err := b.AddCandidate(signaling.Candidate{Candidate: "early"}); err == nil {
		t.Fatal("AddCandidate() before remote description succeeded, want error")
	}

	offer, _ := a.CreateOffer()
	if err := b.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription() error = %v", err)
	}

	for _, c := range []string{"one", "two", "three"} {
		if err := b.AddCandidate(signaling.Candidate{Candidate: c}); err != nil {
			t.Fatalf("AddCandidate(%q) error = %v", c, err)
		}
	}

	got := b.AppliedCandidates()
	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("len(AppliedCandidates()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Candidate != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i].Candidate, want[i])
		}
	}
}

// TestMemoryConn_GlareRejected checks a remote offer is refused once a local
// offer exists, like the real signaling-state machine.
func TestMemoryConn_GlareRejected(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewConn()
	b := net.NewConn()

	if _, err := a.CreateOffer(); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	offerB, err := b.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	if err := a.SetRemoteDescription(offerB); err == nil {
		t.Error("SetRemoteDescription(remote offer) in have-local-offer succeeded, want error")
	}
}

// TestMemoryChannel_SendSemantics checks sends fail before open and deliver
// in order after.
func TestMemoryChannel_SendSemantics(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewConn()
	b := net.NewConn()

	received := make(chan string, 8)
	b.OnChannel(func(ch Channel) {
		ch.OnMessage(func(data []byte) { received <- string(data) })
	})

	ch, _ := a.CreateChannel("chat")
	if err := ch.Send([]byte("too early")); err == nil {
		t.Fatal("Send() before open succeeded, want error")
	}

	opened := make(chan struct{}, 1)
	ch.OnOpen(func() { opened <- struct{}{} })

	offer, _ := a.CreateOffer()
	b.SetRemoteDescription(offer)
	answer, _ := b.CreateAnswer()
	a.SetRemoteDescription(answer)

	waitSignal(t, opened, "channel open")

	for _, msg := range []string{"first", "second", "third"} {
		if err := ch.Send([]byte(msg)); err != nil {
			t.Fatalf("Send(%q) error = %v", msg, err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		select {
		case got := <-received:
			if got != want {
				t.Errorf("received %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

// TestMemoryConn_CloseNotifiesRemote checks the far side observes a
// disconnect and its channel closes.
func TestMemoryConn_CloseNotifiesRemote(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewConn()
	b := net.NewConn()

	bStates := make(chan State, 8)
	b.OnStateChange(func(s State) { bStates <- s })

	closed := make(chan struct{}, 1)
	opened := make(chan struct{}, 1)
	b.OnChannel(func(ch Channel) {
		ch.OnOpen(func() { opened <- struct{}{} })
		ch.OnClose(func() { closed <- struct{}{} })
	})

	a.CreateChannel("chat")
	offer, _ := a.CreateOffer()
	b.SetRemoteDescription(offer)
	answer, _ := b.CreateAnswer()
	a.SetRemoteDescription(answer)

	waitState(t, bStates, StateConnected)
	waitSignal(t, opened, "channel open")

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	waitState(t, bStates, StateDisconnected)
	waitSignal(t, closed, "channel close")
}

// TestFailingDialer checks the error passthrough.
func TestFailingDialer(t *testing.T) {
	wantErr := errString("no primitive")
	_, err := FailingDialer{Err: wantErr}.NewConn()
	if err != wantErr {
		t.Errorf("NewConn() error = %v, want %v", err, wantErr)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
