package signaling

import (
	"errors"
	"testing"
)

// TestDecode_RoundTrip checks that a constructed envelope survives the wire.
func TestDecode_RoundTrip(t *testing.T) {
	mid := "0"
	idx := uint16(0)
	env := NewICECandidate("a", "b", Candidate{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54400 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})

	data, err := Encode(env)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.Type != TypeICECandidate {
		t.Errorf("Type = %q, want %q", got.Type, TypeICECandidate)
	}
	if got.From != "a" || got.To != "b" {
		t.Errorf("routing = %q→%q, want a→b", got.From, got.To)
	}
	if got.Candidate == nil || got.Candidate.Candidate != env.Candidate.Candidate {
		t.Errorf("Candidate = %+v, want %+v", got.Candidate, env.Candidate)
	}
}

// TestDecode_MissingType ensures typeless payloads are rejected as malformed.
func TestDecode_MissingType(t *testing.T) {
	_, err := Decode([]byte(`{"roomId":"ABCD"}`))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Decode() error = %v, want ErrMalformed", err)
	}
}

// TestDecode_BadJSON ensures garbage bytes are rejected as malformed.
func TestDecode_BadJSON(t *testing.T) {
	_, err := Decode([]byte("not json"))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Decode() error = %v, want ErrMalformed", err)
	}
}

// TestDecode_IgnoresUnknownFields checks forward compatibility with richer
// senders.
func TestDecode_IgnoresUnknownFields(t *testing.T) {
	env, err := Decode([]byte(`{"type":"join","roomId":"ABCD","peerId":"x","peerName":"n","extra":42}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if env.Type != TypeJoin || env.RoomID != "ABCD" {
		t.Errorf("env = %+v, want join/ABCD", env)
	}
}

// TestNormalizeRoomID verifies ids are case-insensitive and whitespace-proof.
func TestNormalizeRoomID(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"abcd", "ABCD"},
		{"ABCD", "ABCD"},
		{"  aBcD\n", "ABCD"},
	}
	for _, c := range cases {
		if got := NormalizeRoomID(c.in); got != c.want {
			t.Errorf("NormalizeRoomID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestGenerateRoomID checks shape: short, already normalized, drawn from the
// unambiguous alphabet.
func TestGenerateRoomID(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := GenerateRoomID()
		if len(id) != roomIDLength {
			t.Fatalf("len(%q) = %d, want %d", id, len(id), roomIDLength)
		}
		if id != NormalizeRoomID(id) {
			t.Errorf("GenerateRoomID() = %q, not normalized", id)
		}
		for _, r := range id {
			if r == '0' || r == 'O' || r == '1' || r == 'I' {
				t.Errorf("GenerateRoomID() = %q contains ambiguous rune %q", id, r)
			}
		}
	}
}
