package mesh

import (
	"testing"
	"time"
)

func TestNewChatMessage(t *testing.T) {
	before := time.Now().UnixMilli()
	msg := NewChatMessage("id-1", "alice", "hello")
	after := time.Now().UnixMilli()

	if msg.ID == "" {
		t.Error("ID is empty")
	}
	if msg.SenderID != "id-1" || msg.SenderName != "alice" || msg.Text != "hello" {
		t.Errorf("msg = %+v, want sender id-1/alice text hello", msg)
	}
	if msg.Timestamp < before || msg.Timestamp > after {
		t.Errorf("Timestamp = %d, want between %d and %d", msg.Timestamp, before, after)
	}
	if got := msg.Time().UnixMilli(); got != msg.Timestamp {
		t.Errorf("Time().UnixMilli() = %d, want %d", got, msg.Timestamp)
	}
}

func TestDecodePayload_ChatMessage(t *testing.T) {
	data, err := NewChatMessage("id-1", "alice", "hi").encode()
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}

	payload, err := decodePayload(data)
	if err != nil {
		t.Fatalf("decodePayload() error = %v", err)
	}
	msg, ok := payload.(ChatMessage)
	if !ok {
		t.Fatalf("payload type = %T, want ChatMessage", payload)
	}
	if msg.Text != "hi" || msg.SenderName != "alice" {
		t.Errorf("msg = %+v, want text hi from alice", msg)
	}
}

func TestDecodePayload_Handshake(t *testing.T) {
	data, err := newHandshake("id-2", "bob").encode()
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}

	payload, err := decodePayload(data)
	if err != nil {
		t.Fatalf("decodePayload() error = %v", err)
	}
	hs, ok := payload.(handshake)
	if !ok {
		t.Fatalf("payload type = %T, want handshake", payload)
	}
	if hs.ID != "id-2" || hs.Name != "bob" {
		t.Errorf("handshake = %+v, want id-2/bob", hs)
	}
}

func TestDecodePayload_Garbage(t *testing.T) {
	if _, err := decodePayload([]byte("not json at all")); err == nil {
		t.Error("decodePayload() accepted garbage")
	}
}
