package mesh

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChatMessage is the payload peers exchange over open data channels. The
// timestamp travels as epoch milliseconds.
type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// NewChatMessage stamps an outbound message with a fresh id and the current
// time.
func NewChatMessage(senderID, senderName, text string) ChatMessage {
	return ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// Time converts the wire timestamp.
func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

func (m ChatMessage) encode() ([]byte, error) {
	return json.Marshal(m)
}

const handshakeType = "handshake"

// handshake is sent once on every channel open. Variants that negotiate
// before identities are exchanged (the offline token path) learn the
// counterpart's real name from it; everywhere else it is redundant and
// harmless.
type handshake struct {
	Type string `json:"type"`
	Name string `json:"name"`
	ID   string `json:"id"`
}

func newHandshake(id, name string) handshake {
	return handshake{Type: handshakeType, Name: name, ID: id}
}

func (h handshake) encode() ([]byte, error) {
	return json.Marshal(h)
}

// decodePayload classifies one inbound data-channel payload as either a
// handshake or a chat message.
func decodePayload(data []byte) (any, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	if probe.Type == handshakeType {
		var hs handshake
		if err := json.Unmarshal(data, &hs); err != nil {
			return nil, fmt.Errorf("decode handshake: %w", err)
		}
		return hs, nil
	}

	var msg ChatMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode chat message: %w", err)
	}
	return msg, nil
}
