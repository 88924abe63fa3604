package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type discriminates the envelope union carried by every transport variant.
type Type string

const (
	TypeJoin         Type = "join"
	TypeRoomJoined   Type = "room-joined"
	TypePeerJoined   Type = "peer-joined"
	TypePeerLeft     Type = "peer-left"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"
	TypeGetRooms     Type = "get-rooms"
	TypeRoomsList    Type = "rooms-list"
	TypeAnnounce     Type = "announce"
	TypeLeave        Type = "leave"
)

// ErrMalformed is returned when inbound bytes cannot be decoded into an
// envelope. Receivers log and drop such traffic.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is the wire form of every signaling message. Type selects the
// case; the constructors below fill only the fields that case carries, and
// decoding ignores fields a case does not use. Envelopes travel as JSON over
// the relay and as msgpack inside manual-exchange tokens, hence both tags.
type Envelope struct {
	Type Type `json:"type" msgpack:"type"`

	RoomID   string `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	PeerID   string `json:"peerId,omitempty" msgpack:"peerId,omitempty"`
	PeerName string `json:"peerName,omitempty" msgpack:"peerName,omitempty"`

	// Routing for relayed negotiation traffic.
	From     string `json:"from,omitempty" msgpack:"from,omitempty"`
	FromName string `json:"fromName,omitempty" msgpack:"fromName,omitempty"`
	To       string `json:"to,omitempty" msgpack:"to,omitempty"`

	Offer     *SessionDescription `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty" msgpack:"answer,omitempty"`
	Candidate *Candidate          `json:"candidate,omitempty" msgpack:"candidate,omitempty"`

	Peers []PeerInfo    `json:"peers,omitempty" msgpack:"peers,omitempty"`
	Rooms []RoomSummary `json:"rooms,omitempty" msgpack:"rooms,omitempty"`
}

// SessionDescription mirrors the browser's RTCSessionDescriptionInit so the
// relay stays interoperable with web clients.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// Candidate mirrors RTCIceCandidateInit field for field.
type Candidate struct {
	Candidate     string  `json:"candidate" msgpack:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
}

// PeerInfo identifies a room member in membership envelopes.
type PeerInfo struct {
	PeerID   string `json:"peerId" msgpack:"peerId"`
	PeerName string `json:"peerName" msgpack:"peerName"`
}

// RoomSummary is one entry of a rooms-list reply.
type RoomSummary struct {
	ID        string     `json:"id" msgpack:"id"`
	PeerCount int        `json:"peerCount" msgpack:"peerCount"`
	Peers     []RoomPeer `json:"peers" msgpack:"peers"`
}

// RoomPeer is the abbreviated member shape used in room listings.
type RoomPeer struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

func NewJoin(roomID, peerID, peerName string) Envelope {
	return Envelope{Type: TypeJoin, RoomID: roomID, PeerID: peerID, PeerName: peerName}
}

func NewRoomJoined(roomID string, peers []PeerInfo) Envelope {
	return Envelope{Type: TypeRoomJoined, RoomID: roomID, Peers: peers}
}

func NewPeerJoined(peerID, peerName string) Envelope {
	return Envelope{Type: TypePeerJoined, PeerID: peerID, PeerName: peerName}
}

func NewPeerLeft(peerID, peerName string) Envelope {
	return Envelope{Type: TypePeerLeft, PeerID: peerID, PeerName: peerName}
}

func NewOffer(from, fromName, to string, desc SessionDescription) Envelope {
	return Envelope{Type: TypeOffer, From: from, FromName: fromName, To: to, Offer: &desc}
}

func NewAnswer(from, fromName, to string, desc SessionDescription) Envelope {
	return Envelope{Type: TypeAnswer, From: from, FromName: fromName, To: to, Answer: &desc}
}

func NewICECandidate(from, to string, cand Candidate) Envelope {
	return Envelope{Type: TypeICECandidate, From: from, To: to, Candidate: &cand}
}

func NewGetRooms() Envelope {
	return Envelope{Type: TypeGetRooms}
}

func NewRoomsList(rooms []RoomSummary) Envelope {
	return Envelope{Type: TypeRoomsList, Rooms: rooms}
}

func NewAnnounce(peerID, peerName string) Envelope {
	return Envelope{Type: TypeAnnounce, PeerID: peerID, PeerName: peerName}
}

func NewLeave(peerID, peerName string) Envelope {
	return Envelope{Type: TypeLeave, PeerID: peerID, PeerName: peerName}
}

// Decode parses one envelope from wire bytes.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return env, nil
}

// Encode renders an envelope to wire bytes.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}
