package mesh

import "github.com/LittleBoy9/peerbeam/internal/signaling"

// ConnState is the lifecycle of one peer record.
type ConnState int

const (
	StateNegotiating ConnState = iota
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// RosterEntry is a point-in-time view of one peer record.
type RosterEntry struct {
	ID          string
	Name        string
	State       ConnState
	ChannelOpen bool
}

// Event is anything the coordinator reports to its host. Consumers receive
// them from Events() and type switch on the concrete types below.
type Event any

// RoomJoined reports the rendezvous acknowledged the join, with the members
// already present.
type RoomJoined struct {
	RoomID string
	Peers  []signaling.PeerInfo
}

// PeerConnected fires when a peer's data channel opens.
type PeerConnected struct {
	Peer RosterEntry
}

// PeerUpdated fires when a known peer's details change, e.g. the handshake
// supplies a real display name.
type PeerUpdated struct {
	Peer RosterEntry
}

// PeerLeft fires when a peer's record is torn down after a departure or a
// dead connection.
type PeerLeft struct {
	Peer RosterEntry
}

// PeerFailed fires when negotiation with a peer fails; the record is already
// gone.
type PeerFailed struct {
	PeerID   string
	PeerName string
	Err      error
}

// MessageReceived carries one inbound chat message.
type MessageReceived struct {
	Message ChatMessage
}

// TransportClosed reports the rendezvous path died mid-session. Established
// channels stay up; no new peers can be discovered.
type TransportClosed struct {
	Err error
}
