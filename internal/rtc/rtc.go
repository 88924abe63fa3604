// Package rtc is the seam between the mesh and its connection primitive.
// Production backs it with pion; tests back it with an in-memory pair that
// skips ICE entirely.
package rtc

import (
	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// State is a connection's lifecycle as the mesh sees it.
type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

var stateNames = map[State]string{
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateDisconnected: "disconnected",
	StateFailed:       "failed",
	StateClosed:       "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the connection is beyond recovery. The mesh tears
// the peer record down on the first terminal state and never renegotiates.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

// Channel is the data path to one peer. Callbacks fire on primitive-owned
// goroutines; register them before the channel can open.
type Channel interface {
	Label() string
	Send(data []byte) error
	OnOpen(fn func())
	OnClose(fn func())
	OnMessage(fn func(data []byte))
	Close() error
}

// Conn is one connection toward one remote peer. CreateOffer and
// CreateAnswer apply the local description themselves and return it, ready
// to put in an envelope; candidates cannot be added until the remote
// description is set.
type Conn interface {
	CreateOffer() (signaling.SessionDescription, error)
	CreateAnswer() (signaling.SessionDescription, error)
	SetRemoteDescription(desc signaling.SessionDescription) error
	AddCandidate(cand signaling.Candidate) error
	CreateChannel(label string) (Channel, error)
	OnCandidate(fn func(signaling.Candidate))
	OnChannel(fn func(Channel))
	OnStateChange(fn func(State))
	Close() error
}

// Dialer builds fresh connections. One dialer serves every peer of a mesh.
type Dialer interface {
	NewConn() (Conn, error)
}
