package mesh

import (
	"errors"
	"fmt"
)

var (
	ErrNotJoined        = errors.New("not joined to a room")
	ErrAlreadyJoined    = errors.New("already joined to a room")
	ErrEmptyMessage     = errors.New("empty message")
	ErrCoordinatorDone  = errors.New("coordinator stopped")
	ErrDiscoveryTimeout = errors.New("room discovery timed out")
)

// MeshError carries the failing operation and, when one is involved, the
// remote peer.
type MeshError struct {
	Op   string
	Peer string
	Err  error
}

func (e *MeshError) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *MeshError) Unwrap() error {
	return e.Err
}

func newError(op string, err error) *MeshError {
	return &MeshError{Op: op, Err: err}
}

func newPeerError(op, peer string, err error) *MeshError {
	return &MeshError{Op: op, Peer: peer, Err: err}
}
