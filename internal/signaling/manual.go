package signaling

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// ManualPeerID keys the offering side's single peer record. Offline exchange
// starts before the counterpart's identity is known; the data-channel
// handshake fills in the real name once the channel opens. The placeholder
// sorts after every generated session id, so the offering side always wins
// the offerer election.
const ManualPeerID = "remote"

// ErrEmptyToken is returned by Flush when no envelopes are waiting.
var ErrEmptyToken = errors.New("no envelopes to flush")

// ManualRole selects which half of the offline exchange this endpoint plays.
type ManualRole int

const (
	// RoleOffer creates the invite token.
	RoleOffer ManualRole = iota
	// RoleAnswer consumes the invite and produces the reply token.
	RoleAnswer
)

// ManualExchange is the offline variant for exactly two peers. There is no
// delivery path at all: outbound envelopes accumulate until Flush packs them
// into a copy-paste token, and Feed unpacks the counterpart's token. Tokens
// are msgpack, base64url encoded.
type ManualExchange struct {
	role ManualRole

	mu      sync.Mutex
	pending []Envelope
	closed  bool

	handler func(Envelope)
}

// NewManualExchange creates one endpoint of an offline exchange.
func NewManualExchange(role ManualRole) *ManualExchange {
	return &ManualExchange{role: role}
}

// OnEnvelope registers the inbound handler. Must be called before Connect.
func (m *ManualExchange) OnEnvelope(fn func(Envelope)) {
	m.handler = fn
}

// Connect has no path to establish. The offering side synthesizes the
// counterpart's announce so negotiation starts immediately; the answering
// side waits for Feed.
func (m *ManualExchange) Connect(ctx context.Context) error {
	if m.handler == nil {
		return fmt.Errorf("connect: OnEnvelope handler not set")
	}
	if m.role == RoleOffer {
		go m.handler(NewAnnounce(ManualPeerID, ManualPeerID))
	}
	return nil
}

// Send queues one envelope for the next token. Rendezvous types have no
// offline meaning and never enter tokens.
func (m *ManualExchange) Send(env Envelope) error {
	switch env.Type {
	case TypeJoin, TypeLeave, TypeGetRooms, TypeAnnounce:
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	m.pending = append(m.pending, env)
	return nil
}

// Pending reports how many envelopes the next Flush would carry. Hosts poll
// it to decide when the token is worth sharing (the offer plus the
// candidates gathered so far).
func (m *ManualExchange) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Flush drains the queued envelopes into one token.
func (m *ManualExchange) Flush() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pending) == 0 {
		return "", ErrEmptyToken
	}

	data, err := msgpack.Marshal(m.pending)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	m.pending = nil

	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Feed unpacks the counterpart's token and delivers its envelopes in order.
// Tokens are point-to-point, so the target field is cleared; on the offering
// side the sender is rewritten to the placeholder id, so the reply matches
// the record created before the counterpart had a name.
func (m *ManualExchange) Feed(token string) error {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var envs []Envelope
	if err := msgpack.Unmarshal(data, &envs); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	for _, env := range envs {
		if env.Type == "" {
			slog.Warn("dropping untyped envelope from token")
			continue
		}
		env.To = ""
		if m.role == RoleOffer && env.From != "" {
			env.From = ManualPeerID
		}
		m.handler(env)
	}
	return nil
}

// Close stops accepting envelopes.
func (m *ManualExchange) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.pending = nil
	return nil
}
