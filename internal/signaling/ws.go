package signaling

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// CloseNotifier is implemented by transports whose delivery path can drop
// out from under a session. The callback fires once, only for unexpected
// loss, never for a local Close.
type CloseNotifier interface {
	OnClosed(fn func(error))
}

// WSTransport is the server-relayed variant: a websocket client speaking the
// envelope scheme to a room relay service.
type WSTransport struct {
	serverURL string
	conn      *websocket.Conn
	outgoing  chan Envelope
	done      chan struct{}
	closeOnce sync.Once
	handler   func(Envelope)
	onClosed  func(error)
}

// NewWS creates a transport that will dial the given relay URL
// (ws://host:port/ws or wss://…).
func NewWS(serverURL string) *WSTransport {
	return &WSTransport{
		serverURL: serverURL,
		outgoing:  make(chan Envelope, 32),
		done:      make(chan struct{}),
	}
}

// OnEnvelope registers the inbound handler. Must be called before Connect.
func (t *WSTransport) OnEnvelope(fn func(Envelope)) {
	t.handler = fn
}

// OnClosed registers the unexpected-loss callback. Must be called before
// Connect.
func (t *WSTransport) OnClosed(fn func(error)) {
	t.onClosed = fn
}

// Connect dials the relay and starts the read and write pumps. The context
// bounds the handshake.
func (t *WSTransport) Connect(ctx context.Context) error {
	if t.handler == nil {
		return fmt.Errorf("connect: OnEnvelope handler not set")
	}

	u, err := url.Parse(t.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	t.conn = conn

	t.conn.SetReadLimit(maxMessageSize)

	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go t.readPump()
	go t.writePump()

	return nil
}

// readPump reads envelopes from the socket and hands them to the handler,
// one at a time, in arrival order.
func (t *WSTransport) readPump() {
	var readErr error

	defer func() {
		t.conn.Close()
		select {
		case <-t.done:
			// Local close, expected.
		default:
			if t.onClosed != nil {
				t.onClosed(readErr)
			}
		}
	}()

	t.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}

		env, err := Decode(data)
		if err != nil {
			slog.Warn("dropping inbound envelope", "error", err)
			continue
		}

		t.handler(env)
	}
}

// writePump writes envelopes to the socket and sends periodic pings.
func (t *WSTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case env := <-t.outgoing:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-t.done:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues one envelope for the relay. Every envelope goes to the server;
// the relay routes directed ones by their To field.
func (t *WSTransport) Send(env Envelope) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.outgoing <- env:
		return nil
	case <-t.done:
		return ErrTransportClosed
	}
}

// Close shuts the socket down. Safe to call more than once.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	return nil
}
