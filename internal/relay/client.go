package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Generous enough for SDP.
	maxMessageSize = 64 * 1024
)

// Client is one websocket connection known to the registry. The pumps own
// the connection; the registry loop owns the identity and room fields and
// only ever touches the send channel and the captured remote address.
type Client struct {
	registry *Registry
	conn     *websocket.Conn
	send     chan signaling.Envelope
	remote   string

	// Owned by the registry loop.
	peerID   string
	peerName string
	roomID   string
}

func newClient(reg *Registry, conn *websocket.Conn) *Client {
	return &Client{
		registry: reg,
		conn:     conn,
		send:     make(chan signaling.Envelope, 256),
		remote:   conn.RemoteAddr().String(),
	}
}

// readPump moves envelopes from the socket into the registry. One per
// connection; it is the connection's only reader.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.registry.unregister <- c:
		case <-c.registry.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "remote", c.remote, "error", err)
			}
			break
		}

		env, err := signaling.Decode(data)
		if err != nil {
			slog.Warn("dropping malformed envelope", "remote", c.remote, "error", err)
			continue
		}
		select {
		case c.registry.inbound <- inboundEnvelope{client: c, env: env}:
		case <-c.registry.done:
			return
		}
	}
}

// writePump moves envelopes from the registry to the socket and keeps the
// connection alive with pings. One per connection; it is the connection's
// only writer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				slog.Warn("websocket write failed", "remote", c.remote, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// deliver queues an envelope for the client without ever blocking the
// registry loop.
func (c *Client) deliver(env signaling.Envelope) {
	select {
	case c.send <- env:
	default:
		slog.Warn("dropping envelope for slow client", "remote", c.remote, "type", env.Type)
	}
}
