package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Subprotocol is the WebSocket subprotocol offered on push connections.
const Subprotocol = "dbmq"

// WebSocketConfig configures the WebSocket pusher.
type WebSocketConfig struct {
	// Dialer is used to connect. Default: a dialer offering Subprotocol.
	Dialer *websocket.Dialer

	// HandshakeTimeout applies when Dialer is nil (default: 5s).
	HandshakeTimeout time.Duration
}

// WebSocketPusher connects to the subscriber, sends the encoded Envelope as
// a single binary frame and closes the connection.
type WebSocketPusher struct {
	dialer *websocket.Dialer
}

// NewWebSocketPusher creates a WebSocket pusher.
func NewWebSocketPusher(cfg *WebSocketConfig) *WebSocketPusher {
	if cfg == nil {
		cfg = &WebSocketConfig{}
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     []string{Subprotocol},
		}
	}
	return &WebSocketPusher{dialer: dialer}
}

func (p *WebSocketPusher) Push(ctx context.Context, req *Request) error {
	data, err := NewEnvelope(req).Encode()
	if err != nil {
		return err
	}

	conn, _, err := p.dialer.DialContext(ctx, req.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}

	// Best effort; the frame is already on the wire.
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

var _ Pusher = (*WebSocketPusher)(nil)
