package httpapi

import (
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/udisondev/la2go/internal/peer"
)

// wsPeerConn adapts a *websocket.Conn to peer.Conn (spec.md §4.7 "Conn is
// the minimal transport contract a live peer socket provides"), carrying
// each peer.Frame as one binary WebSocket message, msgpack-encoded.
// Grounded on the teacher's own binary framing over a raw TCP conn
// (internal/gslistener/connection.go ReadPacket/WritePacket), adapted from
// one frame per TCP read to one frame per WebSocket message since gorilla
// already handles message boundaries.
type wsPeerConn struct {
	conn *websocket.Conn
}

func newWSPeerConn(conn *websocket.Conn) *wsPeerConn { return &wsPeerConn{conn: conn} }

func (c *wsPeerConn) WriteFrame(f peer.Frame) error {
	data, err := peer.Encode(f)
	if err != nil {
		return fmt.Errorf("httpapi: encoding peer frame: %w", err)
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *wsPeerConn) ReadFrame() (peer.Frame, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return peer.Frame{}, err
	}
	if kind != websocket.BinaryMessage {
		return peer.Frame{}, fmt.Errorf("httpapi: peer link sent non-binary message kind %d", kind)
	}
	f, err := peer.Decode(data)
	if err != nil {
		return peer.Frame{}, fmt.Errorf("httpapi: decoding peer frame: %w", err)
	}
	return f, nil
}

func (c *wsPeerConn) Close() error { return c.conn.Close() }
