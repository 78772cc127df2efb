package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnClosed is returned by Send after Close.
var ErrConnClosed = errors.New("websocket connection closed")

// Conn adapts a gorilla WebSocket to terminal.Channel.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// NewConn wraps c. Inbound messages larger than maxMessage bytes fail the
// connection.
func NewConn(c *websocket.Conn, writeTimeout time.Duration, maxMessage int64) *Conn {
	if maxMessage > 0 {
		c.SetReadLimit(maxMessage)
	}
	return &Conn{
		conn:         c,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

// Send writes one text message. Writes are serialized and bounded by the
// write timeout so a stalled peer cannot block the caller forever.
func (c *Conn) Send(p []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, p)
}

// Receive returns the payload of the next text or binary message.
func (c *Conn) Receive() ([]byte, error) {
	_, p, err := c.conn.ReadMessage()
	return p, err
}

// Close sends a close frame with code and reason, then closes the socket.
// Later calls do nothing.
func (c *Conn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(time.Second)
		// WriteControl may run alongside a pending Send; closing the socket
		// below unblocks that Send.
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		err = c.conn.Close()
	})
	return err
}
