package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/logging"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxFrameSize bounds a single client frame.
	maxFrameSize = 64 * 1024
)

// client is one websocket connection.
type client struct {
	id     string
	caller coordination.Caller
	conn   *websocket.Conn
	send   chan []byte
	logger *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, caller coordination.Caller, buffer int, logger *logging.Logger) *client {
	return &client{
		id:     caller.ConnectionID,
		caller: caller,
		conn:   conn,
		send:   make(chan []byte, buffer),
		logger: logger.WithUser(caller.UserID).WithConnection(caller.ConnectionID),
		done:   make(chan struct{}),
	}
}

// enqueue queues a frame without blocking. A client whose buffer is full is
// too slow to keep up and gets disconnected.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.logger.Warn("send buffer full, dropping connection", "buffer", cap(c.send))
		c.close()
		return false
	}
}

// reply marshals and queues a frame for this client only.
func (c *client) reply(frame ServerFrame) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}
	msg, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to marshal frame", "event", frame.Event, "error", err.Error())
		return
	}
	c.enqueue(msg)
}

// close asks the writer to send a close frame and shut the connection.
// Safe to call many times.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump reads frames until the connection fails and hands each to handle.
func (c *client) readPump(handle func(*client, []byte)) {
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "error", err.Error())
			}
			return
		}
		handle(c, message)
	}
}

// writePump sends queued frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
