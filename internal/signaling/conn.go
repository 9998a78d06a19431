package signaling

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/presence"
)

// wsConn adapts a gorilla WebSocket to Conn. Outbound frames go through a
// bounded queue drained by writeLoop, which is the only goroutine that writes
// data frames.
type wsConn struct {
	id  presence.ConnID
	ws  *websocket.Conn
	log *slog.Logger

	pingInterval time.Duration
	writeTimeout time.Duration

	queue      chan []byte
	done       chan struct{}
	writerDone chan struct{}

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newWSConn(id presence.ConnID, ws *websocket.Conn, logger *slog.Logger, queueDepth int, pingInterval, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		id:           id,
		ws:           ws,
		log:          logger,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		queue:        make(chan []byte, queueDepth),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
}

func (c *wsConn) ID() presence.ConnID { return c.id }

func (c *wsConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.queue <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close is used by the Hub on shutdown.
func (c *wsConn) Close() {
	c.closeWith(websocket.CloseGoingAway, "server shutting down")
}

// closeWith stops accepting frames and asks the writer to flush what is
// queued, send a close frame with code and reason, and close the socket. Only
// the first call has any effect.
func (c *wsConn) closeWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
}

func (c *wsConn) writeLoop() {
	defer close(c.writerDone)
	defer c.ws.Close()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.queue:
			if err := c.write(frame); err != nil {
				c.log.Debug("websocket write failed", "conn_id", c.id, "err", err)
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Debug("websocket ping failed", "conn_id", c.id, "err", err)
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued, then the close frame.
func (c *wsConn) flush() {
drain:
	for {
		select {
		case frame := <-c.queue:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			break drain
		}
	}

	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()
	if code == websocket.CloseAbnormalClosure {
		// 1006 must not be sent on the wire.
		return
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeTimeout))
}

func (c *wsConn) write(frame []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
