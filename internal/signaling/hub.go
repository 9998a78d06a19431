package signaling

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/presence"
)

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrConnClosed    = errors.New("connection closed")
	ErrHubClosed     = errors.New("hub closed")
)

// Conn is one client connection as seen by the Hub.
//
// Send must not block: it either queues frame for delivery or fails with
// ErrSendQueueFull or ErrConnClosed. Close must be safe to call more than
// once.
type Conn interface {
	ID() presence.ConnID
	Send(frame []byte) error
	Close()
}

// Hub owns the presence registry and the set of open connections. It is the
// registry's Publisher: every registry change is fanned out to all tracked
// connections, registered or not.
//
// For a given connection, HandleMessage and Disconnect must be called from a
// single goroutine.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	registry *presence.Registry
	router   *Router

	mu     sync.RWMutex
	conns  map[presence.ConnID]Conn
	closed bool
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		log:     logger,
		metrics: m,
		conns:   make(map[presence.ConnID]Conn),
	}
	h.registry = presence.NewRegistry(h)
	h.router = NewRouter(h.registry, h, logger, m)
	return h
}

func (h *Hub) Registry() *presence.Registry { return h.registry }

// ConnCount returns the number of tracked connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Connect starts tracking c. The registry is not touched until c registers.
func (h *Hub) Connect(c Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.conns[c.ID()] = c
	h.log.Debug("connection opened", "conn_id", c.ID())
	return nil
}

// HandleMessage decodes one inbound frame from c and dispatches it. A frame
// that is not a JSON object gets an error reply and is otherwise ignored; the
// returned error is for logging only.
func (h *Hub) HandleMessage(c Conn, data []byte) error {
	msg, err := ParseInboundMessage(data)
	if err != nil {
		h.metrics.Inc(metrics.DropReasonBadMessage)
		h.reply(c, encodeError("bad_message", "message must be a JSON object"))
		return err
	}
	h.Dispatch(c, msg)
	return nil
}

// Dispatch applies a decoded inbound event on behalf of c.
func (h *Hub) Dispatch(c Conn, msg InboundMessage) {
	id := c.ID()
	switch msg.Type {
	case MessageTypeRegister:
		if !h.tracked(id) {
			return
		}
		peer := presence.Peer{PeerID: string(msg.PeerID), Username: string(msg.Username)}
		h.metrics.Inc(metrics.PeerRegistered)
		h.log.Info("peer registered", "conn_id", id, "peer_id", peer.PeerID, "username", peer.Username)
		h.registry.Register(id, peer)
	case MessageTypeCallRequest:
		h.router.RouteCallRequest(id, string(msg.To), string(msg.From))
	case MessageTypeCallEnd:
		h.router.RouteCallEnd(string(msg.To))
	default:
		h.metrics.Inc(metrics.UnknownMessageType)
		h.log.Debug("ignoring unknown message type", "conn_id", id, "type", string(msg.Type))
	}
}

// Disconnect stops tracking c and removes its presence entry, broadcasting
// the result to the remaining connections. Calls after the first are no-ops.
func (h *Hub) Disconnect(c Conn) {
	id := c.ID()

	h.mu.Lock()
	_, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if !ok {
		return
	}

	h.metrics.Inc(metrics.ConnectionsClosed)
	if h.registry.Remove(id) {
		h.metrics.Inc(metrics.PeerRemoved)
		h.log.Info("peer removed", "conn_id", id)
	}
	h.log.Debug("connection closed", "conn_id", id)
}

// Close closes every tracked connection and rejects further Connect calls.
// Transports observe the close and call Disconnect as usual.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// PublishPresence implements presence.Publisher.
func (h *Hub) PublishPresence(peers []presence.Peer) {
	frame := encodeUsersUpdate(peers)

	h.mu.RLock()
	if h.closed {
		// Shutting down; every connection is already closing.
		h.mu.RUnlock()
		return
	}
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	h.metrics.Inc(metrics.PresenceBroadcasts)
	for _, c := range conns {
		h.send(c, frame)
	}
}

// Deliver implements Deliverer.
func (h *Hub) Deliver(id presence.ConnID, frame []byte) bool {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		h.metrics.Inc(metrics.DropReasonConnClosed)
		return false
	}
	return h.send(c, frame)
}

func (h *Hub) reply(c Conn, frame []byte) {
	h.send(c, frame)
}

func (h *Hub) send(c Conn, frame []byte) bool {
	err := c.Send(frame)
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrSendQueueFull):
		h.metrics.Inc(metrics.DropReasonQueueFull)
	default:
		h.metrics.Inc(metrics.DropReasonConnClosed)
	}
	h.log.Warn("dropping outbound event", "conn_id", c.ID(), "bytes", len(frame), "err", err)
	return false
}

func (h *Hub) tracked(id presence.ConnID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[id]
	return ok
}
