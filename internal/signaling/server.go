package signaling

import (
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/origin"
	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/presence"
	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/ratelimit"
)

const (
	defaultIdleTimeout          = 60 * time.Second
	defaultPingInterval         = 20 * time.Second
	defaultWriteTimeout         = 5 * time.Second
	defaultMaxMessageBytes      = 16 * 1024
	defaultMaxMessagesPerSecond = 50
	defaultSendQueueDepth       = 256
)

type Config struct {
	Hub     *Hub
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// AllowedOrigins follows origin.IsAllowed: empty means same host only.
	AllowedOrigins []string
	// MaxConnections caps concurrent WebSocket connections; <= 0 is unlimited.
	MaxConnections int

	IdleTimeout          time.Duration
	PingInterval         time.Duration
	WriteTimeout         time.Duration
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	SendQueueDepth       int

	// Clock drives the per-connection rate limiter. Defaults to the real clock.
	Clock ratelimit.Clock
}

type Server struct {
	cfg      Config
	hub      *Hub
	log      *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	active atomic.Int64
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger, cfg.Metrics)
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.IdleTimeout {
		cfg.PingInterval = min(defaultPingInterval, cfg.IdleTimeout/2)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	if cfg.MaxMessagesPerSecond <= 0 {
		cfg.MaxMessagesPerSecond = defaultMaxMessagesPerSecond
	}
	if cfg.SendQueueDepth <= 0 {
		cfg.SendQueueDepth = defaultSendQueueDepth
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}

	s := &Server{
		cfg:     cfg,
		hub:     cfg.Hub,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return origin.Check(r, s.cfg.AllowedOrigins)
		},
	}
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

// ActiveConnections counts upgraded connections that have not finished
// tearing down.
func (s *Server) ActiveConnections() int {
	return int(s.active.Load())
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /socket", s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	if limit := s.cfg.MaxConnections; limit > 0 && n > int64(limit) {
		s.metrics.Inc(metrics.ConnectionsRejected)
		s.log.Warn("rejecting connection: at capacity", "max_connections", limit, "remote_addr", r.RemoteAddr)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	id := presence.ConnID(uuid.NewString())
	c := newWSConn(id, ws, s.log, s.cfg.SendQueueDepth, s.cfg.PingInterval, s.cfg.WriteTimeout)
	go c.writeLoop()
	defer func() { <-c.writerDone }()

	if err := s.hub.Connect(c); err != nil {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
		return
	}
	s.metrics.Inc(metrics.ConnectionsAccepted)

	s.readLoop(c)

	s.hub.Disconnect(c)
	c.closeWith(websocket.CloseNormalClosure, "")
}

// readLoop reads frames until the connection fails or a limit is violated.
// Closing the connection is left to closeWith so queued frames are flushed
// ahead of the close frame.
func (s *Server) readLoop(c *wsConn) {
	ws := c.ws
	ws.SetReadLimit(s.cfg.MaxMessageBytes)

	extend := func() {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	}
	extend()
	ws.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	limiter := ratelimit.NewTokenBucket(
		s.cfg.Clock,
		int64(s.cfg.MaxMessagesPerSecond),
		int64(s.cfg.MaxMessagesPerSecond),
	)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				s.metrics.Inc(metrics.DropReasonTooLarge)
				c.closeWith(websocket.CloseMessageTooBig, "message too large")
			case isTimeout(err):
				s.metrics.Inc(metrics.DropReasonIdleTimeout)
				c.closeWith(websocket.CloseNormalClosure, "idle timeout")
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				s.log.Debug("websocket closed unexpectedly", "conn_id", c.id, "err", err)
			}
			return
		}
		extend()

		// The limit is checked after reading so the frame is consumed and the
		// client reliably observes the close code.
		if !limiter.Allow(1) {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			s.log.Warn("closing connection: rate limit exceeded", "conn_id", c.id)
			_ = c.Send(encodeError("rate_limited", "rate limit exceeded"))
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.DropReasonBadMessage)
			_ = c.Send(encodeError("bad_message", "expected text message"))
			continue
		}
		if err := s.hub.HandleMessage(c, data); err != nil {
			s.log.Debug("bad inbound message", "conn_id", c.id, "err", err)
		}
	}
}
