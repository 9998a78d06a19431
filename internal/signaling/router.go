package signaling

import (
	"log/slog"

	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/presence"
)

// Directory is the read-only view of the presence registry used for routing.
type Directory interface {
	Find(id presence.ConnID) (presence.Peer, bool)
	Resolve(peerID string) (presence.ConnID, bool)
}

// Deliverer enqueues a pre-encoded frame for one connection. It reports
// whether the frame was accepted.
type Deliverer interface {
	Deliver(id presence.ConnID, frame []byte) bool
}

// Router forwards call events to the connection registered under a peer ID.
// It holds no state of its own and never notifies the requester.
type Router struct {
	dir     Directory
	out     Deliverer
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRouter(dir Directory, out Deliverer, logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{dir: dir, out: out, log: logger, metrics: m}
}

// RouteCallRequest sends call:incoming to the connection registered as to.
// from is forwarded as claimed by the requester; caller is the requester's
// registered username and is omitted when the requester never registered.
// It reports whether to resolved to a connection.
func (r *Router) RouteCallRequest(requester presence.ConnID, to, from string) bool {
	target, ok := r.dir.Resolve(to)
	if !ok {
		r.metrics.Inc(metrics.CallRequestMissed)
		r.log.Debug("call request target not found", "conn_id", requester, "to", to)
		return false
	}

	var caller *string
	if peer, ok := r.dir.Find(requester); ok {
		caller = &peer.Username
	}

	r.metrics.Inc(metrics.CallRequestRouted)
	r.out.Deliver(target, encodeCallIncoming(from, caller))
	return true
}

// RouteCallEnd sends call:ended to the connection registered as to. It
// reports whether to resolved to a connection.
func (r *Router) RouteCallEnd(to string) bool {
	target, ok := r.dir.Resolve(to)
	if !ok {
		r.metrics.Inc(metrics.CallEndMissed)
		r.log.Debug("call end target not found", "to", to)
		return false
	}

	r.metrics.Inc(metrics.CallEndRouted)
	r.out.Deliver(target, encodeCallEnded())
	return true
}
