package metrics

import "sync"

// Event counter names.
const (
	ConnectionsAccepted = "connections_accepted"
	ConnectionsRejected = "connections_rejected_capacity"
	ConnectionsClosed   = "connections_closed"

	PeerRegistered = "peer_registered"
	PeerRemoved    = "peer_removed"

	PresenceBroadcasts = "presence_broadcasts"

	CallRequestRouted  = "call_request_routed"
	CallRequestMissed  = "call_request_unresolved"
	CallEndRouted      = "call_end_routed"
	CallEndMissed      = "call_end_unresolved"
	UnknownMessageType = "unknown_message_type"

	// Drop reasons.
	DropReasonBadMessage  = "dropped_bad_message"
	DropReasonQueueFull   = "dropped_send_queue_full"
	DropReasonConnClosed  = "dropped_connection_closed"
	DropReasonRateLimited = "rate_limited"
	DropReasonTooLarge    = "message_too_large"
	DropReasonIdleTimeout = "idle_timeout"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
