package presence

import "sync"

// ConnID is the transport-assigned identity of one open connection.
type ConnID string

// Peer is the metadata a connection registered for itself. PeerID is
// self-declared and not unique across connections.
type Peer struct {
	PeerID   string `json:"peerId"`
	Username string `json:"username"`
}

// Publisher receives a copy of the presence set after each registry mutation.
//
// PublishPresence is called without the registry lock held and must not block
// on network I/O.
type Publisher interface {
	PublishPresence(peers []Peer)
}

type entry struct {
	id   ConnID
	peer Peer
}

// Registry maps connection identities to peer records.
//
// Entries are kept in the order their connection first registered. A
// connection that re-registers keeps its position, so lookups by peer id are
// deterministic: the earliest registered connection wins.
type Registry struct {
	// publishMu orders mutate+snapshot+publish so subscribers observe
	// snapshots in mutation order.
	publishMu sync.Mutex
	publisher Publisher

	mu      sync.RWMutex
	entries []entry
	index   map[ConnID]int
}

// NewRegistry returns an empty registry. pub may be nil.
func NewRegistry(pub Publisher) *Registry {
	return &Registry{
		publisher: pub,
		index:     make(map[ConnID]int),
	}
}

// Register inserts or replaces the record for id and publishes the result.
func (r *Registry) Register(id ConnID, peer Peer) {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	if i, ok := r.index[id]; ok {
		r.entries[i].peer = peer
	} else {
		r.index[id] = len(r.entries)
		r.entries = append(r.entries, entry{id: id, peer: peer})
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(snap)
}

// Remove deletes the record for id if present and publishes the result. It
// publishes even when id was never registered. It reports whether a record was
// deleted.
func (r *Registry) Remove(id ConnID) bool {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	r.mu.Lock()
	i, ok := r.index[id]
	if ok {
		delete(r.index, id)
		copy(r.entries[i:], r.entries[i+1:])
		r.entries[len(r.entries)-1] = entry{}
		r.entries = r.entries[:len(r.entries)-1]
		for j := i; j < len(r.entries); j++ {
			r.index[r.entries[j].id] = j
		}
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.publish(snap)
	return ok
}

// Snapshot returns a copy of every registered peer record, in registration
// order. The returned slice is never nil.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Find returns the record registered by id.
func (r *Registry) Find(id ConnID) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return Peer{}, false
	}
	return r.entries[i].peer, true
}

// Resolve returns the connection that registered peerID. When several
// connections registered the same peer id, the first match wins.
func (r *Registry) Resolve(peerID string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.peer.PeerID == peerID {
			return e.id, true
		}
	}
	return "", false
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) snapshotLocked() []Peer {
	out := make([]Peer, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.peer
	}
	return out
}

func (r *Registry) publish(snap []Peer) {
	if r.publisher == nil {
		return
	}
	r.publisher.PublishPresence(snap)
}
