package presence

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
)

type recordingPublisher struct {
	mu    sync.Mutex
	snaps [][]Peer
}

func (p *recordingPublisher) PublishPresence(peers []Peer) {
	p.mu.Lock()
	p.snaps = append(p.snaps, peers)
	p.mu.Unlock()
}

func (p *recordingPublisher) last(t *testing.T) []Peer {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snaps) == 0 {
		t.Fatalf("no presence published")
	}
	return p.snaps[len(p.snaps)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func TestRegistry_RegisterPublishesSnapshot(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRegistry(pub)

	r.Register("c1", Peer{PeerID: "p1", Username: "Alice"})
	r.Register("c2", Peer{PeerID: "p2", Username: "Bob"})

	if got := pub.count(); got != 2 {
		t.Fatalf("published=%d, want 2", got)
	}
	want := []Peer{{PeerID: "p1", Username: "Alice"}, {PeerID: "p2", Username: "Bob"}}
	if got := pub.last(t); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot=%+v, want %+v", got, want)
	}
	if got := r.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot=%+v, want %+v", got, want)
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("c1", Peer{PeerID: "p1", Username: "Alice"})
	r.Register("c2", Peer{PeerID: "p2", Username: "Bob"})
	r.Register("c1", Peer{PeerID: "p1b", Username: "Alicia"})

	if got := r.Len(); got != 2 {
		t.Fatalf("Len=%d, want 2", got)
	}
	peer, ok := r.Find("c1")
	if !ok || peer != (Peer{PeerID: "p1b", Username: "Alicia"}) {
		t.Fatalf("Find(c1)=%+v,%v", peer, ok)
	}
	// The connection keeps its original position.
	want := []Peer{{PeerID: "p1b", Username: "Alicia"}, {PeerID: "p2", Username: "Bob"}}
	if got := r.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Snapshot=%+v, want %+v", got, want)
	}
	if _, ok := r.Resolve("p1"); ok {
		t.Fatalf("stale peer id p1 still resolves")
	}
}

func TestRegistry_RemoveAbsentIsNoopButPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRegistry(pub)
	r.Register("c1", Peer{PeerID: "p1"})

	if r.Remove("nope") {
		t.Fatalf("Remove(nope) reported a deletion")
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("Len=%d, want 1", got)
	}
	if got := pub.count(); got != 2 {
		t.Fatalf("published=%d, want 2", got)
	}
	if got := pub.last(t); len(got) != 1 {
		t.Fatalf("snapshot=%+v, want one record", got)
	}
}

func TestRegistry_RemoveKeepsOrderAndIndex(t *testing.T) {
	r := NewRegistry(nil)
	for i := 0; i < 5; i++ {
		r.Register(ConnID(fmt.Sprintf("c%d", i)), Peer{PeerID: fmt.Sprintf("p%d", i)})
	}
	if !r.Remove("c1") {
		t.Fatalf("Remove(c1) = false")
	}
	if !r.Remove("c3") {
		t.Fatalf("Remove(c3) = false")
	}

	var ids []string
	for _, p := range r.Snapshot() {
		ids = append(ids, p.PeerID)
	}
	if want := []string{"p0", "p2", "p4"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("peer ids=%v, want %v", ids, want)
	}
	for _, id := range []ConnID{"c0", "c2", "c4"} {
		if _, ok := r.Find(id); !ok {
			t.Fatalf("Find(%s) missing after removals", id)
		}
	}
	if got, ok := r.Resolve("p4"); !ok || got != "c4" {
		t.Fatalf("Resolve(p4)=%q,%v", got, ok)
	}
}

func TestRegistry_ResolveFirstMatchWins(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("c3", Peer{PeerID: "dup", Username: "first"})
	r.Register("c4", Peer{PeerID: "dup", Username: "second"})

	for i := 0; i < 10; i++ {
		got, ok := r.Resolve("dup")
		if !ok || got != "c3" {
			t.Fatalf("Resolve(dup)=%q,%v, want c3", got, ok)
		}
	}

	// A re-register of the first connection does not move it behind c4.
	r.Register("c3", Peer{PeerID: "dup", Username: "renamed"})
	if got, _ := r.Resolve("dup"); got != "c3" {
		t.Fatalf("Resolve(dup)=%q after re-register, want c3", got)
	}

	r.Remove("c3")
	if got, _ := r.Resolve("dup"); got != "c4" {
		t.Fatalf("Resolve(dup)=%q after removal, want c4", got)
	}
}

func TestRegistry_FindAbsent(t *testing.T) {
	r := NewRegistry(nil)
	if _, ok := r.Find("c1"); ok {
		t.Fatalf("Find on empty registry returned a record")
	}
	if snap := r.Snapshot(); snap == nil || len(snap) != 0 {
		t.Fatalf("Snapshot=%#v, want empty non-nil slice", snap)
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("c1", Peer{PeerID: "p1", Username: "Alice"})

	snap := r.Snapshot()
	snap[0].Username = "mutated"

	if p, _ := r.Find("c1"); p.Username != "Alice" {
		t.Fatalf("registry mutated through snapshot: %+v", p)
	}
}

func TestRegistry_LiveSetMatchesConnectedRegistered(t *testing.T) {
	r := NewRegistry(nil)
	live := map[ConnID]bool{}

	ops := []struct {
		register bool
		id       ConnID
	}{
		{true, "a"}, {true, "b"}, {false, "a"}, {true, "c"}, {true, "a"},
		{false, "z"}, {true, "b"}, {false, "c"}, {false, "c"}, {true, "d"},
	}
	for _, op := range ops {
		if op.register {
			r.Register(op.id, Peer{PeerID: string(op.id)})
			live[op.id] = true
		} else {
			r.Remove(op.id)
			delete(live, op.id)
		}
	}

	var got, want []string
	for _, p := range r.Snapshot() {
		got = append(got, p.PeerID)
	}
	for id := range live {
		want = append(want, string(id))
	}
	sort.Strings(got)
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("live=%v, want %v", got, want)
	}
}

// sizePublisher records the size of each published snapshot so ordering can
// be checked against the mutation sequence.
type sizePublisher struct {
	mu    sync.Mutex
	sizes []int
}

func (p *sizePublisher) PublishPresence(peers []Peer) {
	p.mu.Lock()
	p.sizes = append(p.sizes, len(peers))
	p.mu.Unlock()
}

func TestRegistry_ConcurrentMutationsPublishInOrder(t *testing.T) {
	pub := &sizePublisher{}
	r := NewRegistry(pub)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register(ConnID(fmt.Sprintf("c%d", i)), Peer{PeerID: fmt.Sprintf("p%d", i)})
			_ = r.Snapshot()
			_, _ = r.Resolve("p0")
		}(i)
	}
	wg.Wait()

	if got := r.Len(); got != n {
		t.Fatalf("Len=%d, want %d", got, n)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.sizes) != n {
		t.Fatalf("published=%d, want %d", len(pub.sizes), n)
	}
	for i, size := range pub.sizes {
		if size != i+1 {
			t.Fatalf("publish #%d saw %d peers, want %d", i, size, i+1)
		}
	}
}
