package signaling

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/presence-signaling-relay/internal/presence"
)

// fakeConn records frames instead of writing them. A non-zero capacity makes
// Send fail with ErrSendQueueFull once that many frames are held.
type fakeConn struct {
	id presence.ConnID

	mu       sync.Mutex
	frames   [][]byte
	capacity int
	closed   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: presence.ConnID(id)}
}

func (c *fakeConn) ID() presence.ConnID { return c.id }

func (c *fakeConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.capacity > 0 && len(c.frames) >= c.capacity {
		return ErrSendQueueFull
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

type wireEvent struct {
	Type    MessageType     `json:"type"`
	Users   []presence.Peer `json:"users"`
	From    string          `json:"from"`
	Caller  *string         `json:"caller"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

// take returns and clears the decoded frames received so far.
func (c *fakeConn) take(t *testing.T) []wireEvent {
	t.Helper()
	c.mu.Lock()
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	out := make([]wireEvent, 0, len(frames))
	for _, f := range frames {
		var ev wireEvent
		if err := json.Unmarshal(f, &ev); err != nil {
			t.Fatalf("conn %s: decode frame %q: %v", c.id, f, err)
		}
		out = append(out, ev)
	}
	return out
}

func newTestHub() (*Hub, *metrics.Metrics) {
	m := metrics.New()
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), m), m
}

func connect(t *testing.T, h *Hub, id string) *fakeConn {
	t.Helper()
	c := newFakeConn(id)
	if err := h.Connect(c); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	return c
}

func send(t *testing.T, h *Hub, c Conn, raw string) {
	t.Helper()
	if err := h.HandleMessage(c, []byte(raw)); err != nil {
		t.Fatalf("HandleMessage(%s, %s): %v", c.ID(), raw, err)
	}
}
