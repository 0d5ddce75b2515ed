package app

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/farmpulse/internal/core"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	err    error
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) received() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		_ = json.Unmarshal(f, &m)
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func mustOnly(t *testing.T, c *fakeConn) map[string]any {
	t.Helper()
	got := c.received()
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 frame, got %d: %v", len(got), got)
	}
	return got[0]
}
