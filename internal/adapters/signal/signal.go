package signal

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/farmpulse/internal/app/orch"
	"github.com/dkeye/farmpulse/internal/core"
	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("connection closed")

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	ChatLimit    int
	ChatInterval time.Duration
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	Limiter *ChatRateLimiter

	opts     Options
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	ctl := &SignalWSController{
		Orch: o,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if opts.ChatLimit > 0 {
		ctl.Limiter = NewChatRateLimiter(opts.ChatLimit, opts.ChatInterval)
	}
	return ctl
}

// WsSignalConn is the adapter-owned transport behind core.SignalConnection.
// Writes go through a bounded queue drained by a single writePump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int) *WsSignalConn {
	return &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

// TrySend never blocks. A full queue means the reader cannot keep up, so
// the transport is closed and the normal teardown runs.
func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errConnClosed
	}
	select {
	case c.send <- f:
		c.mu.RUnlock()
		return nil
	default:
	}
	c.mu.RUnlock()
	c.Close()
	return core.ErrBackpressure
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
