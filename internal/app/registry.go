package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Registry maps a live identity to its transport.
// It never closes connections: whoever replaces or releases an entry owns
// the old transport.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnKey]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnKey]core.SignalConnection),
	}
}

// Register installs conn under key and returns the entry it replaced, if any.
func (r *Registry) Register(key core.ConnKey, conn core.SignalConnection) core.SignalConnection {
	r.mu.Lock()
	prev := r.conns[key]
	r.conns[key] = conn
	n := len(r.conns)
	r.mu.Unlock()

	metrics.LiveConnections.Set(float64(n))
	log.Info().Str("module", "app.registry").Str("key", string(key)).Bool("replaced", prev != nil).Msg("registered connection")
	return prev
}

func (r *Registry) Unregister(key core.ConnKey) {
	r.mu.Lock()
	_, ok := r.conns[key]
	delete(r.conns, key)
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		metrics.LiveConnections.Set(float64(n))
		log.Info().Str("module", "app.registry").Str("key", string(key)).Msg("unregistered connection")
	}
}

// Release removes key only while it still maps to conn.
func (r *Registry) Release(key core.ConnKey, conn core.SignalConnection) bool {
	r.mu.Lock()
	cur, ok := r.conns[key]
	if !ok || cur != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, key)
	n := len(r.conns)
	r.mu.Unlock()

	metrics.LiveConnections.Set(float64(n))
	log.Info().Str("module", "app.registry").Str("key", string(key)).Msg("released connection")
	return true
}

func (r *Registry) Lookup(key core.ConnKey) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[key]
	return conn, ok
}

// Send queues f on the connection registered under key.
// A failed write evicts that connection so the registry heals itself.
func (r *Registry) Send(key core.ConnKey, f core.Frame) error {
	conn, ok := r.Lookup(key)
	if !ok {
		return core.ErrNotConnected
	}
	if err := conn.TrySend(f); err != nil {
		r.Release(key, conn)
		metrics.SendFailures.Inc()
		log.Warn().Err(err).Str("module", "app.registry").Str("key", string(key)).Msg("send failed, evicted connection")
		return fmt.Errorf("%w: %w", core.ErrSendFailed, err)
	}
	return nil
}

func (r *Registry) SendJSON(key core.ConnKey, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return r.Send(key, b)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Keys returns a sorted snapshot of registered keys.
func (r *Registry) Keys() []core.ConnKey {
	r.mu.RLock()
	out := make([]core.ConnKey, 0, len(r.conns))
	for k := range r.conns {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
