package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/dkeye/farmpulse/internal/metrics"
	"github.com/rs/zerolog/log"
)

type CallState int

const (
	// StateClosed is terminal and never stored: a closed session is one
	// that is absent from the table.
	StateClosed CallState = iota
	StateOpen
)

func (s CallState) String() string {
	if s == StateOpen {
		return "OPEN"
	}
	return "CLOSED"
}

// callSession holds at most one connection per role.
type callSession struct {
	id       domain.CallID
	slots    map[domain.Role]core.SignalConnection
	openedAt time.Time
}

// CallInfo is a read-only view for APIs (no transport fields).
type CallInfo struct {
	ID       domain.CallID `json:"session_id"`
	State    string        `json:"state"`
	Roles    []domain.Role `json:"roles"`
	OpenedAt time.Time     `json:"opened_at"`
}

// LeaveResult describes what a Disconnect did.
type LeaveResult struct {
	// Removed is false when the slot was already empty or held a newer connection.
	Removed bool
	// PeerPresent reports whether the opposite role is still connected.
	PeerPresent bool
	// Closed reports that the last participant left and the session is gone.
	Closed bool
}

// Sessions is the signaling session table.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[domain.CallID]*callSession
	now      func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[domain.CallID]*callSession),
		now:      time.Now,
	}
}

// Connect puts conn into the role slot, creating the session on first use.
// It returns the connection it displaced so the caller can close it.
func (s *Sessions) Connect(id domain.CallID, role domain.Role, conn core.SignalConnection) (prev core.SignalConnection, created bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &callSession{
			id:       id,
			slots:    make(map[domain.Role]core.SignalConnection, 2),
			openedAt: s.now(),
		}
		s.sessions[id] = sess
		created = true
	}
	prev = sess.slots[role]
	sess.slots[role] = conn
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.LiveSessions.Set(float64(n))
	log.Info().Str("module", "app.sessions").Str("session", string(id)).Str("role", string(role)).Bool("created", created).Bool("replaced", prev != nil).Msg("participant connected")
	return prev, created
}

// Disconnect empties the role slot if it still holds conn.
func (s *Sessions) Disconnect(id domain.CallID, role domain.Role, conn core.SignalConnection) LeaveResult {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return LeaveResult{}
	}
	if cur, ok := sess.slots[role]; !ok || cur != conn {
		_, peer := sess.slots[role.Peer()]
		s.mu.Unlock()
		return LeaveResult{PeerPresent: peer}
	}
	delete(sess.slots, role)
	res := LeaveResult{Removed: true}
	_, res.PeerPresent = sess.slots[role.Peer()]
	if len(sess.slots) == 0 {
		delete(s.sessions, id)
		res.Closed = true
	}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.LiveSessions.Set(float64(n))
	log.Info().Str("module", "app.sessions").Str("session", string(id)).Str("role", string(role)).Bool("closed", res.Closed).Msg("participant disconnected")
	return res
}

// Has reports whether role currently occupies a slot in session id.
func (s *Sessions) Has(id domain.CallID, role domain.Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	_, ok = sess.slots[role]
	return ok
}

func (s *Sessions) State(id domain.CallID) CallState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[id]; ok {
		return StateOpen
	}
	return StateClosed
}

func (s *Sessions) Snapshot(id domain.CallID) (CallInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return CallInfo{}, false
	}
	return sess.info(), true
}

func (s *Sessions) List() []CallInfo {
	s.mu.RLock()
	out := make([]CallInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.info())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// info must be called with the table lock held.
func (c *callSession) info() CallInfo {
	roles := make([]domain.Role, 0, 2)
	for _, r := range []domain.Role{domain.RoleFarmer, domain.RoleVet} {
		if _, ok := c.slots[r]; ok {
			roles = append(roles, r)
		}
	}
	return CallInfo{
		ID:       c.id,
		State:    StateOpen.String(),
		Roles:    roles,
		OpenedAt: c.openedAt,
	}
}
