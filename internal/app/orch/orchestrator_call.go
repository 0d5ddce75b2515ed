package orch

import (
	"github.com/dkeye/farmpulse/internal/app"
	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/rs/zerolog/log"
)

type peerDisconnected struct {
	Type string      `json:"type"`
	From domain.Role `json:"from"`
}

// JoinCall seats conn in the role slot of session id and registers it.
// A displaced connection is returned for the caller to close.
func (o *Orchestrator) JoinCall(id domain.CallID, role domain.Role, conn core.SignalConnection) core.SignalConnection {
	o.calls.Lock()
	defer o.calls.Unlock()
	prev, _ := o.Sessions.Connect(id, role, conn)
	o.Registry.Register(core.CallKey(id, role), conn)
	return prev
}

// OnSignal runs one inbound record through the relay.
func (o *Orchestrator) OnSignal(id domain.CallID, role domain.Role, data []byte) (app.Outcome, error) {
	return o.Relay.Handle(id, role, data)
}

// LeaveCall is the teardown path of a signaling connection. A connection
// that was already displaced leaves no trace and notifies nobody.
func (o *Orchestrator) LeaveCall(id domain.CallID, role domain.Role, conn core.SignalConnection) app.LeaveResult {
	o.calls.Lock()
	res := o.Sessions.Disconnect(id, role, conn)
	o.Registry.Release(core.CallKey(id, role), conn)
	o.calls.Unlock()
	if !res.Removed {
		return res
	}
	if res.PeerPresent {
		err := o.Registry.SendJSON(core.CallKey(id, role.Peer()), peerDisconnected{Type: app.MsgPeerDisconnected, From: role})
		if err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("session", string(id)).Str("peer", string(role.Peer())).Msg("peer-disconnected not delivered")
		}
	}
	if res.Closed {
		log.Info().Str("module", "orch").Str("session", string(id)).Msg("session closed")
	}
	return res
}

// EvictCall drops every participant of session id from both tables and
// returns their connections so the adapter can close them.
func (o *Orchestrator) EvictCall(id domain.CallID) []core.SignalConnection {
	o.calls.Lock()
	defer o.calls.Unlock()
	var out []core.SignalConnection
	for _, role := range []domain.Role{domain.RoleFarmer, domain.RoleVet} {
		key := core.CallKey(id, role)
		conn, ok := o.Registry.Lookup(key)
		if !ok {
			continue
		}
		o.Sessions.Disconnect(id, role, conn)
		o.Registry.Release(key, conn)
		out = append(out, conn)
	}
	return out
}
