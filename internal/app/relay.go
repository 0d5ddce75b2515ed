package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/dkeye/farmpulse/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Signaling message types.
const (
	MsgReady            = "ready"
	MsgOffer            = "offer"
	MsgAnswer           = "answer"
	MsgICECandidate     = "ice-candidate"
	MsgHangup           = "hangup"
	MsgPeerDisconnected = "peer-disconnected"
)

// Outcome tells the reader loop whether to keep going.
type Outcome int

const (
	Continue Outcome = iota
	Hangup
)

type inbound struct {
	Type      string          `json:"type"`
	SDP       json.RawMessage `json:"sdp"`
	Candidate json.RawMessage `json:"candidate"`
}

// Outbound frames. sdp and candidate are opaque and copied verbatim;
// an absent value is forwarded as null.
type (
	roleFrame struct {
		Type string      `json:"type"`
		From domain.Role `json:"from"`
	}
	sdpFrame struct {
		Type string          `json:"type"`
		SDP  json.RawMessage `json:"sdp"`
		From domain.Role     `json:"from"`
	}
	candidateFrame struct {
		Type      string          `json:"type"`
		Candidate json.RawMessage `json:"candidate"`
		From      domain.Role     `json:"from"`
	}
)

// Relay forwards signaling messages between the two roles of a session.
// Nothing is buffered: a message for an absent peer is dropped.
type Relay struct {
	Registry *Registry
	Sessions *Sessions
}

func NewRelay(reg *Registry, sessions *Sessions) *Relay {
	return &Relay{Registry: reg, Sessions: sessions}
}

// Handle processes one inbound record from (id, from). Errors are
// informational; the connection stays open unless Hangup is returned.
func (r *Relay) Handle(id domain.CallID, from domain.Role, data []byte) (Outcome, error) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.RelayDropped.WithLabelValues("malformed").Inc()
		log.Warn().Err(err).Str("module", "app.relay").Str("session", string(id)).Str("role", string(from)).Msg("bad json")
		return Continue, fmt.Errorf("%w: %w", core.ErrMalformedMessage, err)
	}
	if !r.Sessions.Has(id, from) {
		metrics.RelayDropped.WithLabelValues("invalid_session").Inc()
		log.Warn().Str("module", "app.relay").Str("session", string(id)).Str("role", string(from)).Str("type", msg.Type).Msg("no such session participant")
		return Continue, core.ErrInvalidSession
	}

	peer := core.CallKey(id, from.Peer())
	var out any
	switch msg.Type {
	case MsgReady:
		out = roleFrame{Type: MsgReady, From: from}
	case MsgOffer, MsgAnswer:
		out = sdpFrame{Type: msg.Type, SDP: msg.SDP, From: from}
	case MsgICECandidate:
		out = candidateFrame{Type: MsgICECandidate, Candidate: msg.Candidate, From: from}
	case MsgHangup:
		log.Info().Str("module", "app.relay").Str("session", string(id)).Str("role", string(from)).Msg("hangup")
		err := r.forward(id, from, peer, msg.Type, roleFrame{Type: MsgHangup, From: from})
		return Hangup, err
	default:
		metrics.RelayDropped.WithLabelValues("malformed").Inc()
		log.Warn().Str("module", "app.relay").Str("session", string(id)).Str("type", msg.Type).Msg("unknown signal")
		return Continue, fmt.Errorf("%w: unknown type %q", core.ErrMalformedMessage, msg.Type)
	}
	return Continue, r.forward(id, from, peer, msg.Type, out)
}

func (r *Relay) forward(id domain.CallID, from domain.Role, peer core.ConnKey, typ string, v any) error {
	err := r.Registry.SendJSON(peer, v)
	switch {
	case err == nil:
		metrics.RelayedMessages.WithLabelValues(typ).Inc()
		log.Debug().Str("module", "app.relay").Str("session", string(id)).Str("from", string(from)).Str("type", typ).Msg("forwarded")
	case errors.Is(err, core.ErrNotConnected):
		metrics.RelayDropped.WithLabelValues("peer_absent").Inc()
		ev := log.Warn()
		if typ == MsgReady || typ == MsgHangup {
			ev = log.Debug()
		}
		ev.Str("module", "app.relay").Str("session", string(id)).Str("peer", string(from.Peer())).Str("type", typ).Msg("peer not connected, dropped")
	default:
		metrics.RelayDropped.WithLabelValues("send_failed").Inc()
	}
	return err
}
