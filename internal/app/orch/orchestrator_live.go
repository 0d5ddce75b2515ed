package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/rs/zerolog/log"
)

type chatIn struct {
	Type        string          `json:"type"`
	RecipientID domain.UserID   `json:"recipient_id"`
	Message     json.RawMessage `json:"message"`
	Timestamp   json.RawMessage `json:"timestamp"`
}

type chatOut struct {
	Type      string          `json:"type"`
	From      domain.UserID   `json:"from"`
	Message   json.RawMessage `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// ConnectUser registers a live notification socket for uid.
func (o *Orchestrator) ConnectUser(uid domain.UserID, conn core.SignalConnection) core.SignalConnection {
	return o.Registry.Register(core.UserKey(uid), conn)
}

func (o *Orchestrator) DisconnectUser(uid domain.UserID, conn core.SignalConnection) {
	o.Registry.Release(core.UserKey(uid), conn)
}

// Chat forwards a chat record to the recipient's live socket. A missing
// recipient yields core.ErrNotConnected and the message is dropped.
func (o *Orchestrator) Chat(from domain.UserID, data []byte) error {
	var in chatIn
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %w", core.ErrMalformedMessage, err)
	}
	if in.RecipientID == "" {
		return fmt.Errorf("%w: chat without recipient_id", core.ErrMalformedMessage)
	}
	return o.Registry.SendJSON(core.UserKey(in.RecipientID), chatOut{
		Type:      "chat",
		From:      from,
		Message:   in.Message,
		Timestamp: in.Timestamp,
	})
}

// BroadcastToRole pushes v to every connected user holding role and
// returns how many sockets accepted it.
func (o *Orchestrator) BroadcastToRole(ctx context.Context, role domain.UserRole, v any) (int, error) {
	if o.Users == nil {
		return 0, errors.New("no user store")
	}
	users, err := o.Users.ListUsersByRole(ctx, role)
	if err != nil {
		return 0, fmt.Errorf("list %s users: %w", role, err)
	}
	frame, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, u := range users {
		if err := o.Registry.Send(core.UserKey(u.ID), frame); err == nil {
			sent++
		}
	}
	log.Info().Str("module", "orch").Str("role", string(role)).Int("users", len(users)).Int("sent", sent).Msg("broadcast")
	return sent, nil
}

// KickUser drops uid's live socket from the registry and closes it.
// The adapter's teardown then finds the slot empty and releases nothing.
func (o *Orchestrator) KickUser(uid domain.UserID) bool {
	key := core.UserKey(uid)
	conn, ok := o.Registry.Lookup(key)
	if !ok {
		return false
	}
	o.Registry.Unregister(key)
	conn.Close()
	log.Info().Str("module", "orch").Str("user", string(uid)).Msg("kicked live connection")
	return true
}
