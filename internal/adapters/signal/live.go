package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type pongFrame struct {
	Type       string `json:"type"`
	ServerTime string `json:"server_time"`
}

// HandleLive upgrades the per-user notification and chat socket.
func (ctl *SignalWSController) HandleLive(ctx context.Context, c *gin.Context, who domain.Identity) {
	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	uid := who.ID
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	logger := log.With().Str("module", "signal").Str("user", string(uid)).Logger()
	logger.Info().Str("role", string(who.Role)).Msg("live connection")

	if prev := ctl.Orch.ConnectUser(uid, conn); prev != nil {
		logger.Info().Msg("replacing previous connection")
		prev.Close()
	}

	go ctl.writePump(ctx, conn, logger)
	go ctl.readPump(ctx, conn, logger,
		func(data []byte) bool {
			ctl.handleLive(uid, conn, data, logger)
			return true
		},
		func() {
			ctl.Orch.DisconnectUser(uid, conn)
			if ctl.Limiter != nil {
				ctl.Limiter.Forget(uid)
			}
		},
	)
}

func (ctl *SignalWSController) handleLive(uid domain.UserID, conn *WsSignalConn, data []byte, logger zerolog.Logger) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warn().Err(err).Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.sendJSON(conn, pongFrame{Type: "pong", ServerTime: time.Now().UTC().Format(time.RFC3339)})
	case "pong":
	case "chat":
		ctl.handleChat(uid, conn, data, logger)
	default:
		logger.Warn().Str("type", env.Type).Msg("unknown live message")
	}
}

func (ctl *SignalWSController) handleChat(uid domain.UserID, conn *WsSignalConn, data []byte, logger zerolog.Logger) {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(uid) {
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "rate_limited",
		})
		return
	}
	err := ctl.Orch.Chat(uid, data)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrNotConnected):
		logger.Debug().Msg("chat recipient not connected, dropped")
	case errors.Is(err, core.ErrMalformedMessage):
		logger.Warn().Err(err).Msg("bad chat payload")
		ctl.sendJSON(conn, map[string]any{
			"type":  "error",
			"error": "bad_payload",
		})
	default:
		logger.Warn().Err(err).Msg("chat not delivered")
	}
}
