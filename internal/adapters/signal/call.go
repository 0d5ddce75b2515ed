package signal

import (
	"context"
	"net/http"

	"github.com/dkeye/farmpulse/internal/app"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HandleCall upgrades a signaling socket for one (session, role) slot.
func (ctl *SignalWSController) HandleCall(ctx context.Context, c *gin.Context) {
	id := domain.CallID(c.Param("session_id"))
	role, err := domain.ParseRole(c.Param("role"))
	if err != nil || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrInvalidRole.Error()})
		return
	}

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer)
	logger := log.With().Str("module", "signal").Str("session", string(id)).Str("role", string(role)).Logger()
	logger.Info().Msg("signaling connection")

	if prev := ctl.Orch.JoinCall(id, role, conn); prev != nil {
		logger.Info().Msg("replacing previous connection")
		prev.Close()
	}

	go ctl.writePump(ctx, conn, logger)
	go ctl.readPump(ctx, conn, logger,
		func(data []byte) bool {
			outcome, _ := ctl.Orch.OnSignal(id, role, data)
			return outcome != app.Hangup
		},
		func() { ctl.Orch.LeaveCall(id, role, conn) },
	)
}
