package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/dkeye/farmpulse/internal/adapters/auth"
	"github.com/dkeye/farmpulse/internal/app/outbreak"
	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const activeSessionsLimit = 100

type CreateSessionRequest struct {
	ReportID domain.ReportID `json:"report_id"`
}

type EndSessionRequest struct {
	Notes string `json:"notes"`
}

type OutbreakEventRequest struct {
	ReportID     domain.ReportID `json:"report_id"`
	DiseaseLabel string          `json:"disease_label"`
	Location     *domain.Point   `json:"location"`
	ReportedAt   time.Time       `json:"reported_at"`
}

type NotificationRequest struct {
	UserID   domain.UserID  `json:"user_id"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Channels []string       `json:"channels"`
	Data     map[string]any `json:"data"`
}

type deliveryView struct {
	Channel   domain.Channel `json:"channel"`
	Delivered bool           `json:"delivered"`
	Error     string         `json:"error,omitempty"`
}

type newSessionFrame struct {
	Type      string          `json:"type"`
	SessionID domain.CallID   `json:"session_id"`
	ReportID  domain.ReportID `json:"report_id"`
	FarmerID  domain.UserID   `json:"farmer_id"`
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (a *api) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ReportID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid report_id"})
		return
	}
	who, _ := auth.IdentityFrom(c)

	report, err := a.deps.Reports.FindReport(c.Request.Context(), req.ReportID)
	if err != nil {
		fail(c, err)
		return
	}
	if who.Role == domain.UserRoleFarmer && report.FarmerID != who.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "report belongs to another farmer"})
		return
	}

	rec := &domain.CallRecord{ReportID: report.ID, FarmerID: report.FarmerID, CallStart: a.now().UTC()}
	if err := a.deps.Calls.InsertCall(c.Request.Context(), rec); err != nil {
		fail(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("session", string(rec.ID)).Str("report", string(rec.ReportID)).Msg("call record created")

	if _, err := a.deps.Orch.BroadcastToRole(c.Request.Context(), domain.UserRoleVet, newSessionFrame{
		Type:      "new_session",
		SessionID: rec.ID,
		ReportID:  rec.ReportID,
		FarmerID:  rec.FarmerID,
	}); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("session", string(rec.ID)).Msg("new_session broadcast failed")
	}
	c.JSON(http.StatusCreated, rec)
}

func (a *api) activeSessions(c *gin.Context) {
	recs, err := a.deps.Calls.ActiveCalls(c.Request.Context(), activeSessionsLimit)
	if err != nil {
		fail(c, err)
		return
	}
	if recs == nil {
		recs = []domain.CallRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

func (a *api) getSession(c *gin.Context) {
	rec, err := a.deps.Calls.FindCall(c.Request.Context(), domain.CallID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// liveSession reports the in-memory signaling state, which is independent
// of the persisted record.
func (a *api) liveSession(c *gin.Context) {
	info, ok := a.deps.Orch.Sessions.Snapshot(domain.CallID(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (a *api) joinSession(c *gin.Context) {
	id := domain.CallID(c.Param("id"))
	who, _ := auth.IdentityFrom(c)
	if err := a.deps.Calls.JoinCall(c.Request.Context(), id, who.ID); err != nil {
		fail(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("session", string(id)).Str("vet", string(who.ID)).Msg("vet joined call")
	c.JSON(http.StatusOK, gin.H{"session_id": id, "vet_id": who.ID})
}

// endSession closes the record and drops whatever signaling sockets are
// still attached to it.
func (a *api) endSession(c *gin.Context) {
	id := domain.CallID(c.Param("id"))
	var req EndSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
	}

	rec, err := a.deps.Calls.EndCall(c.Request.Context(), id, a.now().UTC(), req.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	conns := a.deps.Orch.EvictCall(id)
	for _, conn := range conns {
		conn.Close()
	}
	log.Info().Str("module", "adapters.http").Str("session", string(id)).Int("duration", rec.DurationSeconds).Int("evicted", len(conns)).Msg("call ended")
	c.JSON(http.StatusOK, gin.H{"session_id": id, "duration_seconds": rec.DurationSeconds})
}

func (a *api) outbreakEvent(c *gin.Context) {
	trigger := a.deps.Orch.Outbreak
	if trigger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbreak detection disabled"})
		return
	}
	var req OutbreakEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	ev := domain.OutbreakEvent{DiseaseLabel: req.DiseaseLabel, ReportedAt: req.ReportedAt}
	if req.Location != nil {
		ev.Location = *req.Location
	}
	if req.ReportID != "" {
		report, err := a.deps.Reports.FindReport(c.Request.Context(), req.ReportID)
		if err != nil {
			fail(c, err)
			return
		}
		if report.Location == nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "report has no location"})
			return
		}
		ev.DiseaseLabel, ev.Location = report.DiseaseLabel, *report.Location
		if ev.ReportedAt.IsZero() {
			ev.ReportedAt = report.CreatedAt
		}
	} else if req.Location == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location or report_id required"})
		return
	}

	alert, err := trigger.Observe(c.Request.Context(), ev)
	switch {
	case errors.Is(err, outbreak.ErrNoLabel), errors.Is(err, domain.ErrPointOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		fail(c, err)
	default:
		c.JSON(http.StatusOK, alert)
	}
}

func (a *api) notify(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and title are required"})
		return
	}
	if len(req.Channels) == 0 {
		req.Channels = []string{string(domain.ChannelLive)}
	}
	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, s := range req.Channels {
		ch, err := domain.ParseChannel(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		channels = append(channels, ch)
	}

	rep := a.deps.Orch.Notifier.Notify(c.Request.Context(), domain.Notification{
		UserID:   req.UserID,
		Title:    req.Title,
		Body:     req.Message,
		Data:     req.Data,
		Channels: channels,
	})
	out := make([]deliveryView, 0, len(rep.Deliveries))
	for _, d := range rep.Deliveries {
		v := deliveryView{Channel: d.Channel, Delivered: d.Err == nil}
		if d.Err != nil {
			v.Error = d.Err.Error()
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"id": rep.NotificationID, "user_id": rep.UserID, "deliveries": out})
}

func (a *api) liveState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connections": a.deps.Orch.Registry.Keys(),
		"sessions":    a.deps.Orch.Sessions.List(),
	})
}

func (a *api) kickUser(c *gin.Context) {
	uid := domain.UserID(c.Param("user_id"))
	if !a.deps.Orch.KickUser(uid) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not connected"})
		return
	}
	c.Status(http.StatusNoContent)
}
