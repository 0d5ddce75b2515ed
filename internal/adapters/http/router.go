package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/farmpulse/internal/adapters/auth"
	"github.com/dkeye/farmpulse/internal/adapters/signal"
	"github.com/dkeye/farmpulse/internal/app/orch"
	"github.com/dkeye/farmpulse/internal/config"
	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/dkeye/farmpulse/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Orch     *orch.Orchestrator
	Verifier core.Verifier
	Calls    core.CallStore
	Reports  core.ReportStore
}

type api struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(metricsMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("FarmPulseSessions", store))

	a := &api{cfg: cfg, deps: deps, now: time.Now}
	ctl := signal.NewSignalWSController(deps.Orch, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		SendBuffer:   cfg.SendBuffer,
		ChatLimit:    cfg.Chat.Limit,
		ChatInterval: cfg.Chat.Interval,
	})

	r.GET("/healthz", a.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	g := r.Group("/api")
	g.GET("/signaling/ice-servers", a.iceServers)

	authed := g.Group("", auth.Middleware(deps.Verifier))

	authed.GET("/ws/live", func(c *gin.Context) {
		who, _ := auth.IdentityFrom(c)
		ctl.HandleLive(ctx, c, who)
	})
	authed.GET("/ws/signaling/:session_id/:role", func(c *gin.Context) {
		ctl.HandleCall(ctx, c)
	})

	sig := authed.Group("/signaling/sessions")
	sig.POST("", auth.RequireRole(domain.UserRoleFarmer, domain.UserRoleAdmin), a.createSession)
	sig.GET("/active", auth.RequireRole(domain.UserRoleVet, domain.UserRoleAdmin), a.activeSessions)
	sig.GET("/:id", a.getSession)
	sig.GET("/:id/live", a.liveSession)
	sig.PATCH("/:id/join", auth.RequireRole(domain.UserRoleVet), a.joinSession)
	sig.POST("/:id/end", a.endSession)

	authed.POST("/outbreak/events", a.outbreakEvent)
	authed.POST("/notifications", auth.RequireRole(domain.UserRoleAdmin, domain.UserRoleVet), a.notify)

	admin := authed.Group("/admin", auth.RequireRole(domain.UserRoleAdmin))
	admin.GET("/live", a.liveState)
	admin.DELETE("/live/:user_id", a.kickUser)

	return r
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": a.deps.Orch.Registry.Len(),
		"sessions":    a.deps.Orch.Sessions.Len(),
	})
}

func (a *api) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ice_servers": a.cfg.WebRTCICEServers()})
}
