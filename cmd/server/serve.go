package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/farmpulse/internal/adapters/auth"
	router "github.com/dkeye/farmpulse/internal/adapters/http"
	"github.com/dkeye/farmpulse/internal/adapters/provider"
	"github.com/dkeye/farmpulse/internal/adapters/store"
	"github.com/dkeye/farmpulse/internal/app"
	"github.com/dkeye/farmpulse/internal/app/notify"
	"github.com/dkeye/farmpulse/internal/app/orch"
	"github.com/dkeye/farmpulse/internal/app/outbreak"
	"github.com/dkeye/farmpulse/internal/config"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	db, err := store.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	reg := app.NewRegistry()
	o := orch.New(reg, app.NewSessions())
	o.Users = db

	notifier := &notify.Notifier{Live: reg, Users: db}
	if cfg.SMTP.User != "" {
		notifier.Email = provider.NewSMTPSender(cfg.SMTP)
	}
	if cfg.Twilio.AccountSID != "" {
		notifier.SMS = provider.NewTwilioSender(cfg.Twilio, nil)
	}
	if cfg.MQTT.Broker != "" {
		push, err := provider.ConnectMQTTPush(cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Str("module", "main").Msg("push disabled")
		} else {
			defer push.Close()
			notifier.Push = push
		}
	}
	o.Notifier = notifier

	var bridge *store.Bridge
	if cfg.RedisURL != "" {
		rdb, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		policy := app.OutbreakPolicy{
			Threshold: cfg.Outbreak.Threshold,
			RadiusKm:  cfg.Outbreak.RadiusKm,
			Window:    cfg.Outbreak.Window,
		}
		if err := policy.Validate(); err != nil {
			return err
		}
		o.Outbreak = &outbreak.Trigger{
			Index:   store.NewRedisGeo(rdb, cfg.Outbreak.Retention),
			Notify:  notifier,
			Policy:  policy,
			Workers: cfg.Outbreak.Workers,
		}
		bridge = store.NewBridge(rdb, reg)
		notifier.Remote = bridge
	} else {
		log.Warn().Str("module", "main").Msg("redis_url empty: outbreak detection and notification bridge disabled")
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:     o,
		Verifier: verifier,
		Calls:    db,
		Reports:  db,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("module", "main").Str("addr", addr).Msg("FarmPulse relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "main").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Str("module", "main").Msg("server forced to shutdown")
		}
		return nil
	})
	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}

	err = g.Wait()
	log.Info().Str("module", "main").Msg("server exited")
	return err
}
