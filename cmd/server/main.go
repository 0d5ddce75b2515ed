package main

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/farmpulse/internal/config"
)

func main() {
	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	serve := serveCmd()
	root := &cobra.Command{
		Use:          "farmpulse",
		Short:        "FarmPulse real-time relay: call signaling, live notifications, outbreak alerts",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, seedCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("exit")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}

// setupLogging keeps the console writer in debug mode and switches to JSON
// lines otherwise.
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
