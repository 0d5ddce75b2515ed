package notify

import (
	"errors"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/dkeye/farmpulse/internal/metrics"
	"github.com/rs/zerolog"
)

func record(logger zerolog.Logger, ch domain.Channel, err error) {
	switch {
	case err == nil:
		metrics.Deliveries.WithLabelValues(string(ch), "delivered").Inc()
		logger.Info().Str("channel", string(ch)).Msg("delivered")
	case errors.Is(err, core.ErrNotConnected):
		metrics.Deliveries.WithLabelValues(string(ch), "not_connected").Inc()
		logger.Debug().Str("channel", string(ch)).Msg("user not connected")
	default:
		metrics.Deliveries.WithLabelValues(string(ch), "failed").Inc()
		logger.Error().Err(err).Str("channel", string(ch)).Msg("delivery failed")
	}
}
