// Package outbreak raises area alerts when same-label reports cluster.
package outbreak

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dkeye/farmpulse/internal/app"
	"github.com/dkeye/farmpulse/internal/app/notify"
	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/dkeye/farmpulse/internal/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

var ErrNoLabel = errors.New("event has no disease label")

// Alert channels are fixed: live push plus SMS for farmers in the field.
var alertChannels = []domain.Channel{domain.ChannelLive, domain.ChannelSMS}

type Notifier interface {
	Notify(ctx context.Context, msg domain.Notification) notify.Report
}

type Trigger struct {
	Index   core.GeoIndex
	Notify  Notifier
	Policy  app.OutbreakPolicy
	Workers int

	Now func() time.Time
}

// Alert is the outcome of one evaluation.
type Alert struct {
	Raised    bool    `json:"raised"`
	Disease   string  `json:"disease"`
	Count     int     `json:"affected_count"`
	RadiusKm  float64 `json:"radius_km"`
	Farmers   int     `json:"farmers"`
	Delivered int     `json:"delivered"`
}

// Observe records ev in the index and evaluates it. The recorded event
// counts towards the threshold.
func (t *Trigger) Observe(ctx context.Context, ev domain.OutbreakEvent) (Alert, error) {
	if ev.DiseaseLabel == "" {
		return Alert{}, ErrNoLabel
	}
	if err := ev.Location.Validate(); err != nil {
		return Alert{}, err
	}
	if ev.ReportedAt.IsZero() {
		ev.ReportedAt = t.now()
	}
	if err := t.Index.RecordEvent(ctx, ev); err != nil {
		return Alert{}, fmt.Errorf("record event: %w", err)
	}
	return t.Evaluate(ctx, ev)
}

// Evaluate counts recent nearby same-label events and, at or above the
// threshold, notifies every farmer inside the radius. Repeated crossings
// alert again.
func (t *Trigger) Evaluate(ctx context.Context, ev domain.OutbreakEvent) (Alert, error) {
	metrics.OutbreakEvaluations.Inc()
	alert := Alert{Disease: ev.DiseaseLabel, RadiusKm: t.Policy.RadiusKm}

	count, err := t.Index.CountNearby(ctx, ev.DiseaseLabel, ev.Location, t.Policy.RadiusKm, t.Policy.Since(t.now()))
	if err != nil {
		return alert, fmt.Errorf("count nearby: %w", err)
	}
	alert.Count = count
	if !t.Policy.Exceeded(count) {
		log.Debug().Str("module", "outbreak").Str("disease", ev.DiseaseLabel).Int("count", count).Int("threshold", t.Policy.Threshold).Msg("below threshold")
		return alert, nil
	}

	farmers, err := t.Index.FarmersNear(ctx, ev.Location, t.Policy.RadiusKm)
	if err != nil {
		return alert, fmt.Errorf("farmers near: %w", err)
	}
	alert.Raised = true
	alert.Farmers = len(farmers)
	metrics.OutbreakAlerts.WithLabelValues(ev.DiseaseLabel).Inc()
	log.Warn().Str("module", "outbreak").Str("disease", ev.DiseaseLabel).Int("count", count).Int("farmers", len(farmers)).Msg("outbreak detected")

	title := "Outbreak Alert: " + ev.DiseaseLabel
	body := fmt.Sprintf(
		"Outbreak Alert: %s detected in your area. %d cases reported within %gkm. "+
			"Please monitor your crops/animals and consult a veterinarian if you notice symptoms.",
		ev.DiseaseLabel, count, t.Policy.RadiusKm,
	)

	var delivered atomic.Int64
	p := pool.New().WithMaxGoroutines(t.workers())
	for _, farmer := range farmers {
		p.Go(func() {
			rep := t.Notify.Notify(ctx, domain.Notification{
				UserID:   farmer,
				Title:    title,
				Body:     body,
				Channels: alertChannels,
				Data: map[string]any{
					"alert_type":     "outbreak",
					"disease":        ev.DiseaseLabel,
					"affected_count": count,
					"radius_km":      t.Policy.RadiusKm,
				},
			})
			if rep.DeliveredCount() > 0 {
				delivered.Add(1)
			}
		})
	}
	p.Wait()

	alert.Delivered = int(delivered.Load())
	log.Info().Str("module", "outbreak").Str("disease", ev.DiseaseLabel).Int("farmers", alert.Farmers).Int("delivered", alert.Delivered).Msg("outbreak alerts sent")
	return alert, nil
}

func (t *Trigger) workers() int {
	if t.Workers > 0 {
		return t.Workers
	}
	return 1
}

func (t *Trigger) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}
