package outbreak

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/farmpulse/internal/app"
	"github.com/dkeye/farmpulse/internal/app/notify"
	"github.com/dkeye/farmpulse/internal/core/mocks"
	"github.com/dkeye/farmpulse/internal/domain"
	"go.uber.org/mock/gomock"
)

// memIndex counts every recorded event of a label regardless of position.
type memIndex struct {
	mu      sync.Mutex
	events  map[string][]time.Time
	farmers []domain.UserID
}

func (m *memIndex) RecordEvent(_ context.Context, ev domain.OutbreakEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = map[string][]time.Time{}
	}
	m.events[ev.DiseaseLabel] = append(m.events[ev.DiseaseLabel], ev.ReportedAt)
	return nil
}

func (m *memIndex) CountNearby(_ context.Context, label string, _ domain.Point, _ float64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, at := range m.events[label] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memIndex) FarmersNear(context.Context, domain.Point, float64) ([]domain.UserID, error) {
	return m.farmers, nil
}

func (m *memIndex) SetFarmerLocation(context.Context, domain.UserID, domain.Point) error {
	return nil
}

type capture struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (c *capture) Notify(_ context.Context, msg domain.Notification) notify.Report {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return notify.Report{UserID: msg.UserID, Deliveries: []notify.Delivery{{Channel: domain.ChannelLive}}}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var (
	now     = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	nairobi = domain.Point{Lng: 36.82, Lat: -1.29}
	policy  = app.OutbreakPolicy{Threshold: 5, RadiusKm: 50, Window: 168 * time.Hour}
)

func newTrigger(idx *memIndex, n Notifier) *Trigger {
	return &Trigger{Index: idx, Notify: n, Policy: policy, Workers: 2, Now: func() time.Time { return now }}
}

func TestTrigger_FifthEventAlertsEveryFarmer(t *testing.T) {
	idx := &memIndex{farmers: []domain.UserID{"f1", "f2", "f3"}}
	sink := &capture{}
	tr := newTrigger(idx, sink)
	ev := domain.OutbreakEvent{DiseaseLabel: "Late Blight", Location: nairobi, ReportedAt: now}

	for i := 1; i <= 4; i++ {
		alert, err := tr.Observe(context.Background(), ev)
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if alert.Raised || alert.Count != i {
			t.Fatalf("event %d: unexpected alert %+v", i, alert)
		}
	}
	if sink.count() != 0 {
		t.Fatalf("no alert expected below threshold, got %d", sink.count())
	}

	alert, err := tr.Observe(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if !alert.Raised || alert.Count != 5 || alert.Farmers != 3 || alert.Delivered != 3 {
		t.Errorf("unexpected alert %+v", alert)
	}
	if sink.count() != 3 {
		t.Fatalf("expected 3 notifications, got %d", sink.count())
	}

	msg := sink.sent[0]
	want := "Outbreak Alert: Late Blight detected in your area. 5 cases reported within 50km. " +
		"Please monitor your crops/animals and consult a veterinarian if you notice symptoms."
	if msg.Body != want {
		t.Errorf("body:\n got %q\nwant %q", msg.Body, want)
	}
	if len(msg.Channels) != 2 || msg.Channels[0] != domain.ChannelLive || msg.Channels[1] != domain.ChannelSMS {
		t.Errorf("unexpected channels %v", msg.Channels)
	}
	if msg.Data["alert_type"] != "outbreak" || msg.Data["affected_count"] != 5 {
		t.Errorf("unexpected data %v", msg.Data)
	}
}

func TestTrigger_RepeatedCrossingAlertsAgain(t *testing.T) {
	idx := &memIndex{farmers: []domain.UserID{"f1"}}
	sink := &capture{}
	tr := newTrigger(idx, sink)
	ev := domain.OutbreakEvent{DiseaseLabel: "Mastitis", Location: nairobi, ReportedAt: now}

	for i := 0; i < 6; i++ {
		if _, err := tr.Observe(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	if sink.count() != 2 {
		t.Errorf("expected alerts on the 5th and 6th event, got %d", sink.count())
	}
}

func TestTrigger_OldEventsOutsideWindow(t *testing.T) {
	idx := &memIndex{farmers: []domain.UserID{"f1"}}
	sink := &capture{}
	tr := newTrigger(idx, sink)

	old := domain.OutbreakEvent{DiseaseLabel: "Pneumonia", Location: nairobi, ReportedAt: now.Add(-200 * time.Hour)}
	for i := 0; i < 4; i++ {
		if _, err := tr.Observe(context.Background(), old); err != nil {
			t.Fatal(err)
		}
	}
	alert, err := tr.Observe(context.Background(), domain.OutbreakEvent{DiseaseLabel: "Pneumonia", Location: nairobi, ReportedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if alert.Raised || alert.Count != 1 {
		t.Errorf("stale events must not count: %+v", alert)
	}
}

func TestTrigger_LabelsAreIndependent(t *testing.T) {
	idx := &memIndex{farmers: []domain.UserID{"f1"}}
	sink := &capture{}
	tr := newTrigger(idx, sink)

	for _, label := range []string{"A", "B", "C", "D", "A"} {
		if _, err := tr.Observe(context.Background(), domain.OutbreakEvent{DiseaseLabel: label, Location: nairobi}); err != nil {
			t.Fatal(err)
		}
	}
	if sink.count() != 0 {
		t.Error("mixed labels must not add up")
	}
}

func TestTrigger_RejectsBadEvents(t *testing.T) {
	tr := newTrigger(&memIndex{}, &capture{})

	if _, err := tr.Observe(context.Background(), domain.OutbreakEvent{Location: nairobi}); !errors.Is(err, ErrNoLabel) {
		t.Errorf("expected ErrNoLabel, got %v", err)
	}
	bad := domain.OutbreakEvent{DiseaseLabel: "x", Location: domain.Point{Lng: 200, Lat: 0}}
	if _, err := tr.Observe(context.Background(), bad); !errors.Is(err, domain.ErrPointOutOfRange) {
		t.Errorf("expected ErrPointOutOfRange, got %v", err)
	}
}

func TestTrigger_EvaluateQueriesWindowAndRadius(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := mocks.NewMockGeoIndex(ctrl)
	sink := &capture{}

	idx.EXPECT().
		CountNearby(gomock.Any(), "Late Blight", nairobi, 50.0, now.Add(-168*time.Hour)).
		Return(0, errors.New("redis down"))

	tr := &Trigger{Index: idx, Notify: sink, Policy: policy, Now: func() time.Time { return now }}
	if _, err := tr.Evaluate(context.Background(), domain.OutbreakEvent{DiseaseLabel: "Late Blight", Location: nairobi}); err == nil {
		t.Error("expected index error to surface")
	}
	if sink.count() != 0 {
		t.Error("no notification on index failure")
	}
}
