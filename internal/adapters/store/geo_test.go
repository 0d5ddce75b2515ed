package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Redis tests need a disposable server: FARMPULSE_TEST_REDIS_URL=redis://localhost:6379/15
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("FARMPULSE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FARMPULSE_TEST_REDIS_URL not set")
	}
	rdb, err := OpenRedis(context.Background(), url)
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// uniqueLabel keeps parallel runs from sharing keys.
func uniqueLabel(t *testing.T, rdb *redis.Client) string {
	label := "test-" + ulid.Make().String()
	t.Cleanup(func() {
		rdb.Del(context.Background(), eventsKeyPrefix+label, timesKeyPrefix+label)
	})
	return label
}

func TestRedisGeo_CountNearby(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	g := NewRedisGeo(rdb, 0)
	label := uniqueLabel(t, rdb)

	now := time.Now()
	nairobi := domain.Point{Lng: 36.8219, Lat: -1.2921}
	thika := domain.Point{Lng: 37.0693, Lat: -1.0333}   // ~40km
	mombasa := domain.Point{Lng: 39.6682, Lat: -4.0435} // ~440km

	for _, ev := range []domain.OutbreakEvent{
		{DiseaseLabel: label, Location: nairobi, ReportedAt: now},
		{DiseaseLabel: label, Location: thika, ReportedAt: now},
		{DiseaseLabel: label, Location: mombasa, ReportedAt: now},
		{DiseaseLabel: label, Location: nairobi, ReportedAt: now.Add(-200 * time.Hour)},
	} {
		if err := g.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err := g.CountNearby(ctx, label, nairobi, 50, now.Add(-168*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 recent events within 50km, got %d", n)
	}

	n, _ = g.CountNearby(ctx, label, nairobi, 50, time.Time{})
	if n != 3 {
		t.Errorf("expected 3 events within 50km without window, got %d", n)
	}
}

func TestRedisGeo_PrunesBeyondRetention(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	g := NewRedisGeo(rdb, 24*time.Hour)
	label := uniqueLabel(t, rdb)
	at := domain.Point{Lng: 10, Lat: 10}

	_ = g.RecordEvent(ctx, domain.OutbreakEvent{DiseaseLabel: label, Location: at, ReportedAt: time.Now().Add(-48 * time.Hour)})
	_ = g.RecordEvent(ctx, domain.OutbreakEvent{DiseaseLabel: label, Location: at, ReportedAt: time.Now()})

	if n := rdb.ZCard(ctx, eventsKeyPrefix+label).Val(); n != 1 {
		t.Errorf("expected 1 event after pruning, got %d", n)
	}
}

func TestRedisGeo_FarmersNear(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()
	g := NewRedisGeo(rdb, 0)
	near := domain.UserID("test-farmer-" + ulid.Make().String())
	far := domain.UserID("test-farmer-" + ulid.Make().String())
	t.Cleanup(func() { rdb.ZRem(context.Background(), farmersKey, string(near), string(far)) })

	if err := g.SetFarmerLocation(ctx, near, domain.Point{Lng: 36.83, Lat: -1.29}); err != nil {
		t.Fatal(err)
	}
	if err := g.SetFarmerLocation(ctx, far, domain.Point{Lng: 39.66, Lat: -4.04}); err != nil {
		t.Fatal(err)
	}

	ids, err := g.FarmersNear(ctx, domain.Point{Lng: 36.82, Lat: -1.29}, 50)
	if err != nil {
		t.Fatal(err)
	}
	found := map[domain.UserID]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[near] || found[far] {
		t.Errorf("unexpected farmers %v", ids)
	}

	if err := g.SetFarmerLocation(ctx, near, domain.Point{Lng: 0, Lat: 89}); err == nil {
		t.Error("out-of-range point must be rejected")
	}
}
