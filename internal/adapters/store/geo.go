package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	eventsKeyPrefix = "outbreak:events:"
	timesKeyPrefix  = "outbreak:times:"
	farmersKey      = "geo:farmers"
)

// RedisGeo keeps outbreak events and farmer positions in Redis GEO sets.
// Each event is a ulid member of a per-label GEO set, mirrored by a sorted
// set scored with the event's unix time so the count can honor a window.
type RedisGeo struct {
	rdb       *redis.Client
	retention time.Duration
	now       func() time.Time
}

func NewRedisGeo(rdb *redis.Client, retention time.Duration) *RedisGeo {
	return &RedisGeo{rdb: rdb, retention: retention, now: time.Now}
}

// OpenRedis parses url and pings the server.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (g *RedisGeo) RecordEvent(ctx context.Context, ev domain.OutbreakEvent) error {
	at := ev.ReportedAt
	if at.IsZero() {
		at = g.now()
	}
	member := ulid.Make().String()
	events := eventsKeyPrefix + ev.DiseaseLabel
	times := timesKeyPrefix + ev.DiseaseLabel

	_, err := g.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.GeoAdd(ctx, events, &redis.GeoLocation{
			Name:      member,
			Longitude: ev.Location.Lng,
			Latitude:  ev.Location.Lat,
		})
		p.ZAdd(ctx, times, redis.Z{Score: float64(at.Unix()), Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	if err := g.prune(ctx, ev.DiseaseLabel); err != nil {
		log.Warn().Err(err).Str("module", "store.geo").Str("disease", ev.DiseaseLabel).Msg("prune failed")
	}
	return nil
}

// prune drops events older than the retention period from both sets.
func (g *RedisGeo) prune(ctx context.Context, label string) error {
	if g.retention <= 0 {
		return nil
	}
	times := timesKeyPrefix + label
	cutoff := g.now().Add(-g.retention).Unix()
	old, err := g.rdb.ZRangeByScore(ctx, times, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil || len(old) == 0 {
		return err
	}
	members := make([]any, len(old))
	for i, m := range old {
		members[i] = m
	}
	_, err = g.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, eventsKeyPrefix+label, members...)
		p.ZRem(ctx, times, members...)
		return nil
	})
	return err
}

// CountNearby counts events of label within radiusKm of at reported at or
// after since.
func (g *RedisGeo) CountNearby(ctx context.Context, label string, at domain.Point, radiusKm float64, since time.Time) (int, error) {
	near, err := g.rdb.GeoSearch(ctx, eventsKeyPrefix+label, &redis.GeoSearchQuery{
		Longitude:  at.Lng,
		Latitude:   at.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("geo search: %w", err)
	}
	if len(near) == 0 {
		return 0, nil
	}
	scores, err := g.rdb.ZMScore(ctx, timesKeyPrefix+label, near...).Result()
	if err != nil {
		return 0, fmt.Errorf("event times: %w", err)
	}
	floor := float64(since.Unix())
	n := 0
	for _, s := range scores {
		if s >= floor {
			n++
		}
	}
	return n, nil
}

func (g *RedisGeo) FarmersNear(ctx context.Context, at domain.Point, radiusKm float64) ([]domain.UserID, error) {
	ids, err := g.rdb.GeoSearch(ctx, farmersKey, &redis.GeoSearchQuery{
		Longitude:  at.Lng,
		Latitude:   at.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("farmers near: %w", err)
	}
	out := make([]domain.UserID, len(ids))
	for i, id := range ids {
		out[i] = domain.UserID(id)
	}
	return out, nil
}

func (g *RedisGeo) SetFarmerLocation(ctx context.Context, id domain.UserID, at domain.Point) error {
	if err := at.Validate(); err != nil {
		return err
	}
	err := g.rdb.GeoAdd(ctx, farmersKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: at.Lng,
		Latitude:  at.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("set farmer location: %w", err)
	}
	return nil
}
