package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const notificationsPrefix = "notifications:"

// FrameSender is the slice of the registry the bridge needs.
type FrameSender interface {
	Send(key core.ConnKey, f core.Frame) error
}

// Bridge delivers notifications published by other processes on
// notifications:<user_id> to the user's live socket on this instance.
type Bridge struct {
	rdb  *redis.Client
	live FrameSender
}

func NewBridge(rdb *redis.Client, live FrameSender) *Bridge {
	return &Bridge{rdb: rdb, live: live}
}

// Publish hands a JSON payload to whichever instance holds the user's
// socket. The notifier uses it for users not connected locally.
func (b *Bridge) Publish(ctx context.Context, user domain.UserID, payload []byte) error {
	if err := b.rdb.Publish(ctx, notificationsPrefix+string(user), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Run blocks until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, notificationsPrefix+"*")
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	log.Info().Str("module", "store.bridge").Msg("listening for notifications")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliver(msg)
		}
	}
}

func (b *Bridge) deliver(msg *redis.Message) {
	user := strings.TrimPrefix(msg.Channel, notificationsPrefix)
	if user == "" {
		return
	}
	err := b.live.Send(core.UserKey(domain.UserID(user)), core.Frame(msg.Payload))
	if err != nil {
		log.Debug().Err(err).Str("module", "store.bridge").Str("user", user).Msg("notification not delivered")
		return
	}
	log.Debug().Str("module", "store.bridge").Str("user", user).Msg("notification delivered")
}
