// Package notify delivers one notification over several independent
// channels. Delivery is best effort and at most once per channel.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LiveSender is the registry side of live delivery.
type LiveSender interface {
	SendJSON(key core.ConnKey, v any) error
}

// RemotePublisher hands a live frame to whichever instance holds the
// user's socket.
type RemotePublisher interface {
	Publish(ctx context.Context, user domain.UserID, payload []byte) error
}

// Notifier fans a notification out. Nil providers are reported as
// unconfigured for their channel only.
type Notifier struct {
	Live LiveSender
	// Remote, when set, receives live frames for users with no socket on
	// this instance.
	Remote RemotePublisher
	Users  core.UserFinder
	Email core.EmailSender
	SMS   core.SMSSender
	Push  core.PushSender

	Now func() time.Time
}

// Delivery is the result for one requested channel.
type Delivery struct {
	Channel domain.Channel
	Err     error
}

// Report lists one Delivery per requested channel, in request order.
type Report struct {
	NotificationID string
	UserID         domain.UserID
	Deliveries     []Delivery
}

func (r Report) Err(ch domain.Channel) error {
	for _, d := range r.Deliveries {
		if d.Channel == ch {
			return d.Err
		}
	}
	return nil
}

func (r Report) Delivered(ch domain.Channel) bool {
	for _, d := range r.Deliveries {
		if d.Channel == ch {
			return d.Err == nil
		}
	}
	return false
}

// DeliveredCount counts successful channels.
func (r Report) DeliveredCount() int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

type liveFrame struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) Report {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = n.now()
	}
	rep := Report{
		NotificationID: msg.ID,
		UserID:         msg.UserID,
		Deliveries:     make([]Delivery, 0, len(msg.Channels)),
	}
	logger := log.With().Str("module", "notify").Str("user", string(msg.UserID)).Str("notification", msg.ID).Logger()

	// Contact details are only needed for external channels.
	var (
		user     *domain.User
		userErr  error
		resolved bool
	)
	resolve := func() (*domain.User, error) {
		if !resolved {
			resolved = true
			user, userErr = n.findUser(ctx, msg.UserID)
		}
		return user, userErr
	}

	for _, ch := range msg.Channels {
		var err error
		switch ch {
		case domain.ChannelLive:
			err = n.live(ctx, msg.UserID, liveFrame{
				Type:      "notification",
				ID:        msg.ID,
				Title:     msg.Title,
				Message:   msg.Body,
				Data:      msg.Data,
				Timestamp: msg.SentAt.UTC().Format(time.RFC3339),
			})
		case domain.ChannelEmail, domain.ChannelSMS, domain.ChannelPush:
			err = n.external(ctx, ch, msg, resolve)
		default:
			err = fmt.Errorf("%w: %w: %q", core.ErrProviderFailure, domain.ErrUnknownChannel, ch)
		}
		rep.Deliveries = append(rep.Deliveries, Delivery{Channel: ch, Err: err})
		record(logger, ch, err)
	}
	return rep
}

// live prefers a local socket. Without one the frame is published once
// for other instances; a successful publish counts as delivered.
func (n *Notifier) live(ctx context.Context, uid domain.UserID, f liveFrame) error {
	err := n.Live.SendJSON(core.UserKey(uid), f)
	if n.Remote == nil || !errors.Is(err, core.ErrNotConnected) {
		return err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal live frame: %w", err)
	}
	if err := n.Remote.Publish(ctx, uid, b); err != nil {
		return fmt.Errorf("publish live frame: %w", err)
	}
	return nil
}

func (n *Notifier) external(ctx context.Context, ch domain.Channel, msg domain.Notification, resolve func() (*domain.User, error)) error {
	u, err := resolve()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrProviderFailure, ch, err)
	}
	switch ch {
	case domain.ChannelEmail:
		if n.Email == nil {
			err = core.ErrProviderUnavailable
		} else {
			err = n.Email.SendEmail(ctx, u, msg.Title, msg.Body)
		}
	case domain.ChannelSMS:
		if n.SMS == nil {
			err = core.ErrProviderUnavailable
		} else {
			err = n.SMS.SendSMS(ctx, u, msg.Body)
		}
	case domain.ChannelPush:
		if n.Push == nil {
			err = core.ErrProviderUnavailable
		} else {
			err = n.Push.SendPush(ctx, u, msg.Title, msg.Body, msg.Data)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrProviderFailure, ch, err)
	}
	return nil
}

func (n *Notifier) findUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if n.Users == nil {
		return nil, errors.New("no user store")
	}
	u, err := n.Users.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, core.ErrNotFound
	}
	return u, nil
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}
