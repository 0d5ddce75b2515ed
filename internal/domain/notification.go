package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownChannel = errors.New("unknown notification channel")

// Channel is one delivery path of a notification.
type Channel string

const (
	ChannelLive  Channel = "live"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelLive, ChannelEmail, ChannelSMS, ChannelPush:
		return c, nil
	case "in_app":
		return ChannelLive, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Notification is ephemeral: it only exists for one dispatch attempt.
type Notification struct {
	ID       string         `json:"id"`
	UserID   UserID         `json:"user_id"`
	Title    string         `json:"title"`
	Body     string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	Channels []Channel      `json:"channels"`
	SentAt   time.Time      `json:"timestamp"`
}

// OutbreakEvent is a freshly classified report with a position.
type OutbreakEvent struct {
	DiseaseLabel string    `json:"disease_label"`
	Location     Point     `json:"location"`
	ReportedAt   time.Time `json:"reported_at"`
}
