package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dkeye/farmpulse/internal/config"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/rs/zerolog/log"
)

const pushQoS = 1

// MQTTPush publishes push notifications to <topic_prefix>/<user_id>; the
// device gateway subscribed there forwards them to handsets.
type MQTTPush struct {
	cfg    config.MQTTConfig
	client mqtt.Client
}

type pushPayload struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// ConnectMQTTPush dials the broker and keeps reconnecting in the background.
func ConnectMQTTPush(cfg config.MQTTConfig) (*MQTTPush, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("module", "provider.push").Str("broker", cfg.Broker).Msg("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("module", "provider.push").Str("broker", cfg.Broker).Msg("mqtt connection lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &MQTTPush{cfg: cfg, client: client}, nil
}

func (p *MQTTPush) Topic(user domain.UserID) string {
	return p.cfg.TopicPrefix + "/" + string(user)
}

func (p *MQTTPush) SendPush(ctx context.Context, to *domain.User, title, body string, data map[string]any) error {
	payload, err := json.Marshal(pushPayload{
		Title:     title,
		Message:   body,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal push: %w", err)
	}

	token := p.client.Publish(p.Topic(to.ID), pushQoS, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	log.Debug().Str("module", "provider.push").Str("user", string(to.ID)).Msg("push published")
	return nil
}

func (p *MQTTPush) Close() {
	p.client.Disconnect(250)
}
