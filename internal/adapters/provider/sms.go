package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/farmpulse/internal/config"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/rs/zerolog/log"
)

// TwilioSender posts to the Twilio Messages API.
type TwilioSender struct {
	cfg    config.TwilioConfig
	client *http.Client
}

func NewTwilioSender(cfg config.TwilioConfig, client *http.Client) *TwilioSender {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	return &TwilioSender{cfg: cfg, client: client}
}

func (t *TwilioSender) SendSMS(ctx context.Context, to *domain.User, body string) error {
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return ErrNotConfig
	}
	if to.Phone == "" {
		return ErrNoPhone
	}

	form := url.Values{}
	form.Set("To", to.Phone)
	form.Set("From", t.cfg.FromNumber)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms rejected: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	log.Info().Str("module", "provider.sms").Str("user", string(to.ID)).Msg("sms sent")
	return nil
}
