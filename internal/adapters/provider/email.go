// Package provider holds the external delivery channels of a notification.
package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/dkeye/farmpulse/internal/config"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoEmail   = errors.New("user has no email address")
	ErrNoPhone   = errors.New("user has no phone number")
	ErrNotConfig = errors.New("provider not configured")
)

var emailBody = template.Must(template.New("email").Parse(`<html>
  <body>
    <h2>{{.Title}}</h2>
    <p>{{.Body}}</p>
    <hr>
    <p>FarmPulse AI - Agricultural Health Platform</p>
  </body>
</html>
`))

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender sends HTML mail. smtp.SendMail upgrades to STARTTLS when the
// server offers it.
type SMTPSender struct {
	cfg  config.SMTPConfig
	send sendMailFunc
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) SendEmail(ctx context.Context, to *domain.User, subject, body string) error {
	if s.cfg.User == "" || s.cfg.Password == "" {
		return ErrNotConfig
	}
	if to.Email == "" {
		return ErrNoEmail
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := s.compose(to.Email, subject, body)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	if err := s.send(addr, auth, s.cfg.From, []string{to.Email}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Info().Str("module", "provider.email").Str("user", string(to.ID)).Msg("email sent")
	return nil
}

func (s *SMTPSender) compose(to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer
	// header injection guard
	subject = strings.NewReplacer("\r", " ", "\n", " ").Replace(subject)
	fmt.Fprintf(&buf, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	if err := emailBody.Execute(&buf, struct{ Title, Body string }{subject, body}); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}
	return buf.Bytes(), nil
}
