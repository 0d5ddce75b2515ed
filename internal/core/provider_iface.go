package core

import (
	"context"

	"github.com/dkeye/farmpulse/internal/domain"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to *domain.User, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to *domain.User, body string) error
}

type PushSender interface {
	SendPush(ctx context.Context, to *domain.User, title, body string, data map[string]any) error
}

// Verifier turns an opaque token into an identity.
type Verifier interface {
	Verify(token string) (domain.Identity, error)
}
