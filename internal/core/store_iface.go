package core

//go:generate mockgen -destination=mocks/mocks.go -package=mocks github.com/dkeye/farmpulse/internal/core UserFinder,GeoIndex,EmailSender,SMSSender,PushSender,Verifier

import (
	"context"
	"time"

	"github.com/dkeye/farmpulse/internal/domain"
)

// UserFinder resolves contact details for outbound channels.
type UserFinder interface {
	FindUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// UserStore is the user part of the document store.
type UserStore interface {
	UserFinder
	UpsertUser(ctx context.Context, u *domain.User) error
	ListUsersByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error)
}

// ReportStore is the report part of the document store.
type ReportStore interface {
	FindReport(ctx context.Context, id domain.ReportID) (*domain.Report, error)
	InsertReport(ctx context.Context, r *domain.Report) error
}

// CallStore persists call records. Live signaling state is never stored.
type CallStore interface {
	InsertCall(ctx context.Context, rec *domain.CallRecord) error
	FindCall(ctx context.Context, id domain.CallID) (*domain.CallRecord, error)
	JoinCall(ctx context.Context, id domain.CallID, vet domain.UserID) error
	EndCall(ctx context.Context, id domain.CallID, end time.Time, notes string) (*domain.CallRecord, error)
	ActiveCalls(ctx context.Context, limit int) ([]domain.CallRecord, error)
}

// GeoIndex answers the outbreak trigger's spatial questions.
type GeoIndex interface {
	RecordEvent(ctx context.Context, ev domain.OutbreakEvent) error
	CountNearby(ctx context.Context, label string, at domain.Point, radiusKm float64, since time.Time) (int, error)
	FarmersNear(ctx context.Context, at domain.Point, radiusKm float64) ([]domain.UserID, error)
	SetFarmerLocation(ctx context.Context, id domain.UserID, at domain.Point) error
}
