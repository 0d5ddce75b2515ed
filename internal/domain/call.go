package domain

import (
	"errors"
	"time"
)

var ErrInvalidRole = errors.New("role must be farmer or vet")

// CallID identifies a signaling session. It is supplied by the caller and
// correlates to a call record in the document store.
type CallID string

// Role is a participant slot inside a signaling session.
type Role string

const (
	RoleFarmer Role = "farmer"
	RoleVet    Role = "vet"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleFarmer, RoleVet:
		return r, nil
	}
	return "", ErrInvalidRole
}

// Peer returns the opposite slot.
func (r Role) Peer() Role {
	if r == RoleFarmer {
		return RoleVet
	}
	return RoleFarmer
}

// CallRecord is the persisted view of a video consultation.
// The live signaling state never lives here.
type CallRecord struct {
	ID              CallID     `json:"session_id"`
	ReportID        ReportID   `json:"report_id"`
	FarmerID        UserID     `json:"farmer_id"`
	VetID           UserID     `json:"vet_id,omitempty"`
	CallStart       time.Time  `json:"call_start"`
	CallEnd         *time.Time `json:"call_end,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	Active          bool       `json:"active"`
	Notes           string     `json:"session_notes,omitempty"`
}
