// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 36
	MaxFullNameLen = 128
)

var (
	ErrFullNameTooLong = errors.New("full name too long")
	ErrFullNameEmpty   = errors.New("full name empty")
	ErrEmailEmpty      = errors.New("email empty")
	ErrUnknownUserRole = errors.New("unknown user role")
)

type UserID string

// UserRole is the account role. Call roles are a narrower set, see Role.
type UserRole string

const (
	UserRoleFarmer UserRole = "farmer"
	UserRoleVet    UserRole = "vet"
	UserRoleAdmin  UserRole = "admin"
)

func ParseUserRole(s string) (UserRole, error) {
	switch r := UserRole(strings.ToLower(s)); r {
	case UserRoleFarmer, UserRoleVet, UserRoleAdmin:
		return r, nil
	}
	return "", ErrUnknownUserRole
}

type User struct {
	ID        UserID    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      UserRole  `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	Location  *Point    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(email, fullName string, role UserRole) (*User, error) {
	if email == "" {
		return nil, ErrEmailEmpty
	}
	if len(fullName) == 0 {
		return nil, ErrFullNameEmpty
	}
	if len(fullName) > MaxFullNameLen {
		return nil, ErrFullNameTooLong
	}
	if _, err := ParseUserRole(string(role)); err != nil {
		return nil, err
	}
	return &User{
		ID:        UserID(uuid.NewString()),
		Email:     email,
		FullName:  fullName,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Identity is what a verified token resolves to.
type Identity struct {
	ID   UserID   `json:"id"`
	Role UserRole `json:"role"`
}
