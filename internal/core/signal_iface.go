package core

import (
	"errors"

	"github.com/dkeye/farmpulse/internal/domain"
)

// Frame is a raw text payload (one JSON record).
type Frame []byte

// SignalConnection abstracts a live duplex transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. A non-nil error means the
	// transport can no longer accept writes.
	TrySend(Frame) error
	Close()
}

// ConnKey is the identity a connection is registered under.
type ConnKey string

func UserKey(id domain.UserID) ConnKey {
	return ConnKey("user:" + string(id))
}

func CallKey(id domain.CallID, role domain.Role) ConnKey {
	return ConnKey("call:" + string(id) + ":" + string(role))
}

var ErrBackpressure = errors.New("backpressure")
