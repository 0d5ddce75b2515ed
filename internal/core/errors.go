package core

import "errors"

var (
	// ErrNotConnected: target has no live connection. Callers treat it as a no-op.
	ErrNotConnected = errors.New("not connected")
	// ErrSendFailed: transport write failed and the entry was evicted.
	ErrSendFailed = errors.New("send failed")
	// ErrInvalidSession: relay message from a (session, role) not in the table.
	ErrInvalidSession = errors.New("invalid session")
	// ErrProviderFailure: an external delivery channel failed.
	ErrProviderFailure = errors.New("provider failure")
	// ErrMalformedMessage: inbound record is not a known message.
	ErrMalformedMessage = errors.New("malformed message")

	ErrNotFound            = errors.New("not found")
	ErrProviderUnavailable = errors.New("provider not configured")
	ErrInvalidToken        = errors.New("invalid token")
)
