package orch

import (
	"sync"

	"github.com/dkeye/farmpulse/internal/app"
	"github.com/dkeye/farmpulse/internal/app/notify"
	"github.com/dkeye/farmpulse/internal/app/outbreak"
	"github.com/dkeye/farmpulse/internal/core"
)

// Orchestrator glues the registry, the session table and the relay
// together for the transport adapters. It owns no transport resources.
type Orchestrator struct {
	Registry *app.Registry
	Sessions *app.Sessions
	Relay    *app.Relay
	Notifier *notify.Notifier
	Outbreak *outbreak.Trigger
	Users    core.UserStore

	// calls keeps the session table and the registry in step for
	// signaling slots. Held only for in-memory updates.
	calls sync.Mutex
}

func New(reg *app.Registry, sessions *app.Sessions) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Sessions: sessions,
		Relay:    app.NewRelay(reg, sessions),
	}
}
