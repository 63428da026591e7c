package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/wareflow/authkit/session"
)

// HealthStatus is an on-demand view of the engine's dependencies and
// session. It carries no credential material.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
	// StoreError is the store failure text when StoreAvailable is false.
	StoreError string

	Session         Snapshot
	RefreshAttempts uint64
	PermissionLoads uint64
	AuditDropped    uint64
}

// Health describes the health operation and its observable behavior.
//
// Health reads the credential store once and reports its latency; an empty
// store counts as available. It never starts session resolution, so a
// caller can probe an engine whose Init has not run.
// Health does not mutate shared global state and can be used concurrently.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() || e.store == nil {
		return HealthStatus{Session: Snapshot{IsLoading: true}}
	}

	start := e.now()
	_, err := e.store.Load(ctx)
	latency := e.now().Sub(start)

	hs := HealthStatus{
		StoreAvailable:  err == nil || errors.Is(err, session.ErrNoCredential),
		StoreLatency:    latency,
		Session:         e.state.Snapshot(),
		RefreshAttempts: e.gateway.Attempts(),
		PermissionLoads: e.cache.Fetches(),
		AuditDropped:    e.AuditDropped(),
	}
	if !hs.StoreAvailable {
		hs.StoreError = err.Error()
	}
	return hs
}
