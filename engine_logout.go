package authkit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Logout describes the logout operation and its observable behavior.
//
// Logout waits for [Engine.Init], then signs out. The backend is notified
// best-effort and never through the refresh path; its failure is logged,
// counted, and audited but does not stop local cleanup. The credential
// store, refresh cookie, session, and permission cache are always cleared.
// Only a credential store failure is returned, after cleanup has run.
//
// If ctx ends while Init is still resolving, Logout returns ctx's error and
// the sign-out is applied as soon as resolution finishes, so a late
// resolution never leaves the session signed in. Until the next sign-in,
// a 401 no longer triggers credential recovery.
func (e *Engine) Logout(ctx context.Context) error {
	if _, err := e.Init(ctx); err != nil {
		if !errors.Is(err, ctx.Err()) {
			return err
		}
		e.pendingSignOut.Store(true)
		select {
		case <-e.state.Resolved():
			e.applyPendingSignOut(context.WithoutCancel(ctx))
		default:
			e.log.Info("sign-out deferred until session resolution finishes")
		}
		return err
	}
	return e.signOut(ctx)
}

// applyPendingSignOut runs a deferred sign-out at most once. Both Logout and
// resolution call it; whichever observes the pending flag first runs it.
func (e *Engine) applyPendingSignOut(ctx context.Context) {
	if !e.pendingSignOut.Swap(false) {
		return
	}
	if err := e.signOut(ctx); err != nil {
		e.log.Warn("deferred sign-out incomplete", zap.Error(err))
	}
}

func (e *Engine) signOut(ctx context.Context) error {
	prev := e.state.Snapshot().Identity()
	e.signedOut.Store(true)
	e.gateway.Supersede()

	if err := e.client.Logout(ctx); err != nil {
		e.metricInc(MetricLogoutNotifyFailure)
		e.log.Warn("logout notification failed", zap.Error(err))
		e.emitAudit(ctx, auditEventLogoutNotifyFailure, false, prev, "", err, nil)
	}

	var storeErr error
	if err := e.store.Clear(context.WithoutCancel(ctx)); err != nil {
		storeErr = fmt.Errorf("%w: %v", ErrCredentialStore, err)
		e.log.Warn("credential store clear failed", zap.Error(err))
	}
	if !e.client.ForgetCookies() && e.client.OwnsCookies() {
		e.log.Warn("refresh cookie could not be forgotten")
	}
	if _, err := e.state.SignOut(); err != nil {
		e.log.Error("sign-out transition rejected", zap.Error(err))
	}
	e.cache.Reset()

	e.metricInc(MetricLogout)
	e.log.Info("signed out", zap.String("role", prev.Role.String()))
	e.emitAudit(ctx, auditEventLogout, storeErr == nil, prev, "", storeErr, nil)
	return storeErr
}
