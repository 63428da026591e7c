package authkit

import (
	"context"

	"go.uber.org/zap"

	"github.com/wareflow/authkit/jwt"
)

// Refresh obtains a new credential through the shared refresh gateway and
// returns the resulting session. Concurrent calls share one backend
// request. A failed refresh signs the session out locally; a successful
// one after Logout reopens 401 recovery.
func (e *Engine) Refresh(ctx context.Context) (Snapshot, error) {
	if !e.ready() {
		return Snapshot{IsLoading: true}, ErrNotReady
	}
	if _, err := e.gateway.Refresh(ctx); err != nil {
		return e.state.Snapshot(), err
	}
	e.signedOut.Store(false)
	return e.state.Snapshot(), nil
}

// RefreshAttempts returns the number of backend refresh calls issued.
func (e *Engine) RefreshAttempts() uint64 {
	if !e.ready() {
		return 0
	}
	return e.gateway.Attempts()
}

// recoverCredential is the API client's 401 recovery path. It is closed
// after Logout, so a refresh cookie left in a caller-owned jar cannot sign
// the session back in.
func (e *Engine) recoverCredential(ctx context.Context) (string, error) {
	if e.signedOut.Load() {
		return "", ErrNotAuthenticated
	}
	res, err := e.gateway.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return res.Credential, nil
}

// The hooks below run inside the gateway's critical section, after the
// attempt was found current. They must not call back into the gateway.

func (e *Engine) onRefreshed(claims *jwt.Claims) {
	id := identityFrom(claims)
	prev := e.state.Snapshot()

	e.state.Refreshed(id)
	if prev.IsAuthenticated && prev.Identity() != id {
		e.cache.Reset()
	}

	e.metricInc(MetricRefreshSuccess)
	e.log.Debug("credential refreshed",
		zap.String("role", id.Role.String()),
		zap.Time("expires_at", claims.ExpiresAt),
	)
	e.emitAudit(context.Background(), auditEventRefreshSuccess, true, id, "", nil, nil)
}

func (e *Engine) onRefreshFailed(err error) {
	e.metricInc(MetricRefreshFailure)
	e.log.Info("credential refresh failed", zap.Error(err))

	prev := e.state.Snapshot()
	ctx := context.Background()
	if cerr := e.store.Clear(ctx); cerr != nil {
		e.log.Warn("credential store clear failed", zap.Error(cerr))
	}
	e.cache.Reset()

	e.emitAudit(ctx, auditEventRefreshFailure, false, prev.Identity(), "", err, nil)
	if e.state.Expire() {
		e.emitAudit(ctx, auditEventSessionExpired, true, prev.Identity(), "", err, nil)
	}
}

func (e *Engine) onRefreshSuperseded() {
	e.metricInc(MetricRefreshSuperseded)
	e.log.Debug("refresh result discarded")
}
