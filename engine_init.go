package authkit

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/session"
)

// Init resolves the session once per engine.
//
// The first call starts resolution: a stored credential that decodes and has
// not expired authenticates directly; otherwise one refresh is attempted and
// its outcome decides between Authenticated and Anonymous. Every call,
// including concurrent ones, waits for that single resolution. A caller
// whose ctx ends stops waiting and gets ctx.Err() with the still-loading
// snapshot; resolution continues for everyone else.
//
// Failures during resolution are not errors: they end Anonymous.
func (e *Engine) Init(ctx context.Context) (Snapshot, error) {
	if !e.ready() {
		return Snapshot{IsLoading: true}, ErrNotReady
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e.initOnce.Do(func() {
		go e.resolve(context.WithoutCancel(ctx))
	})

	select {
	case <-e.state.Resolved():
		return e.state.Snapshot(), nil
	default:
	}

	select {
	case <-e.state.Resolved():
		return e.state.Snapshot(), nil
	case <-ctx.Done():
		return e.state.Snapshot(), ctx.Err()
	}
}

func (e *Engine) resolve(ctx context.Context) {
	if err := e.state.BeginResolve(); err != nil {
		e.log.Error("session resolution started twice", zap.Error(err))
		return
	}

	id := e.storedIdentity(ctx)
	source := "store"
	if id == nil {
		source = "refresh"
		if res, err := e.gateway.Refresh(ctx); err == nil {
			got := identityFrom(res.Claims)
			id = &got
		}
	}

	snap, err := e.state.FinishResolve(id)
	if err != nil {
		e.log.Error("session resolution finished twice", zap.Error(err))
		return
	}

	if snap.IsAuthenticated {
		e.metricInc(MetricInitAuthenticated)
	} else {
		e.metricInc(MetricInitAnonymous)
		source = "none"
	}
	e.log.Info("session resolved",
		zap.Bool("authenticated", snap.IsAuthenticated),
		zap.String("role", snap.Role.String()),
		zap.String("source", source),
	)
	e.emitAudit(ctx, auditEventInitResolved, snap.IsAuthenticated, snap.Identity(), "", nil, func() map[string]string {
		return map[string]string{"source": source}
	})
	e.applyPendingSignOut(ctx)
}

// storedIdentity returns the identity of a usable stored credential, or nil
// when it is absent, malformed, expired, or unreadable.
func (e *Engine) storedIdentity(ctx context.Context) *session.Identity {
	raw, err := e.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoCredential) {
			e.log.Warn("credential store read failed", zap.Error(err))
		}
		return nil
	}

	claims, err := jwt.Validate(raw, e.now())
	if err != nil {
		e.log.Debug("stored credential unusable", zap.Error(err))
		return nil
	}
	id := identityFrom(claims)
	return &id
}
