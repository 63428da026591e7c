package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/session"
)

// LoginWithEmail describes the loginwithemail operation and its observable behavior.
//
// LoginWithEmail waits for [Engine.Init], signs in with email and password,
// and installs the returned identity. Any rejection, including an unusable
// credential in the response, yields [ErrInvalidCredentials] and leaves the
// session and the credential store untouched.
func (e *Engine) LoginWithEmail(ctx context.Context, email, password string) error {
	return e.login(ctx, LoginEmail, email, password)
}

// LoginWithPhone is [Engine.LoginWithEmail] keyed by phone number.
func (e *Engine) LoginWithPhone(ctx context.Context, phone, password string) error {
	return e.login(ctx, LoginPhone, phone, password)
}

func (e *Engine) login(ctx context.Context, method LoginMethod, identifier, password string) error {
	if _, err := e.Init(ctx); err != nil {
		return err
	}

	identifier = strings.TrimSpace(identifier)

	var raw string
	var err error
	switch method {
	case LoginEmail:
		raw, err = e.client.SignInEmail(ctx, identifier, password)
	case LoginPhone:
		raw, err = e.client.SignInPhone(ctx, identifier, password)
	default:
		return fmt.Errorf("unsupported login method %q", method)
	}

	var claims *jwt.Claims
	if err == nil {
		claims, err = jwt.Validate(raw, e.now())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.metricInc(MetricLoginFailure)
		e.log.Info("sign-in rejected",
			zap.String("method", string(method)),
			zap.Error(err),
		)
		err = fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		e.emitAudit(ctx, auditEventLoginFailure, false, session.Identity{}, "", err, func() map[string]string {
			return map[string]string{"method": string(method)}
		})
		return err
	}

	id := identityFrom(claims)
	if err := e.install(ctx, raw, id); err != nil {
		return err
	}

	e.metricInc(MetricLoginSuccess)
	e.log.Info("signed in",
		zap.String("method", string(method)),
		zap.String("role", id.Role.String()),
	)
	e.emitAudit(ctx, auditEventLoginSuccess, true, id, "", nil, func() map[string]string {
		return map[string]string{"method": string(method)}
	})
	return nil
}

// install makes raw the current credential for id. Refreshes already in
// flight are superseded first so their results cannot overwrite it.
func (e *Engine) install(ctx context.Context, raw string, id session.Identity) error {
	e.gateway.Supersede()

	if err := e.store.Save(context.WithoutCancel(ctx), raw); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialStore, err)
	}
	if err := e.state.SignIn(id); err != nil {
		return err
	}
	e.signedOut.Store(false)
	e.cache.Reset()
	return nil
}

// Register describes the register operation and its observable behavior.
//
// Register creates an account. It does not sign in. A duplicate account
// yields [ErrAlreadyRegistered]; other failures wrap
// [ErrRegistrationFailed].
func (e *Engine) Register(ctx context.Context, reg Registration) error {
	if !e.ready() {
		return ErrNotReady
	}

	err := e.client.Register(ctx, reg)
	if err != nil && !errors.Is(err, api.ErrAlreadyRegistered) {
		err = fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	id := session.Identity{Username: reg.Username}
	meta := func() map[string]string {
		return map[string]string{"role": reg.Role}
	}
	if err != nil {
		e.log.Info("registration rejected", zap.String("username", reg.Username), zap.Error(err))
		e.emitAudit(ctx, auditEventRegistrationFailure, false, id, "", err, meta)
		return err
	}

	e.metricInc(MetricRegistration)
	e.emitAudit(ctx, auditEventRegistrationSuccess, true, id, "", nil, meta)
	return nil
}
