package authkit

import (
	"context"
	"errors"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/refresh"
	"github.com/wareflow/authkit/session"
)

const (
	auditEventInitResolved          = "init_resolved"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshFailure        = "refresh_failure"
	auditEventSessionExpired        = "session_expired"
	auditEventLogout                = "logout"
	auditEventLogoutNotifyFailure   = "logout_notify_failure"
	auditEventRegistrationSuccess   = "registration_success"
	auditEventRegistrationFailure   = "registration_failure"
	auditEventPermissionFetchFailed = "permission_fetch_failure"
)

// AuditErrorCode is the stable error classification carried in
// [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrMalformed          AuditErrorCode = "malformed_credential"
	auditErrExpired            AuditErrorCode = "expired_credential"
	auditErrRefreshFailed      AuditErrorCode = "refresh_failed"
	auditErrSuperseded         AuditErrorCode = "superseded"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPermissionFetch    AuditErrorCode = "permission_fetch_failed"
	auditErrStore              AuditErrorCode = "store_failure"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrCanceled           AuditErrorCode = "canceled"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	id session.Identity,
	warehouseID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   e.now().UTC(),
		EventType:   eventType,
		Username:    id.Username,
		WarehouseID: warehouseID,
		RequestID:   api.RequestIDFromContext(ctx),
		IP:          clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if id.Role != permission.RoleNone {
		event.Role = string(id.Role)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, refresh.ErrSuperseded):
		return auditErrSuperseded
	case errors.Is(err, refresh.ErrRefreshFailed):
		return auditErrRefreshFailed
	case errors.Is(err, jwt.ErrExpired):
		return auditErrExpired
	case errors.Is(err, jwt.ErrMalformed):
		return auditErrMalformed
	case errors.Is(err, api.ErrAlreadyRegistered):
		return auditErrDuplicate
	case errors.Is(err, permission.ErrFetchFailed):
		return auditErrPermissionFetch
	case errors.Is(err, ErrCredentialStore),
		errors.Is(err, session.ErrStoreUnavailable):
		return auditErrStore
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case api.IsStatus(err, 401):
		return auditErrUnauthorized
	}

	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 500 {
		return auditErrUnavailable
	}
	return auditErrInternal
}
