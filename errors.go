package authkit

import (
	"errors"

	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/authz"
	"github.com/wareflow/authkit/jwt"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/refresh"
)

var (
	// ErrInvalidCredentials is returned by sign-in when the backend rejects
	// the credentials or answers with an unusable credential. Session and
	// storage are left untouched.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCredentialStore wraps durable credential store failures.
	ErrCredentialStore = errors.New("credential store failure")
	// ErrNotReady is returned by a nil or unbuilt Engine.
	ErrNotReady = errors.New("engine not ready")
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRegistrationFailed wraps sign-up failures other than duplicates.
	ErrRegistrationFailed = errors.New("registration failed")
	// ErrAlreadyRegistered is returned when sign-up reports a duplicate user.
	ErrAlreadyRegistered = api.ErrAlreadyRegistered
)

// Re-exported sentinels so callers can match failures without importing
// every subpackage.
var (
	ErrMalformedCredential = jwt.ErrMalformed
	ErrExpiredCredential   = jwt.ErrExpired
	ErrRefreshFailed       = refresh.ErrRefreshFailed
	ErrRefreshSuperseded   = refresh.ErrSuperseded
	ErrPermissionFetch     = permission.ErrFetchFailed
	ErrDenied              = authz.ErrDenied
	ErrPending             = authz.ErrPending
)
