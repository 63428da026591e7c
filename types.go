package authkit

import (
	"github.com/wareflow/authkit/api"
	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/session"
)

// Snapshot is the session view handed to consumers.
type Snapshot = session.Snapshot

// Registration is the sign-up payload.
type Registration = api.Registration

// SystemPermission is a backend capability descriptor.
type SystemPermission = permission.SystemPermission

// LoginMethod identifies how a sign-in was performed.
type LoginMethod string

const (
	// LoginEmail signs in with email and password.
	LoginEmail LoginMethod = "email"
	// LoginPhone signs in with phone number and password.
	LoginPhone LoginMethod = "phone"
)
