// Package authz holds the pure authorization predicates used to gate
// rendering, handlers, and domain calls. Nothing here performs I/O.
package authz

import (
	"errors"

	"github.com/wareflow/authkit/permission"
	"github.com/wareflow/authkit/session"
)

var (
	// ErrDenied is returned when a session may not perform an action.
	ErrDenied = errors.New("access denied")
	// ErrPending is returned while the session is still resolving.
	ErrPending = errors.New("session still resolving")
)

// Decision is the outcome of a guard check.
type Decision uint8

const (
	// Pending means no decision can be made until resolution finishes.
	Pending Decision = iota
	// Allowed grants access.
	Allowed
	// Denied refuses access.
	Denied
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Err maps d to nil, [ErrPending], or [ErrDenied].
func (d Decision) Err() error {
	switch d {
	case Allowed:
		return nil
	case Pending:
		return ErrPending
	default:
		return ErrDenied
	}
}

// Route decides whether s may enter an authenticated area.
func Route(s session.Snapshot) Decision {
	if s.IsLoading {
		return Pending
	}
	if s.IsAuthenticated {
		return Allowed
	}
	return Denied
}

// Capability decides whether s holds name given the warehouse-scoped perms.
// Owners and admins are allowed regardless of perms; employers need name in
// perms.
func Capability(s session.Snapshot, perms []string, name string) Decision {
	if s.IsLoading {
		return Pending
	}
	if !s.IsAuthenticated {
		return Denied
	}
	if s.Role.FullAccess() {
		return Allowed
	}
	if s.Role.Scoped() && permission.Contains(perms, name) {
		return Allowed
	}
	return Denied
}

// CanAccessRoute is [Route] collapsed to a boolean; Pending is false.
func CanAccessRoute(s session.Snapshot) bool {
	return Route(s) == Allowed
}

// HasCapability is [Capability] collapsed to a boolean; Pending is false.
func HasCapability(s session.Snapshot, perms []string, name string) bool {
	return Capability(s, perms, name) == Allowed
}

// RoleIn decides whether s carries one of roles.
func RoleIn(s session.Snapshot, roles ...permission.Role) Decision {
	if d := Route(s); d != Allowed {
		return d
	}
	for _, r := range roles {
		if s.Role == r {
			return Allowed
		}
	}
	return Denied
}
