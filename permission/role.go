package permission

import (
	"errors"
	"strings"
)

// Role is the coarse-grained identity class carried in a credential.
type Role string

const (
	// RoleNone is the zero value used when no session is active.
	RoleNone Role = ""
	// RoleAdmin has full access.
	RoleAdmin Role = "admin"
	// RoleOwner owns warehouses and has full access to them.
	RoleOwner Role = "owner"
	// RoleEmployer is scoped by per-warehouse capability grants.
	RoleEmployer Role = "employer"
)

// ErrUnknownRole is returned by [ParseRole] for values outside the closed set.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates raw against the closed role set. Matching is exact;
// "Owner" is rejected rather than normalized.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleAdmin, RoleOwner, RoleEmployer:
		return Role(raw), nil
	default:
		return RoleNone, ErrUnknownRole
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// FullAccess reports whether r is authorized by role alone.
func (r Role) FullAccess() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Scoped reports whether r needs per-warehouse capability grants.
func (r Role) Scoped() bool {
	return r == RoleEmployer
}

func (r Role) String() string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}

// Capability names granted to employers. The backend also uses them as the
// action segment of employer routes; CapGetMyPermissions is the only action
// of the self_perm group.
const (
	CapWarehouseManage  = "warehouse_manage"
	CapZoneManage       = "zone_manage"
	CapProductManage    = "product_manage"
	CapRoleManage       = "role_manage"
	CapGetMyPermissions = "get_my_permissions"
)

// NormalizeCapability trims surrounding whitespace from a capability name.
func NormalizeCapability(name string) string {
	return strings.TrimSpace(name)
}
