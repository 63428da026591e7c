package authkit

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/wareflow/authkit/authz"
	"github.com/wareflow/authkit/permission"
)

// GetPermissionsForWarehouse returns the capabilities of username on
// warehouseID for the current session. An empty username means the
// signed-in user.
//
// Employers fetch once per warehouse per identity; owners and admins are
// authorized by role and get an empty list without a backend call. A failed
// fetch is logged and returned wrapping [ErrPermissionFetch]; nothing is
// cached, so a later call retries.
func (e *Engine) GetPermissionsForWarehouse(ctx context.Context, warehouseID, username string) ([]string, error) {
	snap, err := e.Init(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	if username == "" {
		username = snap.Username
	}

	perms, err := e.cache.GetForWarehouse(ctx, snap.Role, warehouseID, username)
	if err != nil {
		if errors.Is(err, permission.ErrFetchFailed) {
			e.log.Warn("permission fetch failed",
				zap.String("warehouse_id", warehouseID),
				zap.String("role", snap.Role.String()),
				zap.Error(err),
			)
			e.emitAudit(ctx, auditEventPermissionFetchFailed, false, snap.Identity(), warehouseID, err, nil)
		}
		return nil, err
	}
	return perms, nil
}

// Permissions returns the cached capabilities of the signed-in user on
// warehouseID without fetching.
func (e *Engine) Permissions(warehouseID string) []string {
	if !e.ready() {
		return nil
	}
	snap := e.state.Snapshot()
	if !snap.IsAuthenticated {
		return nil
	}
	return e.cache.Cached(warehouseID, snap.Username)
}

// PermissionsLoaded reports whether the signed-in user's capabilities on
// warehouseID are cached.
func (e *Engine) PermissionsLoaded(warehouseID string) bool {
	if !e.ready() {
		return false
	}
	snap := e.state.Snapshot()
	return snap.IsAuthenticated && e.cache.Loaded(warehouseID, snap.Username)
}

// GetSystemPermissions returns the capability descriptors for the session
// role. With Config.Permission.CacheSystemPermissions the first success is
// kept until the identity changes.
func (e *Engine) GetSystemPermissions(ctx context.Context) ([]SystemPermission, error) {
	snap, err := e.Init(ctx)
	if err != nil {
		return nil, err
	}
	if !snap.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	return e.cache.SystemPermissions(ctx, snap.Role)
}

// SystemPermissionsCached returns the cached descriptors for the session
// role without fetching.
func (e *Engine) SystemPermissionsCached() []SystemPermission {
	if !e.ready() {
		return nil
	}
	snap := e.state.Snapshot()
	if !snap.IsAuthenticated {
		return nil
	}
	return e.cache.CachedSystem(snap.Role)
}

// Catalog builds a name to ID index from the session role's descriptors.
func (e *Engine) Catalog(ctx context.Context) (*permission.Catalog, error) {
	perms, err := e.GetSystemPermissions(ctx)
	if err != nil {
		return nil, err
	}
	return permission.NewCatalog(perms)
}

// Authorize decides whether the session may use capability on warehouseID,
// fetching employer grants when needed. It never suspends: callers that
// need a settled answer call [Engine.Init] first.
func (e *Engine) Authorize(ctx context.Context, warehouseID, capability string) authz.Decision {
	snap := e.Session()
	if snap.IsLoading || !snap.IsAuthenticated || !snap.Role.Scoped() {
		return authz.Capability(snap, nil, capability)
	}
	perms, err := e.GetPermissionsForWarehouse(ctx, warehouseID, "")
	if err != nil {
		return authz.Denied
	}
	return authz.Capability(snap, perms, capability)
}
