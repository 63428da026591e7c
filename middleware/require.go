package middleware

import (
	"net/http"

	"github.com/wareflow/authkit"
	"github.com/wareflow/authkit/authz"
)

// RequireSession admits any authenticated session.
func RequireSession(engine *authkit.Engine) func(http.Handler) http.Handler {
	return Guard(engine, func(_ *http.Request, snap authkit.Snapshot) authz.Decision {
		return authz.Route(snap)
	})
}

// RequireCapability admits owners and admins, and employers holding
// capability on the warehouse named by warehouseFrom. Employer grants are
// fetched on first use and cached by the engine.
func RequireCapability(engine *authkit.Engine, capability string, warehouseFrom func(*http.Request) string) func(http.Handler) http.Handler {
	return Guard(engine, func(r *http.Request, snap authkit.Snapshot) authz.Decision {
		var warehouseID string
		if warehouseFrom != nil {
			warehouseID = warehouseFrom(r)
		}
		return engine.Authorize(r.Context(), warehouseID, capability)
	})
}

// PathWarehouse reads the warehouse ID from the named path wildcard, as
// registered with http.ServeMux patterns such as "/warehouses/{id}/zones".
func PathWarehouse(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.PathValue(name)
	}
}
