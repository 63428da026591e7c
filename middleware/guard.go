package middleware

import (
	"context"
	"net/http"

	"github.com/wareflow/authkit"
	"github.com/wareflow/authkit/authz"
)

type sessionContextKey struct{}

// SessionFromContext returns the snapshot admitted by a guard.
func SessionFromContext(ctx context.Context) (authkit.Snapshot, bool) {
	snap, ok := ctx.Value(sessionContextKey{}).(authkit.Snapshot)
	return snap, ok
}

// Decider returns the verdict for an authenticated request.
type Decider func(r *http.Request, snap authkit.Snapshot) authz.Decision

// Guard waits for the engine's session to resolve, rejects anonymous
// callers with 401, and then consults decide.
func Guard(engine *authkit.Engine, decide Decider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			snap, err := engine.Init(r.Context())
			if err != nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}
			if !snap.IsAuthenticated {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			switch decide(r, snap) {
			case authz.Allowed:
			case authz.Pending:
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
