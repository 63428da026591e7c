// Package middleware gates HTTP handlers on the process-wide client session
// held by an authkit.Engine.
//
// # Guards
//
//   - [RequireSession] admits any authenticated session.
//   - [RequireCapability] additionally requires a warehouse capability.
//   - [Guard] is the shared adapter for custom decisions.
//
// A request arriving while the session is still resolving waits for
// resolution (bounded by the request context) instead of being rejected.
// The admitted snapshot is stored in the request context; read it with
// [SessionFromContext].
//
// # Architecture boundaries
//
// Decisions come from the authz predicates and Engine.Authorize. This
// package only maps them to HTTP status codes:
//
//   - anonymous session: 401
//   - authenticated but denied: 403
//   - resolution abandoned by the caller: 503
package middleware
