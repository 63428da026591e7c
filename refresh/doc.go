// Package refresh implements the client-side refresh gateway: the single
// path that exchanges the backend's refresh cookie for a new access
// credential.
//
// # Coalescing
//
// Concurrent [Gateway.Refresh] callers share one in-flight attempt. The
// attempt runs detached from the first caller's cancellation; callers that
// stop waiting simply stop waiting.
//
// # Supersession
//
// [Gateway.Supersede] marks every attempt started before it as stale. A
// stale attempt completes with [ErrSuperseded], persists nothing, and fires
// no hooks, so a login or logout can never be overwritten by a refresh that
// raced it.
//
// # Architecture boundaries
//
// This package owns refresh coalescing, validation of the returned
// credential, and persisting it. It does NOT speak HTTP (see [Exchanger]),
// mutate session state, or clear permission caches; those run in hooks
// supplied by the Engine.
//
// # What this package must NOT do
//
//   - Import authkit or api (no upward imports).
//   - Panic past [Gateway.Refresh].
package refresh
