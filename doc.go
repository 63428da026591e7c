// Package authkit is the client-side session engine for the WareFlow
// warehouse API.
//
// An [Engine] resolves a persisted access credential at startup, signs users
// in and out, silently refreshes the credential through the backend's cookie
// refresh endpoint when a request is rejected with 401, and caches
// per-warehouse capability sets for employer accounts. Engine methods are
// safe to call from multiple goroutines after [Builder.Build].
//
// # Lifecycle
//
// A built engine starts Loading. The first [Engine.Init] resolves the
// session exactly once: a stored credential that decodes and has not expired
// authenticates directly; otherwise a single refresh is attempted. Every
// later state change goes through sign-in, sign-out, or refresh, and each
// bumps an identity generation so results computed for an earlier identity
// are discarded.
//
// # Architecture boundaries
//
// authkit is the public surface: [Engine], [Builder], [Config], and value
// types such as [Snapshot] and [MetricsSnapshot]. Transport lives in api,
// credential decoding in jwt, the state machine and stores in session, the
// single-flight refresh in refresh, capability caching in permission, and
// route decisions in authz. Domain calls go through warehouse.
//
// # What this package must NOT do
//
//   - Verify credential signatures; the backend is the authority.
//   - Expose the refresh cookie or the raw access credential in snapshots,
//     logs, metrics, or audit events.
//   - Perform I/O before [Engine.Init] or an explicit operation.
package authkit
