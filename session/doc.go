// Package session owns the client-side session lifecycle and durable
// credential storage.
//
// # Lifecycle
//
// A [State] moves Uninitialized → Resolving → {Authenticated, Anonymous}
// exactly once, then alternates between Authenticated and Anonymous as the
// user signs in, signs out, or loses a refresh. Re-entering Resolving is
// rejected with [ErrInvalidTransition].
//
// # Credential stores
//
// A [CredentialStore] keeps one opaque credential string. [MemoryStore] is
// process-local, [FileStore] survives restarts, and [RedisStore] shares the
// entry under "<prefix>:accessToken". All are last-writer-wins with
// read-your-writes visibility.
//
// # Architecture boundaries
//
// This package stores identities and credentials. It does NOT decode
// credentials, talk to the backend, or make authorization decisions; those
// belong to jwt, api, and authz.
//
// # What this package must NOT do
//
//   - Import authkit, jwt, api, or refresh (no upward imports).
//   - Expose an identity while resolution is still in progress.
package session
