// Package jwt decodes WareFlow access credentials on the client side and
// issues signed credentials for fixtures and local backends.
//
// # Decoding
//
// [Decode] reads the claims segment of a compact JWT without verifying the
// signature. Verification is the backend's job; the client only needs the
// role, the display name, and the expiry to drive its session state.
// A credential is either fully valid or treated as absent: every structural
// problem, unknown role, or missing expiry is reported as an error wrapping
// [ErrMalformed] and never panics.
//
// # Architecture boundaries
//
// This package is pure computation. It does not store credentials, perform
// refreshes, or talk to the network.
//
// # What this package must NOT do
//
//   - Import authkit, session, refresh, or api.
//   - Treat an undecodable credential as partially valid.
package jwt
