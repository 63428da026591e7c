// Package api is the HTTP client for the WareFlow backend.
//
// # Credential attachment
//
// Every request except the auth family (sign-in, registration, refresh)
// carries "Authorization: Bearer <credential>" read from the configured
// [session.CredentialStore] at send time.
//
// # Expiry recovery
//
// A 401 on a non-auth request triggers at most one refresh through the
// configured [Refresher] and, if it succeeds, exactly one re-issue of the
// same request with the new credential. A failed refresh or a second 401
// surfaces the original [*HTTPError]. Requests built with [NoRefresh] never
// enter recovery.
//
// # Architecture boundaries
//
// This package owns transport, request correlation, and wire shapes. It does
// NOT mutate session state; sign-out cleanup after a failed refresh belongs
// to the refresh hooks installed by the Engine.
package api
