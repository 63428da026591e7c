// Package permission owns the role model, the per-warehouse capability cache,
// and the system permission catalog used by the WareFlow client.
//
// # Roles
//
// Roles form a closed set: admin, owner and employer. Owners and admins are
// authorized by role alone; employers receive named capabilities per
// warehouse, fetched lazily from the backend through a [Fetcher].
//
// # Cache lifetime
//
// A [Cache] is scoped to one signed-in identity. [Cache.Reset] must be called
// whenever that identity changes; fetches that were in flight when Reset ran
// are discarded instead of being stored.
//
// # Architecture boundaries
//
// This package performs I/O only through the [Fetcher] it is given. It does
// not decode credentials and does not decide routing; the authz package turns
// cached capabilities into authorization decisions.
//
// # What this package must NOT do
//
//   - Import authkit, api, jwt, or session.
//   - Serve capabilities fetched for a previous identity.
//   - Log; callers own logging of returned errors.
package permission
