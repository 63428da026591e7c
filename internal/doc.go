// Package internal holds helpers private to the authkit module.
//
// # Sub-packages
//
//   - fakebackend: an in-memory WareFlow API used by tests, the CLI's
//     mock-backend command, and the examples
//
// # What this package must NOT do
//
//   - Export types that appear in the public authkit API.
//   - Be imported by any package outside the authkit module.
package internal
