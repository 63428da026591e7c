// Package warehouse is the role-aware client for warehouse, zone, product,
// and employee routes.
//
// Owners and admins address /{role}/... routes and are authorized by role.
// Employers address the capability-scoped /employer/... routes; every
// employer call first checks the required capability against the session's
// cached grants for that warehouse and fails with [authz.ErrDenied] without
// a network call when it is missing.
package warehouse
