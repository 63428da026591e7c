// Package fakebackend is an in-memory WareFlow backend for tests and the
// CLI's mock mode. It issues real signed credentials, rotates the
// refresh-token cookie, enforces role and capability checks on its routes,
// and exposes fault switches and call counters.
package fakebackend
