// Package authkit provides a credential engine for swap-station services:
// HMAC-SHA256 JWT access tokens, rotating opaque refresh tokens backed by
// a pluggable store (Redis, Postgres, or in-memory), and an account
// lifecycle built around ordered roles and statuses.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (TokenBundle, Principal, MetricsSnapshot, etc.). Token minting lives in the token
// sub-package, refresh storage behind the refresh.Store interface, and password hashing
// in the password sub-package; the engine orchestrates them but owns none of their state.
//
// # What this package must NOT do
//
//   - Expose Redis clients, SQL handles, or storage encodings in its public API.
//   - Store user accounts. Accounts belong to the host application and reach the engine
//     only through the [UserProvider] interface.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//
// # Performance contract
//
// ValidateAccess is the hot path. It is purely cryptographic: no store or provider
// round-trips, no allocation beyond the returned Principal. Login, Refresh, and account
// operations are allowed one store round-trip per step.
package authkit
