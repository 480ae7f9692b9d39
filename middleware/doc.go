// Package middleware exposes HTTP middleware adapters built on top of
// authkit.Engine access-token validation.
//
// # Guards
//
//   - [Guard] — bearer token verification, principal injected into context.
//   - [RequireStaff] — Guard plus a staff-or-admin role gate.
//   - [RequireAdmin] — Guard plus an admin-only role gate.
//
// Each guard reads the Authorization header, calls Engine.ValidateAccess, and
// injects the validated principal into the request context, where handlers can
// recover it with [PrincipalFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to
// Engine.ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Touch the refresh token store (Engine handles state).
//   - Make authorization decisions beyond the role predicates on Principal.
package middleware
