// Package refresh defines the stateful side of credential issuance: the
// store of opaque refresh tokens an engine consults on every refresh,
// logout, and sweep.
//
// A token is Active from the moment it is saved until it is revoked or its
// expiry passes. Both terminal states are permanent; no operation resurrects
// a token. Stores never persist raw token values, only their SHA-256 digest,
// so a leaked store dump cannot be replayed against the engine.
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a token value does not resolve to a
	// live record.
	ErrNotFound = errors.New("refresh token not found")
	// ErrDuplicate is returned when a token value collides with one
	// already saved. With 64 bytes of entropy this indicates a broken
	// random source, not bad luck.
	ErrDuplicate = errors.New("refresh token already exists")
	// ErrStoreUnavailable wraps every backend transport failure so
	// callers can distinguish outages from negative lookups.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

// Record describes one issued refresh token.
//
// Record instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Record struct {
	// Token is the raw opaque value handed to the client. Stores hash
	// it before persisting.
	Token     string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store is the contract every refresh token backend satisfies.
//
// Revoke is the rotation primitive: it returns true only for the single
// caller that transitions the token from Active to Revoked. Concurrent
// rotations of the same token therefore produce exactly one winner, which
// is what makes reuse of a rotated token detectable.
type Store interface {
	// Save persists a new Active record. ErrDuplicate if the token
	// value is already present, in any state.
	Save(ctx context.Context, rec Record) error

	// Validate reports whether the token is currently Active. It never
	// mutates state.
	Validate(ctx context.Context, token string) (bool, error)

	// Owner returns the user that holds the token. ErrNotFound only for
	// unknown or expired tokens; a revoked record still resolves until
	// its expiry, so callers can tell reuse of a rotated token apart
	// from garbage.
	Owner(ctx context.Context, token string) (string, error)

	// Revoke retires the token. The boolean is true only when this call
	// performed the Active to Revoked transition; revoking a missing,
	// expired, or already revoked token returns false with a nil error.
	Revoke(ctx context.Context, token string) (bool, error)

	// RevokeAllForUser retires every Active token of the user and
	// returns how many transitions it performed.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)

	// Sweep removes records whose expiry has passed and returns how
	// many it removed. Sweeping never touches Active records.
	Sweep(ctx context.Context) (int, error)
}

// HashToken returns the hex SHA-256 digest under which stores key a token
// value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
