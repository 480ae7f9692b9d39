package authkit

import (
	"errors"

	"github.com/swapstation/authkit/password"
	"github.com/swapstation/authkit/refresh"
	"github.com/swapstation/authkit/token"
)

var (
	// ErrUnauthorized is an exported constant or variable used by the credential engine.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is an exported constant or variable used by the credential engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the credential engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is an exported constant or variable used by the credential engine.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountInactive is an exported constant or variable used by the credential engine.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountSuspended is an exported constant or variable used by the credential engine.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrRefreshInvalid is an exported constant or variable used by the credential engine.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrRefreshReuse is an exported constant or variable used by the credential engine.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrInvalidRequest is an exported constant or variable used by the credential engine.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrPasswordPolicy is an exported constant or variable used by the credential engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrStatusUnchanged is an exported constant or variable used by the credential engine.
	ErrStatusUnchanged = errors.New("account already in requested status")
	// ErrBackendUnavailable is an exported constant or variable used by the credential engine.
	ErrBackendUnavailable = errors.New("credential backend unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the credential engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrProviderDuplicateIdentifier is an exported constant or variable used by the credential engine.
	ErrProviderDuplicateIdentifier = errors.New("provider duplicate identifier")
)

// FailureKind partitions engine errors into the categories callers branch
// on, typically to pick an HTTP status or a retry policy.
//
// FailureKind instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type FailureKind uint8

const (
	// KindUnknown is an exported constant or variable used by the credential engine.
	KindUnknown FailureKind = iota
	// KindConflict is an exported constant or variable used by the credential engine.
	KindConflict
	// KindUnauthorized is an exported constant or variable used by the credential engine.
	KindUnauthorized
	// KindNotFound is an exported constant or variable used by the credential engine.
	KindNotFound
	// KindInvalid is an exported constant or variable used by the credential engine.
	KindInvalid
	// KindTransient is an exported constant or variable used by the credential engine.
	KindTransient
)

// String returns the kind's canonical lowercase name.
func (k FailureKind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// KindOf classifies an error returned by any Engine operation. Wrapped
// errors are unwrapped via errors.Is, so callers may decorate engine errors
// and still classify them. Errors the engine never produced map to
// KindUnknown.
//
// KindOf may return an error when input validation, dependency calls, or security checks fail.
// KindOf does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func KindOf(err error) FailureKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrAccountExists),
		errors.Is(err, ErrProviderDuplicateIdentifier),
		errors.Is(err, ErrStatusUnchanged),
		errors.Is(err, refresh.ErrDuplicate):
		return KindConflict
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrAccountSuspended),
		errors.Is(err, ErrRefreshInvalid),
		errors.Is(err, ErrRefreshReuse),
		errors.Is(err, token.ErrTokenInvalid):
		return KindUnauthorized
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, refresh.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, password.ErrPasswordTooShort):
		return KindInvalid
	case errors.Is(err, ErrBackendUnavailable),
		errors.Is(err, refresh.ErrStoreUnavailable):
		return KindTransient
	default:
		return KindUnknown
	}
}
