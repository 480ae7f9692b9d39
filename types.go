package authkit

import (
	"context"
	"time"

	"github.com/swapstation/authkit/identity"
	"github.com/swapstation/authkit/token"
)

// User is the account record exchanged with the [UserProvider]. The engine
// never persists users itself; it reads and mutates them exclusively
// through the provider.
//
// User instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type User struct {
	ID           string
	Email        string
	FullName     string
	Phone        string
	PasswordHash string
	Role         identity.Role
	Status       identity.Status
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// UserProvider is the user repository the host application supplies. The
// engine treats it as the single source of truth for accounts.
//
// Implementations must return [ErrUserNotFound] from the lookup methods
// when no account matches, and [ErrProviderDuplicateIdentifier] from Create
// when the email is already taken. Any other error is treated as a backend
// failure. Email lookups are expected to be case-insensitive; the engine
// normalizes emails to lowercase before every call.
type UserProvider interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u User) (*User, error)
	Update(ctx context.Context, u User) (*User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// VerifyPassword checks the plaintext password against the account's
	// stored credential. Returning false with a nil error means the
	// password simply did not match.
	VerifyPassword(ctx context.Context, u *User, password string) (bool, error)
}

// RegisterRequest carries the fields of a self-service registration.
//
// RegisterRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RegisterRequest struct {
	Email    string
	Password string
	FullName string
	Phone    string
}

// LoginRequest carries a password login attempt.
//
// LoginRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginRequest struct {
	Email    string
	Password string
}

// ChangePasswordRequest carries a password change for an authenticated
// user. The current password is re-verified before anything changes.
//
// ChangePasswordRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
}

// UpdateProfileRequest carries a profile update. Empty fields are left
// unchanged.
//
// UpdateProfileRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type UpdateProfileRequest struct {
	FullName string
	Phone    string
}

// TokenBundle is the result of every operation that issues credentials:
// the signed access token, the opaque refresh token, and a snapshot of the
// account they were minted for.
//
// TokenBundle instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenBundle struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	Phone        string     `json:"phone,omitempty"`
	Role         string     `json:"role"`
	RoleValue    int        `json:"role_value"`
	Status       string     `json:"status"`
	StatusValue  int        `json:"status_value"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	Token        token.Info `json:"token"`
}

// Principal is the verified identity extracted from an access token by
// [Engine.ValidateAccess].
//
// Principal instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Principal struct {
	UserID    string
	Email     string
	FullName  string
	Role      identity.Role
	Status    identity.Status
	TokenID   string
	ExpiresAt time.Time
}

// HasAdminAccess reports whether the principal may perform administrative
// operations.
func (p Principal) HasAdminAccess() bool {
	return p.Role.HasAdminAccess()
}

// HasStaffAccess reports whether the principal may perform staff-level
// operations.
func (p Principal) HasStaffAccess() bool {
	return p.Role.HasStaffAccess()
}
