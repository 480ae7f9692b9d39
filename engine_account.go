package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/swapstation/authkit/identity"
	"github.com/swapstation/authkit/password"
)

// Register creates a new customer account and immediately issues a
// credential bundle for it, so the caller is signed in without a second
// round trip. New accounts always start as active customers; promotions to
// staff or admin happen through the provider, never through Register.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*TokenBundle, error) {
	if e == nil || e.userProvider == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") || strings.TrimSpace(req.FullName) == "" {
		return nil, ErrInvalidRequest
	}

	if _, err := e.userProvider.FindByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", email, ErrAccountExists, nil)
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			return nil, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	created, err := e.userProvider.Create(ctx, User{
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         identity.RoleCustomer,
		Status:       identity.StatusActive,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrProviderDuplicateIdentifier) {
			// Lost the race against a concurrent registration for the
			// same address.
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", email, ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	bundle, err := e.issueBundle(ctx, created)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, created.ID, email, err, nil)
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, created.ID, email, nil, nil)

	return bundle, nil
}

// ChangePassword replaces the user's password after verifying the current
// one, then revokes all of the user's refresh tokens so stolen sessions do
// not survive the change. Access tokens already issued remain valid until
// their expiry.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if e == nil || e.userProvider == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if userID == "" || req.CurrentPassword == "" || req.NewPassword == "" {
		return ErrInvalidRequest
	}

	user, err := e.userProvider.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	ok, err := e.userProvider.VerifyPassword(ctx, user, req.CurrentPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChange, false, user.ID, user.Email, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}

	hash, err := e.hasher.Hash(req.NewPassword)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooShort) {
			e.metricInc(MetricPasswordChangeFailure)
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return fmt.Errorf("hash password: %w", err)
	}

	if err := e.userProvider.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if e.refreshStore != nil {
		if revoked, revErr := e.refreshStore.RevokeAllForUser(ctx, user.ID); revErr == nil {
			e.metricAdd(MetricTokenRevoked, uint64(revoked))
		}
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, user.ID, user.Email, nil, nil)

	return nil
}

// UpdateProfile changes the user's display fields. Empty request fields are
// left as they are, so callers only send what they want changed.
//
// UpdateProfile may return an error when input validation, dependency calls, or security checks fail.
// UpdateProfile does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*User, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	user, err := e.userProvider.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	changed := map[string]string{}
	if name := strings.TrimSpace(req.FullName); name != "" && name != user.FullName {
		user.FullName = name
		changed["full_name"] = name
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" && phone != user.Phone {
		user.Phone = phone
		changed["phone"] = phone
	}
	if len(changed) == 0 {
		return sanitizeUser(user), nil
	}

	updated, err := e.userProvider.Update(ctx, *user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricProfileUpdate)
	e.emitAudit(ctx, auditEventProfileUpdate, true, updated.ID, updated.Email, nil, func() map[string]string {
		return changed
	})

	return sanitizeUser(updated), nil
}

// Profile returns the user's account record without its password hash.
func (e *Engine) Profile(ctx context.Context, userID string) (*User, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	user, err := e.userProvider.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return sanitizeUser(user), nil
}

// ActivateUser moves the account to the active status, restoring its
// ability to sign in. Activating an account that is already active returns
// [ErrStatusUnchanged].
func (e *Engine) ActivateUser(ctx context.Context, userID string) (*User, error) {
	user, err := e.setStatus(ctx, userID, identity.StatusActive)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricAccountActivated)
	return user, nil
}

// DeactivateUser moves the account to the inactive status and revokes all
// of its refresh tokens, so the account cannot sign in or refresh. Access
// tokens already issued remain valid until their expiry.
func (e *Engine) DeactivateUser(ctx context.Context, userID string) (*User, error) {
	user, err := e.setStatus(ctx, userID, identity.StatusInactive)
	if err != nil {
		return nil, err
	}
	e.revokeAfterStatusChange(ctx, userID)
	e.metricInc(MetricAccountDeactivated)
	return user, nil
}

// SuspendUser moves the account to the suspended status and revokes all of
// its refresh tokens. Suspension is the operator-imposed counterpart of
// deactivation; the engine treats both as a bar on signing in.
func (e *Engine) SuspendUser(ctx context.Context, userID string) (*User, error) {
	user, err := e.setStatus(ctx, userID, identity.StatusSuspended)
	if err != nil {
		return nil, err
	}
	e.revokeAfterStatusChange(ctx, userID)
	e.metricInc(MetricAccountDeactivated)
	return user, nil
}

func (e *Engine) setStatus(ctx context.Context, userID string, target identity.Status) (*User, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	user, err := e.userProvider.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if user.Status == target {
		return nil, ErrStatusUnchanged
	}

	from := user.Status
	user.Status = target

	updated, err := e.userProvider.Update(ctx, *user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.emitAudit(ctx, auditEventAccountStatusChange, true, updated.ID, updated.Email, nil, func() map[string]string {
		return map[string]string{
			"from": from.String(),
			"to":   target.String(),
		}
	})

	return sanitizeUser(updated), nil
}

func (e *Engine) revokeAfterStatusChange(ctx context.Context, userID string) {
	if e.refreshStore == nil {
		return
	}
	if revoked, err := e.refreshStore.RevokeAllForUser(ctx, userID); err == nil {
		e.metricAdd(MetricTokenRevoked, uint64(revoked))
	}
}

func sanitizeUser(u *User) *User {
	out := *u
	out.PasswordHash = ""
	return &out
}
