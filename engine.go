package authkit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/swapstation/authkit/identity"
	"github.com/swapstation/authkit/password"
	"github.com/swapstation/authkit/refresh"
	"github.com/swapstation/authkit/token"
)

// Engine defines a public type used by authkit APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	userProvider UserProvider
	tokens       *token.Manager
	refreshStore refresh.Store
	hasher       *password.Hasher
	audit        *auditDispatcher
	metrics      *Metrics
	sweeper      *refresh.Sweeper
}

// Close stops the engine's background goroutines: the refresh sweeper and
// the audit dispatcher. In-flight operations are not interrupted. Close is
// idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		e.sweeper.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

// Login verifies an email/password pair and issues a credential bundle.
//
// The account's status is checked before the password: a correct password
// against a suspended account still returns [ErrAccountSuspended], and an
// unknown email returns the same [ErrInvalidCredentials] as a wrong
// password so callers cannot probe which addresses are registered.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*TokenBundle, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ErrInvalidRequest
	}

	user, err := e.userProvider.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", email, ErrInvalidCredentials, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if gateErr := loginStatusError(user.Status); gateErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, email, gateErr, nil)
		return nil, gateErr
	}

	ok, err := e.userProvider.VerifyPassword(ctx, user, req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, email, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}

	// Best effort: a failed timestamp update must not block the login.
	_ = e.userProvider.UpdateLastLogin(ctx, user.ID, time.Now().UTC())

	bundle, err := e.issueBundle(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, email, err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, email, nil, func() map[string]string {
		return map[string]string{
			"role":   user.Role.String(),
			"status": user.Status.String(),
		}
	})

	return bundle, nil
}

// Refresh rotates a refresh token: the presented token is retired and a
// brand new bundle is issued in its place. A token that cannot be retired
// by this call (because a concurrent refresh already rotated it) is treated
// as reuse and rejected with [ErrRefreshReuse]; no credentials are issued.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	if e == nil || e.refreshStore == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrRefreshInvalid
	}

	ownerID, err := e.refreshStore.Owner(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, refresh.ErrNotFound) {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		return nil, err
	}

	user, err := e.userProvider.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Account is gone; retire the orphaned token.
			_, _ = e.refreshStore.Revoke(ctx, refreshToken)
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, ownerID, "", ErrRefreshInvalid, nil)
			return nil, ErrRefreshInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if gateErr := loginStatusError(user.Status); gateErr != nil {
		_, _ = e.refreshStore.Revoke(ctx, refreshToken)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, user.Email, gateErr, nil)
		return nil, gateErr
	}

	rotated, err := e.refreshStore.Revoke(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// Someone else rotated this token between our lookup and now.
		e.metricInc(MetricRefreshReuseDetected)
		e.emitAudit(ctx, auditEventRefreshReuse, false, user.ID, user.Email, ErrRefreshReuse, nil)
		return nil, ErrRefreshReuse
	}
	e.metricInc(MetricTokenRevoked)

	bundle, err := e.issueBundle(ctx, user)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, user.ID, user.Email, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, user.Email, nil, nil)

	return bundle, nil
}

// Logout revokes every refresh token the user holds. Logging out a user
// with no live tokens, or one that no longer exists, succeeds; the
// operation is idempotent.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if e == nil || e.refreshStore == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return ErrInvalidRequest
	}

	revoked, err := e.refreshStore.RevokeAllForUser(ctx, userID)
	if err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.metricAdd(MetricTokenRevoked, uint64(revoked))
	e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(revoked)}
	})

	return nil
}

// ValidateAccess verifies an access token and returns the principal it was
// minted for. Validation is purely cryptographic: no store or provider is
// consulted, so a token stays valid until its expiry even if the account
// was deactivated after issuance.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Principal, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}
	}()

	claims, err := e.tokens.Validate(accessToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	role, okRole := identity.RoleFromValue(claims.RoleValue)
	status, okStatus := identity.StatusFromValue(claims.StatusValue)
	if !okRole || !okStatus {
		return nil, ErrUnauthorized
	}

	return &Principal{
		UserID:    claims.Subject,
		Email:     claims.Email,
		FullName:  claims.FullName,
		Role:      role,
		Status:    status,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Sweep removes expired refresh records immediately, independent of the
// background sweeper, and returns how many were removed.
//
// Sweep may return an error when input validation, dependency calls, or security checks fail.
// Sweep does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	if e == nil || e.refreshStore == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.refreshStore.Sweep(ctx)
	if err != nil {
		return removed, err
	}
	e.recordSweep(ctx, removed)
	return removed, nil
}

func (e *Engine) recordSweep(ctx context.Context, removed int) {
	if removed == 0 {
		return
	}
	e.metricAdd(MetricSweepRemoved, uint64(removed))
	e.emitAudit(ctx, auditEventTokenSweep, true, "", "", nil, func() map[string]string {
		return map[string]string{"removed": strconv.Itoa(removed)}
	})
}

func (e *Engine) issueBundle(ctx context.Context, user *User) (*TokenBundle, error) {
	access, info, err := e.tokens.Mint(token.Subject{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Phone:    user.Phone,
		Role:     user.Role,
		Status:   user.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	opaque, err := token.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	if err := e.refreshStore.Save(ctx, refresh.Record{
		Token:     opaque,
		UserID:    user.ID,
		IssuedAt:  info.IssuedAt,
		ExpiresAt: info.IssuedAt.Add(e.config.Refresh.TTL),
	}); err != nil {
		// ErrDuplicate here means the random source produced a collision;
		// surface it rather than retrying.
		return nil, fmt.Errorf("save refresh token: %w", err)
	}
	e.metricInc(MetricTokenIssued)

	return &TokenBundle{
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Phone:        user.Phone,
		Role:         user.Role.String(),
		RoleValue:    int(user.Role),
		Status:       user.Status.String(),
		StatusValue:  int(user.Status),
		AccessToken:  access,
		RefreshToken: opaque,
		Token:        info,
	}, nil
}

func loginStatusError(s identity.Status) error {
	switch s {
	case identity.StatusActive:
		return nil
	case identity.StatusSuspended:
		return ErrAccountSuspended
	default:
		return ErrAccountInactive
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
