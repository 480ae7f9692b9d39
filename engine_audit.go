package authkit

import (
	"context"
	"errors"
	"time"

	"github.com/swapstation/authkit/refresh"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshInvalid      = "refresh_invalid"
	auditEventRefreshReuse        = "refresh_reuse_detected"
	auditEventLogout              = "logout"
	auditEventRegisterSuccess     = "register_success"
	auditEventRegisterDuplicate   = "register_duplicate"
	auditEventRegisterFailure     = "register_failure"
	auditEventPasswordChange      = "password_change"
	auditEventProfileUpdate       = "profile_update"
	auditEventAccountStatusChange = "account_status_change"
	auditEventTokenSweep          = "token_sweep"
)

// AuditErrorCode defines a public type used by authkit APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrAccountInactive    AuditErrorCode = "account_inactive"
	auditErrAccountSuspended   AuditErrorCode = "account_suspended"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRefreshInvalid     AuditErrorCode = "refresh_invalid"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidRequest     AuditErrorCode = "invalid_request"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountInactive):
		return auditErrAccountInactive
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrAccountExists), errors.Is(err, ErrProviderDuplicateIdentifier), errors.Is(err, ErrStatusUnchanged):
		return auditErrDuplicate
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshInvalid), errors.Is(err, refresh.ErrNotFound):
		return auditErrRefreshInvalid
	case errors.Is(err, ErrInvalidRequest):
		return auditErrInvalidRequest
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, refresh.ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	email string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Email:     email,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
