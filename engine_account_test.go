package authkit

import (
	"context"
	"errors"
	"testing"

	"github.com/swapstation/authkit/identity"
)

func TestRegisterCreatesActiveCustomerAndSignsIn(t *testing.T) {
	up := newMockUserProvider(t)
	engine := newTestEngine(t, up)

	bundle, err := engine.Register(context.Background(), RegisterRequest{
		Email:    "New.User@Example.com",
		Password: "a-long-enough-password",
		FullName: "  New User  ",
		Phone:    "+15550123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if bundle.Email != "new.user@example.com" {
		t.Fatalf("expected normalized email, got %q", bundle.Email)
	}
	if bundle.FullName != "New User" {
		t.Fatalf("expected trimmed name, got %q", bundle.FullName)
	}
	if bundle.RoleValue != int(identity.RoleCustomer) || bundle.StatusValue != int(identity.StatusActive) {
		t.Fatalf("expected active customer, got role=%d status=%d", bundle.RoleValue, bundle.StatusValue)
	}

	// The issued credentials are immediately usable.
	if _, err := engine.ValidateAccess(context.Background(), bundle.AccessToken); err != nil {
		t.Fatalf("validate after register failed: %v", err)
	}
	if _, err := engine.Refresh(context.Background(), bundle.RefreshToken); err != nil {
		t.Fatalf("refresh after register failed: %v", err)
	}

	// And a normal login works with the chosen password.
	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "new.user@example.com",
		Password: "a-long-enough-password",
	}); err != nil {
		t.Fatalf("login after register failed: %v", err)
	}
}

func TestRegisterDuplicateEmailRejected(t *testing.T) {
	up := newMockUserProvider(t)
	seedActiveCustomer(t, up)
	engine := newTestEngine(t, up)

	_, err := engine.Register(context.Background(), RegisterRequest{
		Email:    "ALICE@example.com",
		Password: "another-password-123",
		FullName: "Alice Again",
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Fatalf("expected duplicate metric 1, got %d", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	engine := newTestEngine(t, newMockUserProvider(t))

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"missing email", RegisterRequest{Password: "long-enough-pass", FullName: "A"}, ErrInvalidRequest},
		{"malformed email", RegisterRequest{Email: "not-an-email", Password: "long-enough-pass", FullName: "A"}, ErrInvalidRequest},
		{"missing name", RegisterRequest{Email: "a@b.c", Password: "long-enough-pass"}, ErrInvalidRequest},
		{"short password", RegisterRequest{Email: "a@b.c", Password: "short", FullName: "A"}, ErrPasswordPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.Register(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestChangePasswordRotatesCredentialAndRevokesTokens(t *testing.T) {
	up := newMockUserProvider(t)
	user := seedActiveCustomer(t, up)
	engine := newTestEngine(t, up)
	bundle := loginForRefresh(t, engine)

	err := engine.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{
		CurrentPassword: "correct-password-123",
		NewPassword:     "brand-new-password-456",
	})
	if err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	newHash := up.storedPassHash[user.ID]
	if newHash == "" {
		t.Fatal("expected a new password hash to be stored")
	}
	if ok, err := up.hasher.Verify("brand-new-password-456", newHash); err != nil || !ok {
		t.Fatalf("new hash does not verify: %v, %v", ok, err)
	}
	if ok, _ := up.hasher.Verify("correct-password-123", newHash); ok {
		t.Fatal("old password still verifies against new hash")
	}

	// Outstanding refresh tokens died with the old password.
	if _, err := engine.Refresh(context.Background(), bundle.RefreshToken); err == nil {
		t.Fatal("expected refresh to fail after password change")
	}

	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "brand-new-password-456",
	}); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordWrongCurrentRejected(t *testing.T) {
	up := newMockUserProvider(t)
	user := seedActiveCustomer(t, up)
	engine := newTestEngine(t, up)

	err := engine.ChangePassword(context.Background(), user.ID, ChangePasswordRequest{
		CurrentPassword: "not-the-password",
		NewPassword:     "brand-new-password-456",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricPasswordChangeFailure]; got != 1 {
		t.Fatalf("expected failure metric 1, got %d", got)
	}
}

func TestUpdateProfilePartialFields(t *testing.T) {
	up := newMockUserProvider(t)
	user := seedActiveCustomer(t, up)
	engine := newTestEngine(t, up)

	updated, err := engine.UpdateProfile(context.Background(), user.ID, UpdateProfileRequest{
		FullName: "Alice B. Carter",
	})
	if err != nil {
		t.Fatalf("update profile failed: %v", err)
	}
	if updated.FullName != "Alice B. Carter" {
		t.Fatalf("expected new name, got %q", updated.FullName)
	}
	if updated.Phone != user.Phone {
		t.Fatalf("expected phone untouched, got %q", updated.Phone)
	}
	if updated.PasswordHash != "" {
		t.Fatal("profile result must not carry the password hash")
	}

	// No-op request leaves everything as is without an update call.
	same, err := engine.UpdateProfile(context.Background(), user.ID, UpdateProfileRequest{})
	if err != nil {
		t.Fatalf("no-op update failed: %v", err)
	}
	if same.FullName != "Alice B. Carter" {
		t.Fatalf("expected unchanged profile, got %q", same.FullName)
	}
}

func TestProfileHidesPasswordHash(t *testing.T) {
	up := newMockUserProvider(t)
	user := seedActiveCustomer(t, up)
	engine := newTestEngine(t, up)

	got, err := engine.Profile(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("profile failed: %v", err)
	}
	if got.Email != user.Email || got.FullName != user.FullName {
		t.Fatalf("unexpected profile %+v", got)
	}
	if got.PasswordHash != "" {
		t.Fatal("profile must not expose the password hash")
	}

	if _, err := engine.Profile(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDeactivateUserBlocksLoginAndRefresh(t *testing.T) {
	up := newMockUserProvider(t)
	user := seedActiveCustomer(t, up)
	engine := newTestEngine(t, up)
	bundle := loginForRefresh(t, engine)

	updated, err := engine.DeactivateUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if updated.Status != identity.StatusInactive {
		t.Fatalf("expected inactive, got %v", updated.Status)
	}

	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive on login, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), bundle.RefreshToken); err == nil {
		t.Fatal("expected refresh to fail after deactivation")
	}

	// Deactivating twice reports no transition.
	if _, err := engine.DeactivateUser(context.Background(), user.ID); !errors.Is(err, ErrStatusUnchanged) {
		t.Fatalf("expected ErrStatusUnchanged, got %v", err)
	}
}

func TestActivateUserRestoresLogin(t *testing.T) {
	up := newMockUserProvider(t)
	user := up.seed(t, User{
		Email:  "dormant@example.com",
		Role:   identity.RoleCustomer,
		Status: identity.StatusInactive,
	}, "correct-password-123")
	engine := newTestEngine(t, up)

	updated, err := engine.ActivateUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if updated.Status != identity.StatusActive {
		t.Fatalf("expected active, got %v", updated.Status)
	}

	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "dormant@example.com",
		Password: "correct-password-123",
	}); err != nil {
		t.Fatalf("login after activation failed: %v", err)
	}

	if _, err := engine.ActivateUser(context.Background(), user.ID); !errors.Is(err, ErrStatusUnchanged) {
		t.Fatalf("expected ErrStatusUnchanged, got %v", err)
	}
}

func TestSuspendUserBlocksLogin(t *testing.T) {
	up := newMockUserProvider(t)
	user := seedActiveCustomer(t, up)
	engine := newTestEngine(t, up)

	if _, err := engine.SuspendUser(context.Background(), user.ID); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if _, err := engine.Login(context.Background(), LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	}); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}
