package token

import (
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/swapstation/authkit/identity"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Secret:    testSecret,
		Issuer:    "swapstation",
		Audience:  "swapstation-clients",
		AccessTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func testSubject() Subject {
	return Subject{
		ID:       "u-100",
		Email:    "rider@example.com",
		FullName: "Test Rider",
		Phone:    "+84900000001",
		Role:     identity.RoleCustomer,
		Status:   identity.StatusActive,
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"short secret", Config{Secret: []byte("short"), Issuer: "i", Audience: "a", AccessTTL: time.Hour}},
		{"missing issuer", Config{Secret: testSecret, Audience: "a", AccessTTL: time.Hour}},
		{"missing audience", Config{Secret: testSecret, Issuer: "i", AccessTTL: time.Hour}},
		{"zero ttl", Config{Secret: testSecret, Issuer: "i", Audience: "a"}},
	}

	for _, c := range cases {
		if _, err := NewManager(c.cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", c.name)
		}
	}
}

func TestMintValidateRoundTrip(t *testing.T) {
	m := newTestManager(t)
	sub := testSubject()

	signed, info, err := m.Mint(sub)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if info.TokenType != BearerTokenType {
		t.Fatalf("token type = %q", info.TokenType)
	}
	if info.ExpiresInMinutes != 60 {
		t.Fatalf("expires in minutes = %d", info.ExpiresInMinutes)
	}
	if !info.ExpiresAt.Equal(info.IssuedAt.Add(time.Hour)) {
		t.Fatal("expiry must be issued-at plus TTL")
	}

	claims, err := m.Validate(signed)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != sub.ID {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if claims.Email != sub.Email || claims.FullName != sub.FullName || claims.Phone != sub.Phone {
		t.Fatal("identity claims must round trip")
	}
	if claims.Role != "Customer" || claims.RoleValue != 1 {
		t.Fatalf("role claims = %q/%d", claims.Role, claims.RoleValue)
	}
	if claims.Status != "Active" || claims.StatusValue != 1 {
		t.Fatalf("status claims = %q/%d", claims.Status, claims.StatusValue)
	}
	if claims.ID != info.TokenID {
		t.Fatal("jti must match reported token id")
	}
}

func TestMintProducesUniqueTokenIDs(t *testing.T) {
	m := newTestManager(t)

	_, first, err := m.Mint(testSubject())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, second, err := m.Mint(testSubject())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if first.TokenID == second.TokenID {
		t.Fatal("token ids must be unique per mint")
	}
}

func TestValidateRejectsTampering(t *testing.T) {
	m := newTestManager(t)

	signed, _, err := m.Mint(testSubject())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Flip one character of the payload segment.
	parts := strings.Split(signed, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := m.Validate(tampered); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateRejectsForeignKeyAndAlgorithm(t *testing.T) {
	m := newTestManager(t)

	otherKey := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u-100",
			Issuer:    "swapstation",
			Audience:  gjwt.ClaimStrings{"swapstation-clients"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	foreign, err := otherKey.SignedString([]byte("another-secret-another-secret-32"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Validate(foreign); err != ErrTokenInvalid {
		t.Fatalf("foreign key: expected ErrTokenInvalid, got %v", err)
	}

	unsigned := gjwt.NewWithClaims(gjwt.SigningMethodNone, Claims{
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u-100",
			Issuer:    "swapstation",
			Audience:  gjwt.ClaimStrings{"swapstation-clients"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	none, err := unsigned.SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Validate(none); err != ErrTokenInvalid {
		t.Fatalf("alg none: expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateRejectsWrongIssuerAndAudience(t *testing.T) {
	m := newTestManager(t)

	mint := func(issuer, audience string) string {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
			RegisteredClaims: gjwt.RegisteredClaims{
				Subject:   "u-100",
				Issuer:    issuer,
				Audience:  gjwt.ClaimStrings{audience},
				IssuedAt:  gjwt.NewNumericDate(time.Now()),
				ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		signed, err := tok.SignedString(testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}

	if _, err := m.Validate(mint("elsewhere", "swapstation-clients")); err != ErrTokenInvalid {
		t.Fatalf("wrong issuer: expected ErrTokenInvalid, got %v", err)
	}
	if _, err := m.Validate(mint("swapstation", "other-clients")); err != ErrTokenInvalid {
		t.Fatalf("wrong audience: expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateEnforcesExpiryWithZeroLeeway(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	signed, _, err := m.Mint(testSubject())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	// One second before expiry the token is still good.
	m.now = func() time.Time { return base.Add(time.Hour - time.Second) }
	if _, err := m.Validate(signed); err != nil {
		t.Fatalf("token rejected before expiry: %v", err)
	}

	// One second past expiry it is rejected. No grace window.
	m.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	if _, err := m.Validate(signed); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid after expiry, got %v", err)
	}
}

func TestParseExpired(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	signed, _, err := m.Mint(testSubject())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	m.now = func() time.Time { return base.Add(48 * time.Hour) }

	if _, err := m.Validate(signed); err != ErrTokenInvalid {
		t.Fatal("sanity: token should be expired")
	}

	claims, err := m.ParseExpired(signed)
	if err != nil {
		t.Fatalf("parse expired: %v", err)
	}
	if claims.Subject != "u-100" {
		t.Fatalf("subject = %q", claims.Subject)
	}

	// Signature still matters.
	if _, err := m.ParseExpired(signed[:len(signed)-3] + "xxx"); err != ErrTokenInvalid {
		t.Fatalf("tampered: expected ErrTokenInvalid, got %v", err)
	}

	// Issuer still matters.
	foreign := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u-100",
			Issuer:    "elsewhere",
			Audience:  gjwt.ClaimStrings{"swapstation-clients"},
			ExpiresAt: gjwt.NewNumericDate(base),
		},
	})
	foreignSigned, _ := foreign.SignedString(testSecret)
	if _, err := m.ParseExpired(foreignSigned); err != ErrTokenInvalid {
		t.Fatalf("wrong issuer: expected ErrTokenInvalid, got %v", err)
	}

	// A token without exp is not accepted even here.
	noExp := gjwt.NewWithClaims(gjwt.SigningMethodHS256, Claims{
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:  "u-100",
			Issuer:   "swapstation",
			Audience: gjwt.ClaimStrings{"swapstation-clients"},
		},
	})
	noExpSigned, _ := noExp.SignedString(testSecret)
	if _, err := m.ParseExpired(noExpSigned); err != ErrTokenInvalid {
		t.Fatalf("missing exp: expected ErrTokenInvalid, got %v", err)
	}
}

func TestSubjectAndIsExpiredUnverified(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	signed, _, err := m.Mint(testSubject())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	sub, err := m.Subject(signed)
	if err != nil || sub != "u-100" {
		t.Fatalf("subject = %q, %v", sub, err)
	}

	if m.IsExpired(signed) {
		t.Fatal("fresh token must not report expired")
	}
	m.now = func() time.Time { return base.Add(2 * time.Hour) }
	if !m.IsExpired(signed) {
		t.Fatal("stale token must report expired")
	}

	if _, err := m.Subject("not-a-token"); err != ErrTokenInvalid {
		t.Fatalf("garbage input: expected ErrTokenInvalid, got %v", err)
	}
	if !m.IsExpired("not-a-token") {
		t.Fatal("garbage input must count as expired")
	}
}

func TestNewOpaqueToken(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("new opaque token: %v", err)
		}
		if len(tok) != 86 { // 64 bytes, base64url, no padding
			t.Fatalf("token length = %d", len(tok))
		}
		if _, dup := seen[tok]; dup {
			t.Fatal("duplicate opaque token")
		}
		seen[tok] = struct{}{}
	}
}
