// Package token mints and verifies the two credential artifacts issued by
// the engine: signed HMAC-SHA256 access tokens and opaque refresh tokens.
//
// Access tokens are self-contained JWTs carrying the subject's identity and
// authorization claims. Refresh tokens carry no meaning at all; they are
// random values whose state lives in a refresh store.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/swapstation/authkit/identity"
)

const (
	// OpaqueTokenBytes is the entropy, in bytes, of a freshly minted
	// refresh token before encoding.
	OpaqueTokenBytes = 64

	// BearerTokenType is the token_type advertised alongside minted
	// access tokens.
	BearerTokenType = "Bearer"

	minSecretBytes = 32
)

// ErrTokenInvalid is returned for every verification failure: bad signature,
// wrong algorithm, expired or not-yet-valid token, wrong issuer or audience,
// malformed input. Callers get no further detail about which check failed.
var ErrTokenInvalid = errors.New("invalid token")

// Config carries the signing material and claim constants for a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret    []byte
	Issuer    string
	Audience  string
	AccessTTL time.Duration
}

// Claims is the access token payload. Custom claim names are stable wire
// identifiers; renaming them breaks every previously issued token.
//
// Claims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Claims struct {
	Email       string `json:"email"`
	FullName    string `json:"name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Role        string `json:"role"`
	RoleValue   int    `json:"role_value"`
	Status      string `json:"status"`
	StatusValue int    `json:"status_value"`
	jwt.RegisteredClaims
}

// Subject describes the account an access token is minted for.
//
// Subject instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Subject struct {
	ID       string
	Email    string
	FullName string
	Phone    string
	Role     identity.Role
	Status   identity.Status
}

// Info reports the issuance metadata of a minted access token.
//
// Info instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Info struct {
	TokenType        string    `json:"token_type"`
	TokenID          string    `json:"token_id"`
	ExpiresInMinutes int       `json:"expires_in_minutes"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	Issuer           string    `json:"issuer"`
	Audience         string    `json:"audience"`
}

// Manager signs and verifies access tokens with a single HMAC-SHA256 secret.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
	now    func() time.Time
}

// NewManager validates the signing configuration and returns a Manager.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}

	return &Manager{config: cfg, now: time.Now}, nil
}

// Mint signs an access token for the subject and returns the compact token
// string together with its issuance metadata. Every call produces a fresh
// token identifier (jti), so two tokens minted in the same instant are still
// distinguishable.
//
// Mint may return an error when input validation, dependency calls, or security checks fail.
// Mint does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Mint(s Subject) (string, Info, error) {
	if s.ID == "" {
		return "", Info{}, errors.New("subject id required")
	}

	issuedAt := m.now().UTC()
	expiresAt := issuedAt.Add(m.config.AccessTTL)
	tokenID := uuid.NewString()

	claims := Claims{
		Email:       s.Email,
		FullName:    s.FullName,
		Phone:       s.Phone,
		Role:        s.Role.String(),
		RoleValue:   int(s.Role),
		Status:      s.Status.String(),
		StatusValue: int(s.Status),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			ID:        tokenID,
			Issuer:    m.config.Issuer,
			Audience:  jwt.ClaimStrings{m.config.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", Info{}, err
	}

	info := Info{
		TokenType:        BearerTokenType,
		TokenID:          tokenID,
		ExpiresInMinutes: int(m.config.AccessTTL / time.Minute),
		IssuedAt:         issuedAt,
		ExpiresAt:        expiresAt,
		Issuer:           m.config.Issuer,
		Audience:         m.config.Audience,
	}

	return signed, info, nil
}

// Validate verifies the signature and every registered claim of the token
// with zero clock leeway, returning its claims on success. All failures
// collapse into [ErrTokenInvalid].
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Validate(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ParseExpired verifies the signature, issuer, and audience of a token while
// deliberately ignoring its expiry. It exists for re-issue flows that need
// the identity out of a token that just timed out. Tokens that never carried
// an expiry are rejected.
//
// ParseExpired may return an error when input validation, dependency calls, or security checks fail.
// ParseExpired does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) ParseExpired(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, m.keyFunc)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != m.config.Issuer {
		return nil, ErrTokenInvalid
	}
	if !containsAudience(claims.Audience, m.config.Audience) {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Subject extracts the subject claim without verifying the signature. The
// result must never be trusted for authorization decisions; it exists for
// logging and correlation only.
func (m *Manager) Subject(tokenStr string) (string, error) {
	claims, err := m.parseUnverified(tokenStr)
	if err != nil {
		return "", ErrTokenInvalid
	}
	if claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// IsExpired reports whether the token's expiry claim lies in the past,
// without verifying the signature. Malformed tokens and tokens without an
// expiry count as expired.
func (m *Manager) IsExpired(tokenStr string) bool {
	claims, err := m.parseUnverified(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return true
	}
	return !claims.ExpiresAt.Time.After(m.now())
}

func (m *Manager) parseUnverified(tokenStr string) (*Claims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenStr, &Claims{})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, errors.New("unexpected signing algorithm")
	}
	return m.config.Secret, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// NewOpaqueToken returns a fresh refresh token value: 64 bytes from
// crypto/rand, base64url encoded without padding. The value is
// indistinguishable from random and carries no embedded structure.
//
// NewOpaqueToken may return an error when input validation, dependency calls, or security checks fail.
// NewOpaqueToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewOpaqueToken() (string, error) {
	raw := make([]byte, OpaqueTokenBytes)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
