package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	phcAlgorithm = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPasswordLen        = 8
)

// ErrPasswordTooShort is returned by Hash for passwords under 8 bytes.
var ErrPasswordTooShort = errors.New("password must be at least 8 bytes")

// Params are the argon2id cost parameters of a Hasher.
//
// Params instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Params struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the cost parameters used when the caller does not
// override them: 64 MiB, 3 iterations, parallelism 2.
//
// DefaultParams may return an error when input validation, dependency calls, or security checks fail.
// DefaultParams does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultParams() Params {
	return Params{
		MemoryKB:    64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher produces and checks argon2id password hashes.
//
// Hasher instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Hasher struct {
	params Params
}

// NewHasher validates the cost parameters and returns a Hasher.
//
// NewHasher may return an error when input validation, dependency calls, or security checks fail.
// NewHasher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.MemoryKB < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KB")
	case p.Iterations < 1:
		return nil, errors.New("password iterations must be >= 1")
	case p.Parallelism < 1:
		return nil, errors.New("password parallelism must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case p.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{params: p}, nil
}

// Hash derives an argon2id hash of the password with a fresh random salt
// and returns it as a PHC string. Passwords are hashed byte-for-byte as
// provided; no Unicode normalization happens here.
//
// Hash may return an error when input validation, dependency calls, or security checks fail.
// Hash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrPasswordTooShort
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcAlgorithm,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether the password matches the PHC-encoded hash. The
// stored parameters drive the derivation, so hashes created under older
// cost settings keep verifying. Comparison is constant time.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	stored, salt, key, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		salt,
		stored.Iterations,
		stored.MemoryKB,
		stored.Parallelism,
		uint32(len(key)),
	)

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

// NeedsRehash reports whether the hash was produced under weaker cost
// parameters than the Hasher currently carries. Callers typically rehash
// on the next successful login.
//
// NeedsRehash may return an error when input validation, dependency calls, or security checks fail.
// NeedsRehash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	stored, _, key, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	if stored.MemoryKB < h.params.MemoryKB ||
		stored.Iterations < h.params.Iterations ||
		stored.Parallelism < h.params.Parallelism ||
		uint32(len(key)) != h.params.KeyLength {
		return true, nil
	}
	return false, nil
}

func decodePHC(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, errors.New("invalid password hash format")
	}
	if parts[1] != phcAlgorithm {
		return p, nil, nil, errors.New("unsupported password hash algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, errors.New("invalid argon2 version field")
	}
	if version != argon2.Version {
		return p, nil, nil, errors.New("unsupported argon2 version")
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKB, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, errors.New("invalid argon2 parameter field")
	}
	if p.MemoryKB < minMemoryKB || p.Iterations < 1 || p.Parallelism < 1 {
		return p, nil, nil, errors.New("argon2 parameters below supported minimums")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errors.New("invalid salt encoding")
	}
	if uint32(len(salt)) < minSaltLength {
		return p, nil, nil, errors.New("invalid salt length")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return p, nil, nil, errors.New("invalid key encoding")
	}
	if len(key) == 0 {
		return p, nil, nil, errors.New("invalid key length")
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
