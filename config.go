package authkit

import (
	"errors"
	"time"
)

// Config defines a public type used by authkit APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	Refresh  RefreshConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// JWTConfig defines a public type used by authkit APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	// Secret is the HMAC-SHA256 signing key. At least 32 bytes.
	Secret   []byte
	Issuer   string
	Audience string
	// AccessTTL bounds the lifetime of minted access tokens.
	AccessTTL time.Duration
}

// PasswordConfig defines a public type used by authkit APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	MemoryKB    uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// RefreshConfig defines a public type used by authkit APIs.
//
// RefreshConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshConfig struct {
	// TTL bounds the lifetime of issued refresh tokens.
	TTL time.Duration
	// RedisPrefix namespaces refresh keys when the Redis store is used.
	RedisPrefix string
	// SweepInterval is how often expired records are removed. Zero
	// disables the background sweeper; Sweep can still be called
	// manually through the store.
	SweepInterval time.Duration
}

// AuditConfig defines a public type used by authkit APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authkit APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Issuer:    "authkit",
			Audience:  "authkit-clients",
			AccessTTL: 60 * time.Minute,
		},
		Password: PasswordConfig{
			MemoryKB:    64 * 1024,
			Iterations:  3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Refresh: RefreshConfig{
			TTL:           7 * 24 * time.Hour,
			RedisPrefix:   "authkit",
			SweepInterval: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for values the engine cannot run with.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT.Secret must be at least 32 bytes")
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT.Issuer must be set")
	}
	if c.JWT.Audience == "" {
		return errors.New("JWT.Audience must be set")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be positive")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh.TTL must be positive")
	}
	if c.Refresh.TTL < c.JWT.AccessTTL {
		return errors.New("Refresh.TTL must not be shorter than JWT.AccessTTL")
	}
	if c.Refresh.SweepInterval < 0 {
		return errors.New("Refresh.SweepInterval must not be negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be positive when audit is enabled")
	}
	return nil
}
