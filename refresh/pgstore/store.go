// Package pgstore provides the PostgreSQL-backed refresh token store for
// deployments that already run Postgres and do not want a second stateful
// dependency. Revocation is a conditional UPDATE, so the Active to Revoked
// transition is decided by the database and stays atomic under concurrent
// rotation.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/swapstation/authkit/refresh"
)

const uniqueViolationCode = "23505"

// Store implements [refresh.Store] on a PostgreSQL database.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an existing database handle.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open connects to the database via the pgx stdlib driver and verifies the
// connection before returning a Store.
//
// Open may return an error when input validation, dependency calls, or security checks fail.
// Open does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return New(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists a new Active record.
func (s *Store) Save(ctx context.Context, rec refresh.Record) error {
	if !rec.ExpiresAt.After(s.now()) {
		return fmt.Errorf("refresh record expires in the past")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_hash, user_id, issued_at, expires_at) VALUES ($1, $2, $3, $4)`,
		refresh.HashToken(rec.Token), rec.UserID, rec.IssuedAt, rec.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return refresh.ErrDuplicate
		}
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return nil
}

// Validate reports whether the token is currently Active.
func (s *Store) Validate(ctx context.Context, token string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token_hash = $1 AND NOT revoked AND expires_at > $2)`,
		refresh.HashToken(token), s.now(),
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return active, nil
}

// Owner returns the holder of an unexpired token, revoked or not. Revoked
// records stay resolvable until expiry so that a later Revoke reporting
// false can be recognized as reuse of a rotated token.
func (s *Store) Owner(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id FROM refresh_tokens WHERE token_hash = $1 AND expires_at > $2`,
		refresh.HashToken(token), s.now(),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", refresh.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return userID, nil
}

// Revoke retires the token through a conditional UPDATE, reporting whether
// this call performed the Active to Revoked transition. Row locking inside
// Postgres guarantees at most one caller sees a row count of one.
func (s *Store) Revoke(ctx context.Context, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1 AND NOT revoked AND expires_at > $2`,
		refresh.HashToken(token), s.now(),
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// RevokeAllForUser retires every Active token of the user.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked AND expires_at > $2`,
		userID, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// Sweep deletes every record whose expiry has passed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`,
		s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return int(n), nil
}
