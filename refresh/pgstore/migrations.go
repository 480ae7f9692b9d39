package pgstore

import (
	"context"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the refresh_tokens schema up to date. It is safe to call
// on every startup; goose skips migrations that already ran.
//
// Migrate may return an error when input validation, dependency calls, or security checks fail.
// Migrate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
