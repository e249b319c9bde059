package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"softcascade/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies embedded migrations that were not applied yet, each in its
// own transaction, in file name order.
func Migrate(ctx context.Context, txManager *TxManager) error {
	q := txManager.GetQuerier(ctx)
	if _, err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sys_schema_migrations (
			name        TEXT PRIMARY KEY,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		applied := false
		err = txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			q := txManager.GetQuerier(ctx)

			var exists bool
			if err := q.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM sys_schema_migrations WHERE name = $1)`, name,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check %s: %w", name, err)
			}
			if exists {
				return nil
			}

			if _, err := q.Exec(ctx, string(body)); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
			if _, err := q.Exec(ctx, `INSERT INTO sys_schema_migrations (name) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("record %s: %w", name, err)
			}
			applied = true
			return nil
		})
		if err != nil {
			return err
		}
		if applied {
			logger.Info(ctx, "migration applied", "name", name)
		}
	}
	return nil
}
