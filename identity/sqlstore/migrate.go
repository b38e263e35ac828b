package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ggoodman/tiergate/identity/sqlstore/migrations"
	migrate "github.com/rubenv/sql-migrate"
)

// migrateDialect maps a driver name onto the sql-migrate dialect that
// records applied migrations.
func migrateDialect(driver string) (string, error) {
	switch driver {
	case DriverSQLite:
		return "sqlite3", nil
	case DriverPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// applyMigrations runs the pending Up sections of the embedded migrations
// under root. Applied migrations are tracked in gorp_migrations.
func applyMigrations(ctx context.Context, db *sql.DB, driver, root string) (int, error) {
	d, err := migrateDialect(driver)
	if err != nil {
		return 0, err
	}
	src := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations.FS,
		Root:       root,
	}
	n, err := migrate.ExecContext(ctx, db, d, src, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply %s migrations: %w", root, err)
	}
	return n, nil
}
