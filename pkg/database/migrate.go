package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the SQL files shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// MigrationStatus reports whether one migration has been applied.
type MigrationStatus struct {
	Version   string
	Applied   bool
	AppliedAt time.Time
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
)`

// Migrate executes every pending *.up.sql file in lexical order and returns
// the versions it applied.
func Migrate(ctx context.Context, db *sql.DB, migrations fs.FS) ([]string, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	versions, err := listVersions(migrations)
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, version := range versions {
		if _, ok := applied[version]; ok {
			continue
		}
		body, err := fs.ReadFile(migrations, version+".up.sql")
		if err != nil {
			return done, fmt.Errorf("reading migration %s: %w", version, err)
		}

		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)",
				version, time.Now().UTC(),
			)
			return err
		})
		if err != nil {
			return done, fmt.Errorf("executing migration %s: %w", version, err)
		}
		done = append(done, version)
	}
	return done, nil
}

// Rollback reverts applied migrations newest first. steps <= 0 reverts all.
func Rollback(ctx context.Context, db *sql.DB, migrations fs.FS, steps int) ([]string, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	versions := make([]string, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	if steps > 0 && steps < len(versions) {
		versions = versions[:steps]
	}

	var reverted []string
	for _, version := range versions {
		body, err := fs.ReadFile(migrations, version+".down.sql")
		if err != nil {
			return reverted, fmt.Errorf("reading rollback %s: %w", version, err)
		}
		err = inTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, string(body)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = $1", version)
			return err
		})
		if err != nil {
			return reverted, fmt.Errorf("reverting migration %s: %w", version, err)
		}
		reverted = append(reverted, version)
	}
	return reverted, nil
}

// Status lists every known migration and whether it is applied.
func Status(ctx context.Context, db *sql.DB, migrations fs.FS) ([]MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}
	versions, err := listVersions(migrations)
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(versions))
	for _, v := range versions {
		at, ok := applied[v]
		out = append(out, MigrationStatus{Version: v, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

func listVersions(migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(e.Name(), ".up.sql"))
	}
	sort.Strings(versions)
	return versions, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("loading applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var (
			version string
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
