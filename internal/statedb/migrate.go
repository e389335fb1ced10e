package statedb

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
var migrationsFS embed.FS

// migration is one embedded schema change, identified by the shared prefix
// of its .up.sql/.down.sql pair.
type migration struct {
	id      string
	upSQL   string
	downSQL string
}

// appliedMigration records a migration that has already run against this
// database.
type appliedMigration struct {
	id        string
	appliedAt time.Time
}

// migrator applies the embedded schema migrations to the thread index
// database, tracking progress in a schema_migrations table. Adapted from
// the session store's migration runner: same embed-glob-and-sort loading,
// same up/down/status shape, rewritten for SQLite placeholders and types.
type migrator struct {
	db         *sql.DB
	migrations []migration
}

func newMigrator(db *sql.DB) (*migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("statedb: db is required")
	}
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}
	return &migrator{db: db, migrations: migrations}, nil
}

func (m *migrator) ensureSchema(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("statedb: create schema_migrations: %w", err)
	}
	return nil
}

// up applies every pending migration in order.
func (m *migrator) up(ctx context.Context) ([]string, error) {
	if err := m.ensureSchema(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedIDs(ctx)
	if err != nil {
		return nil, err
	}

	var appliedIDs []string
	for _, mg := range m.migrations {
		if applied[mg.id] {
			continue
		}
		if strings.TrimSpace(mg.upSQL) == "" {
			return appliedIDs, fmt.Errorf("statedb: missing up migration for %s", mg.id)
		}
		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return appliedIDs, fmt.Errorf("statedb: begin migration %s: %w", mg.id, err)
		}
		if _, err := tx.ExecContext(ctx, mg.upSQL); err != nil {
			_ = tx.Rollback()
			return appliedIDs, fmt.Errorf("statedb: apply migration %s: %w", mg.id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (id, applied_at) VALUES (?, ?)`, mg.id, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return appliedIDs, fmt.Errorf("statedb: record migration %s: %w", mg.id, err)
		}
		if err := tx.Commit(); err != nil {
			return appliedIDs, fmt.Errorf("statedb: commit migration %s: %w", mg.id, err)
		}
		appliedIDs = append(appliedIDs, mg.id)
	}
	return appliedIDs, nil
}

func (m *migrator) appliedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT id FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("statedb: query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("statedb: scan schema_migrations: %w", err)
		}
		applied[id] = true
	}
	return applied, rows.Err()
}

func loadMigrations() ([]migration, error) {
	paths, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("statedb: list migrations: %w", err)
	}

	entries := map[string]*migration{}
	for _, path := range paths {
		base := strings.TrimPrefix(path, "migrations/")
		var suffix string
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			suffix = ".up.sql"
		case strings.HasSuffix(base, ".down.sql"):
			suffix = ".down.sql"
		default:
			continue
		}
		id := strings.TrimSuffix(base, suffix)
		entry := entries[id]
		if entry == nil {
			entry = &migration{id: id}
			entries[id] = entry
		}
		data, err := migrationsFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("statedb: read migration %s: %w", path, err)
		}
		if suffix == ".up.sql" {
			entry.upSQL = string(data)
		} else {
			entry.downSQL = string(data)
		}
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	migrations := make([]migration, 0, len(ids))
	for _, id := range ids {
		migrations = append(migrations, *entries[id])
	}
	return migrations, nil
}
