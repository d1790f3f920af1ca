// Package store opens the SQLite database used for the request journal and
// runs versioned schema migrations against it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrNewerSchema is returned when the database was last written by a newer
// ssatrend binary than the one running.
var ErrNewerSchema = errors.New("database was written by a newer ssatrend")

// Migration is one schema step for a component. Versions are applied in
// ascending order and recorded so that each runs at most once.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// DB is a SQLite connection with migration bookkeeping.
type DB struct {
	db *sql.DB

	mu   sync.Mutex
	once sync.Once
	err  error
}

// Open opens or creates the database at path. The connection pool is capped
// at a single connection and WAL mode is enabled.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite takes pragmas as statements, not DSN parameters.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return &DB{db: db}, nil
}

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Tx runs fn in a transaction, committing on nil and rolling back otherwise.
func (d *DB) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// Migrate applies the migrations of component that have not run yet. Each
// migration commits together with its bookkeeping row.
func (d *DB) Migrate(ctx context.Context, component string, migrations []Migration) error {
	d.once.Do(func() {
		_, d.err = d.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				component   TEXT     NOT NULL,
				version     INTEGER  NOT NULL,
				description TEXT     NOT NULL,
				applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (component, version)
			)`)
	})
	if d.err != nil {
		return fmt.Errorf("create schema_migrations: %w", d.err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var current int
	err := d.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE component = ?",
		component,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("read %s schema version: %w", component, err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		err := d.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (component, version, description) VALUES (?, ?, ?)",
				component, m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", component, m.Version, m.Description, err)
		}
		current = m.Version
	}
	return nil
}

// CheckVersion refuses to open a database last written by a newer binary and
// otherwise records binary as the latest writer. "dev" builds always pass.
func (d *DB) CheckVersion(ctx context.Context, binary string) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS app_meta (
			id          INTEGER  PRIMARY KEY CHECK (id = 1),
			app_version TEXT     NOT NULL,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("create app_meta: %w", err)
	}

	var stored string
	err = d.db.QueryRowContext(ctx, "SELECT app_version FROM app_meta WHERE id = 1").Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return d.setVersion(ctx, binary)
	case err != nil:
		return fmt.Errorf("query app version: %w", err)
	}

	if stored == "dev" || binary == "dev" {
		return d.setVersion(ctx, binary)
	}
	switch cmp := semver.Compare(canonical(binary), canonical(stored)); {
	case cmp < 0:
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, binary)
	case cmp > 0:
		return d.setVersion(ctx, binary)
	}
	return nil
}

func (d *DB) setVersion(ctx context.Context, v string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO app_meta (id, app_version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET app_version = excluded.app_version, updated_at = CURRENT_TIMESTAMP`,
		v,
	)
	if err != nil {
		return fmt.Errorf("record app version: %w", err)
	}
	return nil
}

// canonical adds the "v" prefix semver expects.
func canonical(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}
