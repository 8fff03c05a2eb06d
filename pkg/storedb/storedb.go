// Package storedb opens per-module sqlite databases and applies their
// schema migrations.
package storedb

import (
	"database/sql"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/jingkaihe/matchlock-go/internal/errx"
)

// Migration is one versioned schema step. Versions must be unique per
// module and are applied in ascending order.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Path is the database file location. Parent directories are created.
	Path string
	// Module namespaces the migration ledger so multiple modules can share
	// one database file.
	Module string
	// Migrations are applied in version order inside a transaction each.
	Migrations []Migration
}

// Open opens (creating if needed) the database at opts.Path and applies any
// unapplied migrations for opts.Module.
func Open(opts OpenOptions) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, errx.Wrap(ErrCreateDir, err)
	}

	dsn := opts.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errx.Wrap(ErrOpenDB, err)
	}

	// sqlite allows one writer; serialize access through a single conn to
	// avoid SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if err := migrate(db, opts.Module, opts.Migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB, module string, migrations []Migration) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
  module TEXT NOT NULL,
  version INTEGER NOT NULL,
  name TEXT NOT NULL,
  applied_at TEXT NOT NULL DEFAULT (datetime('now')),
  PRIMARY KEY (module, version)
)`); err != nil {
		return errx.Wrap(ErrMigrate, err)
	}

	ordered := append([]Migration(nil), migrations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	for _, m := range ordered {
		applied, err := migrationApplied(db, module, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return errx.Wrap(ErrMigrate, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return errx.With(ErrMigrate, " %s v%d (%s): %w", module, m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (module, version, name) VALUES (?, ?, ?)`,
			module, m.Version, m.Name,
		); err != nil {
			tx.Rollback()
			return errx.Wrap(ErrMigrate, err)
		}
		if err := tx.Commit(); err != nil {
			return errx.Wrap(ErrMigrate, err)
		}
	}
	return nil
}

func migrationApplied(db *sql.DB, module string, version int) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM schema_migrations WHERE module = ? AND version = ?`,
		module, version,
	).Scan(&count)
	if err != nil {
		return false, errx.Wrap(ErrMigrate, err)
	}
	return count > 0, nil
}
