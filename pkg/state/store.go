// Package state keeps a local journal of sandbox sessions so the last VM
// id survives process restarts and can still be removed.
package state

import (
	"database/sql"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jingkaihe/matchlock-go/internal/errx"
	"github.com/jingkaihe/matchlock-go/pkg/storedb"
)

const sessionsModule = "sessions"

// timeLayout is fixed-width so lexicographic ordering in SQL matches
// chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Session statuses.
const (
	StatusRunning = "running"
	StatusClosed  = "closed"
	StatusRemoved = "removed"
)

// Session is one recorded sandbox lifetime.
type Session struct {
	ID        string
	VMID      string
	Image     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store records sandbox sessions in a sqlite database under dir.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the session journal in dir.
func Open(dir string) (*Store, error) {
	db, err := storedb.Open(storedb.OpenOptions{
		Path:       filepath.Join(dir, "sessions.db"),
		Module:     sessionsModule,
		Migrations: sessionMigrations(),
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func sessionMigrations() []storedb.Migration {
	return []storedb.Migration{
		{
			Version: 1,
			Name:    "create_sessions",
			SQL: `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  vm_id TEXT NOT NULL,
  image TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_vm_id ON sessions (vm_id);
`,
		},
	}
}

// RecordCreate journals a freshly created VM as running.
func (s *Store) RecordCreate(vmID, image string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, vm_id, image, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), vmID, image, StatusRunning, now, now,
	)
	if err != nil {
		return errx.Wrap(ErrRecordSession, err)
	}
	return nil
}

// MarkClosed transitions every session recorded for the VM to closed.
func (s *Store) MarkClosed(vmID string) error {
	return s.setStatus(vmID, StatusClosed)
}

// MarkRemoved transitions every session recorded for the VM to removed.
func (s *Store) MarkRemoved(vmID string) error {
	return s.setStatus(vmID, StatusRemoved)
}

func (s *Store) setStatus(vmID, status string) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, updated_at = ? WHERE vm_id = ?`,
		status, now, vmID,
	)
	if err != nil {
		return errx.Wrap(ErrUpdateSession, err)
	}
	return nil
}

// LastVM returns the most recently created session that has not been
// removed, or nil when none exists.
func (s *Store) LastVM() (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, vm_id, image, status, created_at, updated_at
		 FROM sessions WHERE status != ? ORDER BY created_at DESC LIMIT 1`,
		StatusRemoved,
	)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errx.Wrap(ErrQuerySession, err)
	}
	return session, nil
}

// List returns all journaled sessions, most recent first.
func (s *Store) List() ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, vm_id, image, status, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, errx.Wrap(ErrQuerySession, err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errx.Wrap(ErrQuerySession, err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.Wrap(ErrQuerySession, err)
	}
	return sessions, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var session Session
	var createdAt, updatedAt string
	if err := row.Scan(&session.ID, &session.VMID, &session.Image, &session.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	session.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	session.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &session, nil
}
