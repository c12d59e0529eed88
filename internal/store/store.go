// Package store records build history in SQLite. History is observability
// only: the recompilation decision reads the manifest, never this database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite data access layer for build history.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the history tables. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS builds (
  id           INTEGER PRIMARY KEY,
  root         TEXT NOT NULL,
  started_at   TIMESTAMP NOT NULL,
  duration_ms  INTEGER NOT NULL,
  total        INTEGER NOT NULL,
  compiled     INTEGER NOT NULL,
  failed       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS build_files (
  id        INTEGER PRIMARY KEY,
  build_id  INTEGER NOT NULL REFERENCES builds(id),
  path      TEXT NOT NULL,
  status    TEXT NOT NULL,
  error     TEXT
);

CREATE INDEX IF NOT EXISTS idx_build_files_build ON build_files(build_id);
`

// Build is one recorded build invocation.
type Build struct {
	ID        int64
	Root      string
	StartedAt time.Time
	Duration  time.Duration
	Total     int // active sources considered
	Compiled  int
	Failed    int
}

// BuildFile is one compiled or failed path within a build.
type BuildFile struct {
	ID      int64
	BuildID int64
	Path    string
	Status  string // "compiled" or "failed"
	Error   string
}

// RecordBuild inserts a build row and its per-file rows in one transaction.
func (s *Store) RecordBuild(b *Build, files []BuildFile) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO builds (root, started_at, duration_ms, total, compiled, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.Root, b.StartedAt, b.Duration.Milliseconds(), b.Total, b.Compiled, b.Failed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert build: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("build id: %w", err)
	}

	for _, f := range files {
		if _, err := tx.Exec(
			`INSERT INTO build_files (build_id, path, status, error) VALUES (?, ?, ?, ?)`,
			id, f.Path, f.Status, f.Error,
		); err != nil {
			return 0, fmt.Errorf("insert build file %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// RecentBuilds returns the most recent builds, newest first.
func (s *Store) RecentBuilds(limit int) ([]*Build, error) {
	rows, err := s.db.Query(
		`SELECT id, root, started_at, duration_ms, total, compiled, failed
		 FROM builds ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		b := &Build{}
		var ms int64
		if err := rows.Scan(&b.ID, &b.Root, &b.StartedAt, &ms, &b.Total, &b.Compiled, &b.Failed); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		b.Duration = time.Duration(ms) * time.Millisecond
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// FilesForBuild returns the per-file rows for a build id.
func (s *Store) FilesForBuild(buildID int64) ([]*BuildFile, error) {
	rows, err := s.db.Query(
		`SELECT id, build_id, path, status, COALESCE(error, '')
		 FROM build_files WHERE build_id = ? ORDER BY path`, buildID,
	)
	if err != nil {
		return nil, fmt.Errorf("query build files: %w", err)
	}
	defer rows.Close()

	var files []*BuildFile
	for rows.Next() {
		f := &BuildFile{}
		if err := rows.Scan(&f.ID, &f.BuildID, &f.Path, &f.Status, &f.Error); err != nil {
			return nil, fmt.Errorf("scan build file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
