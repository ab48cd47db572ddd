// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rotisserie/eris"
)

// SQLiteStore keeps the ledger in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and its schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "ledger: creating directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000")
	if err != nil {
		return nil, eris.Wrap(err, "ledger: opening database")
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS processed (
			doi_key TEXT PRIMARY KEY,
			doi TEXT NOT NULL,
			title TEXT,
			run_id TEXT,
			output_dir TEXT,
			completed_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_completed_at ON processed(completed_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return eris.Wrap(err, "ledger: executing schema statement")
		}
	}
	return nil
}

// Load returns every recorded DOI.
func (s *SQLiteStore) Load(ctx context.Context) (Set, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doi_key FROM processed`)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: loading")
	}
	defer rows.Close()

	set := make(Set)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "ledger: scanning row")
		}
		set[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "ledger: iterating rows")
	}
	return set, nil
}

// Append records e. Appending a DOI that is already present is a no-op.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	completed := e.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed (doi_key, doi, title, run_id, output_dir, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(doi_key) DO NOTHING`,
		Key(e.DOI), strings.TrimSpace(e.DOI), e.Title, e.RunID, e.OutputDir,
		completed.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return eris.Wrapf(err, "ledger: appending %s", e.DOI)
	}
	return nil
}

// List returns every entry in completion order.
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doi, title, run_id, output_dir, completed_at FROM processed ORDER BY completed_at, doi`)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: listing")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                    Entry
			title, runID, outDir sql.NullString
			completed            string
		)
		if err := rows.Scan(&e.DOI, &title, &runID, &outDir, &completed); err != nil {
			return nil, eris.Wrap(err, "ledger: scanning row")
		}
		e.Title = title.String
		e.RunID = runID.String
		e.OutputDir = outDir.String
		if t, err := time.Parse(time.RFC3339Nano, completed); err == nil {
			e.CompletedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "ledger: iterating rows")
	}
	return entries, nil
}
