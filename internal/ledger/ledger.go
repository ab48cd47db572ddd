// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records which papers have been fully processed. The
// ledger is append-only: an identifier, once appended, is never removed,
// and an identifier present in the ledger is never processed again.
package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/cardnews/pkg/types"
)

// Backend names accepted in LedgerConfig.Backend.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

const (
	defaultSQLitePath = "data/ledger.db"
	defaultJSONPath   = "data/processed_papers.json"
)

// Entry is one completed paper.
type Entry struct {
	DOI         string    `json:"doi" yaml:"doi"`
	Title       string    `json:"title,omitempty" yaml:"title,omitempty"`
	RunID       string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	OutputDir   string    `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Set is the already-processed identifiers. Lookups ignore case and
// surrounding whitespace since DOIs are case-insensitive.
type Set map[string]struct{}

// Has reports whether doi is in the set.
func (s Set) Has(doi string) bool {
	_, ok := s[Key(doi)]
	return ok
}

// Add inserts doi.
func (s Set) Add(doi string) {
	s[Key(doi)] = struct{}{}
}

// Key normalizes a DOI for set membership.
func Key(doi string) string {
	return strings.ToLower(strings.TrimSpace(doi))
}

// Store is a durable ledger. Append must be durable when it returns.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context) ([]Entry, error)
	Close() error
}

// Open opens the backend selected by cfg. An empty backend means sqlite; an
// empty path means the backend's default location.
func Open(cfg types.LedgerConfig) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = defaultSQLitePath
		}
		return OpenSQLite(path)
	case BackendJSON:
		path := cfg.Path
		if path == "" {
			path = defaultJSONPath
		}
		return OpenJSON(path)
	}
	return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
}

// DefaultPath returns the file used by backend when no path is configured.
func DefaultPath(backend string) string {
	if strings.EqualFold(backend, BackendJSON) {
		return filepath.FromSlash(defaultJSONPath)
	}
	return filepath.FromSlash(defaultSQLitePath)
}

func validate(e Entry) error {
	if Key(e.DOI) == "" {
		return fmt.Errorf("ledger entry has no DOI")
	}
	return nil
}
