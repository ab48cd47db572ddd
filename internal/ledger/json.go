// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// JSONStore keeps the ledger as a JSON array of DOI strings, the
// processed_papers.json history format. Only DOIs are persisted.
type JSONStore struct {
	path string

	mu   sync.Mutex
	dois []string
}

// OpenJSON reads the history file at path. A missing file is an empty
// ledger.
func OpenJSON(path string) (*JSONStore, error) {
	s := &JSONStore{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: reading %s", path)
	}
	if strings.TrimSpace(string(data)) == "" {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.dois); err != nil {
		return nil, eris.Wrapf(err, "ledger: parsing %s", path)
	}
	return s, nil
}

// Path returns the history file.
func (s *JSONStore) Path() string { return s.path }

// Close is a no-op; every Append is already on disk.
func (s *JSONStore) Close() error { return nil }

// Load returns every recorded DOI.
func (s *JSONStore) Load(_ context.Context) (Set, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(Set, len(s.dois))
	for _, d := range s.dois {
		set.Add(d)
	}
	return set, nil
}

// Append adds e.DOI and rewrites the file. Appending a DOI that is already
// present is a no-op.
func (s *JSONStore) Append(_ context.Context, e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(e.DOI)
	for _, d := range s.dois {
		if Key(d) == key {
			return nil
		}
	}
	next := append(append([]string(nil), s.dois...), strings.TrimSpace(e.DOI))
	if err := writeFileAtomic(s.path, next); err != nil {
		return err
	}
	s.dois = next
	return nil
}

// List returns the recorded DOIs in append order.
func (s *JSONStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, len(s.dois))
	for i, d := range s.dois {
		entries[i] = Entry{DOI: d}
	}
	return entries, nil
}

// writeFileAtomic writes dois to a temp file in the target directory, syncs
// it, and renames it over path.
func writeFileAtomic(path string, dois []string) error {
	data, err := json.MarshalIndent(dois, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ledger: encoding")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "ledger: creating directory %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return eris.Wrap(err, "ledger: creating temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return eris.Wrap(err, "ledger: writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrap(err, "ledger: syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "ledger: closing temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "ledger: replacing %s", path)
	}
	return nil
}
