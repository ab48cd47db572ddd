// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cardnews/pkg/types"
)

func openBoth(t *testing.T) map[string]func(path string) (Store, error) {
	t.Helper()
	return map[string]func(string) (Store, error){
		"sqlite": func(p string) (Store, error) { return OpenSQLite(p) },
		"json":   func(p string) (Store, error) { return OpenJSON(p) },
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	for name, open := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", "ledger."+name)

			s, err := open(path)
			require.NoError(t, err)
			set, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, set)

			require.NoError(t, s.Append(ctx, Entry{DOI: "10.1/A", Title: "A", RunID: "run-1"}))
			require.NoError(t, s.Append(ctx, Entry{DOI: "10.1/b"}))
			require.NoError(t, s.Close())

			s, err = open(path)
			require.NoError(t, err)
			defer s.Close()
			set, err = s.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, set, 2)
			assert.True(t, set.Has("10.1/a"), "lookups ignore case")
			assert.True(t, set.Has(" 10.1/B "))
			assert.False(t, set.Has("10.1/c"))
		})
	}
}

func TestStore_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, open := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			s, err := open(filepath.Join(t.TempDir(), "ledger."+name))
			require.NoError(t, err)
			defer s.Close()

			require.NoError(t, s.Append(ctx, Entry{DOI: "10.1/x"}))
			require.NoError(t, s.Append(ctx, Entry{DOI: "10.1/X"}))

			entries, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "10.1/x", entries[0].DOI)
		})
	}
}

func TestStore_RejectsEmptyDOI(t *testing.T) {
	ctx := context.Background()
	for name, open := range openBoth(t) {
		t.Run(name, func(t *testing.T) {
			s, err := open(filepath.Join(t.TempDir(), "ledger."+name))
			require.NoError(t, err)
			defer s.Close()
			assert.Error(t, s.Append(ctx, Entry{DOI: "  "}))
		})
	}
}

func TestSQLiteStore_ListKeepsDetails(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer s.Close()

	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, Entry{DOI: "10.2/late", Title: "Late", CompletedAt: first.Add(time.Hour)}))
	require.NoError(t, s.Append(ctx, Entry{DOI: "10.2/early", Title: "Early", RunID: "r1", OutputDir: "output/x", CompletedAt: first}))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "10.2/early", entries[0].DOI)
	assert.Equal(t, "Early", entries[0].Title)
	assert.Equal(t, "r1", entries[0].RunID)
	assert.Equal(t, "output/x", entries[0].OutputDir)
	assert.True(t, first.Equal(entries[0].CompletedAt))
	assert.Equal(t, "10.2/late", entries[1].DOI)
}

func TestJSONStore_HistoryFormat(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "processed_papers.json")
	require.NoError(t, os.WriteFile(path, []byte(`["10.1/old"]`), 0o644))

	s, err := OpenJSON(path)
	require.NoError(t, err)
	set, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, set.Has("10.1/old"))

	require.NoError(t, s.Append(ctx, Entry{DOI: "10.1/new", Title: "dropped"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var dois []string
	require.NoError(t, json.Unmarshal(data, &dois))
	assert.Equal(t, []string{"10.1/old", "10.1/new"}, dois)
}

func TestJSONStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_papers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	_, err := OpenJSON(path)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(types.LedgerConfig{Path: filepath.Join(dir, "l.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(types.LedgerConfig{Backend: "JSON", Path: filepath.Join(dir, "l.json")})
	require.NoError(t, err)
	assert.IsType(t, &JSONStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(types.LedgerConfig{Backend: "redis"})
	assert.ErrorContains(t, err, "unknown ledger backend")
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "src.db"))
	require.NoError(t, err)
	defer src.Close()
	require.NoError(t, src.Append(ctx, Entry{DOI: "10.3/a", Title: "A"}))
	require.NoError(t, src.Append(ctx, Entry{DOI: "10.3/b", Title: "B"}))

	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Export(ctx, src, &buf, format))
			assert.Contains(t, buf.String(), "10.3/a")

			dst, err := OpenJSON(filepath.Join(t.TempDir(), "dst.json"))
			require.NoError(t, err)
			require.NoError(t, dst.Append(ctx, Entry{DOI: "10.3/A"}))

			added, err := Import(ctx, dst, &buf)
			require.NoError(t, err)
			assert.Equal(t, 1, added, "existing DOI is skipped")

			set, err := dst.Load(ctx)
			require.NoError(t, err)
			assert.Len(t, set, 2)
		})
	}
}

func TestImport_DOIStrings(t *testing.T) {
	ctx := context.Background()
	dst, err := OpenSQLite(filepath.Join(t.TempDir(), "dst.db"))
	require.NoError(t, err)
	defer dst.Close()

	added, err := Import(ctx, dst, strings.NewReader(`["10.4/a", "10.4/b", "10.4/a"]`))
	require.NoError(t, err)
	assert.Equal(t, 2, added)
}

func TestImport_Invalid(t *testing.T) {
	ctx := context.Background()
	dst, err := OpenJSON(filepath.Join(t.TempDir(), "dst.json"))
	require.NoError(t, err)

	tests := []struct {
		name string
		in   string
	}{
		{"not a list", `{"doi": "10.1/a"}`},
		{"nested list", `[["10.1/a"]]`},
		{"missing doi", `[{"title": "x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import(ctx, dst, strings.NewReader(tt.in))
			assert.Error(t, err)
		})
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	dst, err := OpenJSON(filepath.Join(t.TempDir(), "dst.json"))
	require.NoError(t, err)
	assert.Error(t, Export(context.Background(), dst, &bytes.Buffer{}, "xml"))
}
