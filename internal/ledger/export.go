// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.yaml.in/yaml/v3"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Export writes every entry of s to w as a JSON or YAML list.
func Export(ctx context.Context, s Store, w io.Writer, format string) error {
	entries, err := s.List(ctx)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []Entry{}
	}

	var data []byte
	switch strings.ToLower(format) {
	case "", FormatJSON:
		data, err = json.MarshalIndent(entries, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case FormatYAML, "yml":
		data, err = yaml.Marshal(entries)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return eris.Wrap(err, "ledger: encoding export")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "ledger: writing export")
	}
	return nil
}

// Import appends entries read from r into s and returns how many were new.
// The input is JSON or YAML; each element is either a DOI string (the
// processed_papers.json format) or an Entry object.
func Import(ctx context.Context, s Store, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, eris.Wrap(err, "ledger: reading import")
	}
	entries, err := parseEntries(data)
	if err != nil {
		return 0, err
	}

	seen, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, e := range entries {
		if seen.Has(e.DOI) {
			continue
		}
		if err := s.Append(ctx, e); err != nil {
			return added, err
		}
		seen.Add(e.DOI)
		added++
	}
	return added, nil
}

// parseEntries decodes a list of DOI strings or Entry objects. YAML is a
// superset of JSON, so one decoder handles both.
func parseEntries(data []byte) ([]Entry, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, eris.Wrap(err, "ledger: parsing import")
	}
	entries := make([]Entry, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		var e Entry
		switch n.Kind {
		case yaml.ScalarNode:
			e.DOI = n.Value
		case yaml.MappingNode:
			if err := n.Decode(&e); err != nil {
				return nil, eris.Wrapf(err, "ledger: parsing import entry %d", i)
			}
		default:
			return nil, fmt.Errorf("ledger: import entry %d is neither a DOI nor an object", i)
		}
		if Key(e.DOI) == "" {
			return nil, fmt.Errorf("ledger: import entry %d has no DOI", i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
