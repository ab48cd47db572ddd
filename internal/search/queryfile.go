// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cardnews/pkg/types"
)

// LoadQueries reads the query list at path. The file is a JSON or YAML list
// of strings, or a mapping with a "queries" list.
func LoadQueries(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading queries file: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing queries file %s: %w", path, err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("queries file %s is empty", path)
	}

	var queries []string
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		err = root.Decode(&queries)
	case yaml.MappingNode:
		var wrapped struct {
			Queries []string `yaml:"queries"`
		}
		err = root.Decode(&wrapped)
		queries = wrapped.Queries
	default:
		return nil, fmt.Errorf("queries file %s: expected a list of strings", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing queries file %s: %w", path, err)
	}

	queries = cleanQueries(queries)
	if len(queries) == 0 {
		return nil, fmt.Errorf("queries file %s has no queries", path)
	}
	return queries, nil
}

// ResultFile is a saved search: the queries and the papers selected. The
// run command can process a ResultFile instead of searching again.
type ResultFile struct {
	Queries []string      `yaml:"queries"`
	Papers  []types.Paper `yaml:"papers"`
	Summary ResultSummary `yaml:"summary"`
}

// ResultSummary stores search statistics and a timestamp.
type ResultSummary struct {
	Candidates  int       `yaml:"candidates"`
	AlreadySeen int       `yaml:"already_seen"`
	Duplicates  int       `yaml:"duplicates"`
	QueryErrors []string  `yaml:"query_errors,omitempty"`
	Timestamp   time.Time `yaml:"timestamp"`
}

// WriteResultFile saves queries and out to a YAML file.
func WriteResultFile(path string, queries []string, out Output) error {
	rf := ResultFile{
		Queries: queries,
		Papers:  out.Papers,
		Summary: ResultSummary{
			Candidates:  out.Candidates,
			AlreadySeen: out.AlreadySeen,
			Duplicates:  out.Duplicates,
			QueryErrors: out.QueryErrors,
			Timestamp:   time.Now().UTC(),
		},
	}
	data, err := yaml.Marshal(&rf)
	if err != nil {
		return fmt.Errorf("marshaling result file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadResultFile loads a previously saved result file.
func ReadResultFile(path string) (*ResultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	var rf ResultFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing result file: %w", err)
	}
	return &rf, nil
}
