// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search finds open-access papers that have not been processed yet.
// Each configured query is sent to the paper source in turn; results are
// filtered against the ledger, deduplicated across queries, and ranked by
// citation count.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/ledger"
	"github.com/pdiddy/cardnews/pkg/types"
)

const (
	defaultMaxPapers  = 2
	defaultQueryDelay = 1500 * time.Millisecond
)

// Source runs one query against a paper index. *SemanticScholar implements
// it.
type Source interface {
	Name() string
	Query(ctx context.Context, query string) ([]types.Paper, error)
}

// Output holds the selected papers and search statistics.
type Output struct {
	Papers      []types.Paper
	Candidates  int // new papers found before the MaxPapers cut
	AlreadySeen int // results dropped because the ledger has them
	Duplicates  int // results dropped because an earlier query found them
	QueryErrors []string
}

// Finder selects the next papers to process.
type Finder struct {
	Source     Source
	MaxPapers  int           // 0 means 2
	QueryDelay time.Duration // pause between queries; negative disables
	Log        *zap.Logger

	sleep func(context.Context, time.Duration) error
}

// NewFinder builds a Finder from cfg.
func NewFinder(src Source, cfg types.SearchConfig, log *zap.Logger) *Finder {
	if log == nil {
		log = zap.NewNop()
	}
	delay := cfg.QueryDelay
	if delay == 0 {
		delay = defaultQueryDelay
	}
	return &Finder{Source: src, MaxPapers: cfg.MaxPapers, QueryDelay: delay, Log: log}
}

// Find runs every query in order. A failing query is logged and recorded in
// Output.QueryErrors; the remaining queries still run. Papers whose DOI is
// in seen are skipped. The result is sorted by citation count, highest
// first, and cut to MaxPapers.
func (f *Finder) Find(ctx context.Context, queries []string, seen ledger.Set) (Output, error) {
	queries = cleanQueries(queries)
	if len(queries) == 0 {
		return Output{}, fmt.Errorf("no search queries configured")
	}
	if f.Source == nil {
		return Output{}, fmt.Errorf("no paper source configured")
	}
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}
	sleep := f.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var out Output
	picked := make(ledger.Set)
	var found []types.Paper

	for i, q := range queries {
		if i > 0 && f.QueryDelay > 0 {
			if err := sleep(ctx, f.QueryDelay); err != nil {
				return out, err
			}
		}

		papers, err := f.Source.Query(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			log.Warn("search: query failed",
				zap.String("source", f.Source.Name()),
				zap.String("query", q),
				zap.Error(err))
			out.QueryErrors = append(out.QueryErrors, fmt.Sprintf("%s: %v", q, err))
			continue
		}

		for _, p := range papers {
			switch {
			case seen.Has(p.DOI):
				out.AlreadySeen++
			case picked.Has(p.DOI):
				out.Duplicates++
			default:
				picked.Add(p.DOI)
				found = append(found, p)
			}
		}
		log.Debug("search: query done", zap.String("query", q), zap.Int("results", len(papers)))
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].CitationCount > found[j].CitationCount
	})
	out.Candidates = len(found)

	max := f.MaxPapers
	if max <= 0 {
		max = defaultMaxPapers
	}
	if len(found) > max {
		found = found[:max]
	}
	out.Papers = found
	return out, nil
}

func cleanQueries(queries []string) []string {
	var out []string
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FormatTable writes papers as a human-readable table to w.
func FormatTable(out Output, w io.Writer) {
	if len(out.Papers) == 0 {
		fmt.Fprintln(w, "No new papers found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-60s  %-20s  %-4s  %-6s  %s\n",
		"Rank", "Title", "Authors", "Year", "Cites", "DOI")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for i, p := range out.Papers {
		year := ""
		if p.Year > 0 {
			year = fmt.Sprintf("%d", p.Year)
		}
		fmt.Fprintf(w, "%-4d  %-60s  %-20s  %-4s  %-6d  %s\n",
			i+1, truncate(p.Title, 60), formatAuthors(p.Authors), year, p.CitationCount, p.DOI)
	}

	fmt.Fprintf(w, "\n%d selected of %d new", len(out.Papers), out.Candidates)
	if out.AlreadySeen > 0 {
		fmt.Fprintf(w, " (%d already processed)", out.AlreadySeen)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes papers as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	papers := out.Papers
	if papers == nil {
		papers = []types.Paper{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(papers)
}

func formatAuthors(authors []string) string {
	switch len(authors) {
	case 0:
		return ""
	case 1:
		return truncate(authors[0], 20)
	default:
		return truncate(authors[0], 14) + " et al."
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
