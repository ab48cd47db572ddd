// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/cardnews/internal/httputil"
	"github.com/pdiddy/cardnews/pkg/types"
)

// semanticAPIBase is the Semantic Scholar paper search endpoint. Declared
// as a var so tests can substitute an httptest server.
var semanticAPIBase = "https://api.semanticscholar.org/graph/v1/paper/search"

const semanticFields = "title,authors,year,venue,externalIds,openAccessPdf,abstract,citationCount"

const (
	defaultPerQueryLimit = 10
	defaultYearFrom      = 2015
)

// SemanticScholar queries the Semantic Scholar paper search API for
// open-access papers.
type SemanticScholar struct {
	HTTP     *httputil.Retrier
	APIKey   string
	Limit    int // results per query; 0 means 10
	YearFrom int // 0 means 2015
}

// Name returns the source identifier.
func (s *SemanticScholar) Name() string { return "semantic_scholar" }

// Query runs one search and returns every result that has both a DOI and an
// open-access PDF URL. Results keep the API's order.
func (s *SemanticScholar) Query(ctx context.Context, query string) ([]types.Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty Semantic Scholar query")
	}

	limit := s.Limit
	if limit <= 0 {
		limit = defaultPerQueryLimit
	}
	yearFrom := s.YearFrom
	if yearFrom <= 0 {
		yearFrom = defaultYearFrom
	}

	params := url.Values{
		"query":         {query},
		"limit":         {strconv.Itoa(limit)},
		"fields":        {semanticFields},
		"openAccessPdf": {""},
		"year":          {fmt.Sprintf("%d-", yearFrom)},
	}

	header := http.Header{}
	if s.APIKey != "" {
		header.Set("x-api-key", s.APIKey)
	}

	var sr semanticResponse
	if err := s.HTTP.GetJSON(ctx, semanticAPIBase+"?"+params.Encode(), header, &sr); err != nil {
		return nil, fmt.Errorf("Semantic Scholar API request: %w", err)
	}

	var papers []types.Paper
	for _, p := range sr.Data {
		doi := strings.TrimSpace(p.ExternalIDs.DOI)
		if doi == "" || p.OpenAccessPDF == nil || p.OpenAccessPDF.URL == "" {
			continue
		}
		paper := types.Paper{
			DOI:           doi,
			Title:         p.Title,
			Year:          p.Year,
			Venue:         p.Venue,
			Abstract:      p.Abstract,
			CitationCount: p.CitationCount,
			PDFURL:        p.OpenAccessPDF.URL,
		}
		for _, a := range p.Authors {
			paper.Authors = append(paper.Authors, a.Name)
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

// Semantic Scholar API JSON structures.
type semanticResponse struct {
	Total  int             `json:"total"`
	Offset int             `json:"offset"`
	Data   []semanticPaper `json:"data"`
}

type semanticPaper struct {
	PaperID       string              `json:"paperId"`
	Title         string              `json:"title"`
	Abstract      string              `json:"abstract"`
	Year          int                 `json:"year"`
	Venue         string              `json:"venue"`
	CitationCount int                 `json:"citationCount"`
	Authors       []semanticAuthor    `json:"authors"`
	ExternalIDs   semanticExternalIDs `json:"externalIds"`
	OpenAccessPDF *semanticOAPDF      `json:"openAccessPdf"`
}

type semanticAuthor struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

type semanticExternalIDs struct {
	DOI   string `json:"DOI"`
	ArXiv string `json:"ArXiv"`
}

type semanticOAPDF struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}
