// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package photo fetches stock photographs from Pexels. Fetching is best
// effort: every failure is logged and reported as "no photo".
package photo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/httputil"
)

// pexelsAPIBase is the Pexels search endpoint. Declared as a var so tests
// can substitute an httptest server.
var pexelsAPIBase = "https://api.pexels.com/v1/search"

// Photo is a downloaded photograph and its credit.
type Photo struct {
	Path         string
	Photographer string
	PageURL      string
}

type searchResponse struct {
	Photos []struct {
		URL          string `json:"url"`
		Photographer string `json:"photographer"`
		Src          struct {
			Large2x  string `json:"large2x"`
			Original string `json:"original"`
		} `json:"src"`
	} `json:"photos"`
}

// Source searches Pexels with an API key.
type Source struct {
	HTTP   *httputil.Retrier
	APIKey string
	Log    *zap.Logger
}

// Fetch searches for query and downloads the first square result's large2x
// rendition to dest. It returns false when no key is configured, the search
// has no results, or any request fails.
func (s *Source) Fetch(ctx context.Context, query, dest string) (Photo, bool) {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	if s.APIKey == "" {
		log.Debug("photo: no Pexels key, skipping", zap.String("query", query))
		return Photo{}, false
	}
	if query == "" {
		return Photo{}, false
	}

	params := url.Values{
		"query":       {query},
		"per_page":    {"5"},
		"orientation": {"square"},
	}
	var res searchResponse
	err := s.HTTP.GetJSON(ctx, pexelsAPIBase+"?"+params.Encode(), http.Header{"Authorization": {s.APIKey}}, &res)
	if err != nil {
		log.Warn("photo: search failed", zap.String("query", query), zap.Error(err))
		return Photo{}, false
	}
	if len(res.Photos) == 0 {
		log.Warn("photo: no results", zap.String("query", query))
		return Photo{}, false
	}

	first := res.Photos[0]
	src := first.Src.Large2x
	if src == "" {
		src = first.Src.Original
	}
	if err := s.download(ctx, src, dest); err != nil {
		log.Warn("photo: download failed", zap.String("query", query), zap.Error(err))
		return Photo{}, false
	}

	log.Info("photo: saved", zap.String("query", query), zap.String("photographer", first.Photographer))
	return Photo{Path: dest, Photographer: first.Photographer, PageURL: first.URL}, true
}

func (s *Source) download(ctx context.Context, src, dest string) error {
	if src == "" {
		return fmt.Errorf("result has no image URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := httputil.CheckStatus(resp); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".photo-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing photo: %v %v", copyErr, closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
