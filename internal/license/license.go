// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package license resolves the reuse license of a paper and decides whether
// its figures may be republished.
package license

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/httputil"
)

// Unknown is reported when no license can be determined.
const Unknown = "unknown"

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

type openAlexWork struct {
	BestOALocation  *openAlexLocation `json:"best_oa_location"`
	PrimaryLocation *openAlexLocation `json:"primary_location"`
}

type openAlexLocation struct {
	License string `json:"license"`
}

// Resolver looks up licenses in OpenAlex.
type Resolver struct {
	HTTP  *httputil.Retrier
	Email string // sent as mailto for the OpenAlex polite pool
	Log   *zap.Logger
}

// Resolve returns the license string OpenAlex reports for doi (e.g. "cc-by"),
// preferring the best open-access location. Any failure yields Unknown; the
// lookup never fails the item.
func (r *Resolver) Resolve(ctx context.Context, doi string) string {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	if doi == "" {
		return Unknown
	}

	apiURL := openAlexAPIBase + "https://doi.org/" + doi
	if r.Email != "" {
		apiURL += "?mailto=" + url.QueryEscape(r.Email)
	}

	var work openAlexWork
	if err := r.HTTP.GetJSON(ctx, apiURL, nil, &work); err != nil {
		log.Warn("license: lookup failed", zap.String("doi", doi), zap.Error(err))
		return Unknown
	}

	for _, loc := range []*openAlexLocation{work.BestOALocation, work.PrimaryLocation} {
		if loc != nil && strings.TrimSpace(loc.License) != "" {
			return strings.TrimSpace(loc.License)
		}
	}
	return Unknown
}

// Permissive reports whether license is CC-BY or CC-BY-SA in any version,
// spelling, or creativecommons.org URL form. Everything else, including
// non-commercial and no-derivatives variants, is not permissive.
func Permissive(license string) bool {
	switch core(license) {
	case "by", "by-sa":
		return true
	}
	return false
}

// core reduces a license string to its Creative Commons element list,
// e.g. "CC BY-SA 4.0" and "https://creativecommons.org/licenses/by-sa/4.0/"
// both become "by-sa".
func core(license string) string {
	s := strings.ToLower(strings.TrimSpace(license))
	const ccPath = "creativecommons.org/licenses/"
	if i := strings.Index(s, ccPath); i >= 0 {
		rest := s[i+len(ccPath):]
		if j := strings.Index(rest, "/"); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}

	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	if !strings.HasPrefix(s, "cc-") {
		return ""
	}
	var kept []string
	for _, part := range strings.Split(strings.TrimPrefix(s, "cc-"), "-") {
		if part == "" || isVersion(part) {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "-")
}

func isVersion(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
