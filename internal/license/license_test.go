// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package license

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pdiddy/cardnews/internal/httputil"
)

func TestPermissive(t *testing.T) {
	tests := []struct {
		license string
		want    bool
	}{
		{"cc-by", true},
		{"CC-BY", true},
		{"cc-by-sa", true},
		{"CC BY 4.0", true},
		{"CC-BY-SA 4.0", true},
		{"cc_by_3.0", true},
		{"https://creativecommons.org/licenses/by/4.0/", true},
		{"http://creativecommons.org/licenses/by-sa/3.0", true},
		{"cc-by-nc", false},
		{"cc-by-nd", false},
		{"cc-by-nc-sa", false},
		{"https://creativecommons.org/licenses/by-nc/4.0/", false},
		{"cc0", false},
		{"public-domain", false},
		{"other-oa", false},
		{"unknown", false},
		{"", false},
		{"Open Access (likely CC-BY, verify on publisher site)", false},
	}
	for _, tt := range tests {
		t.Run(tt.license, func(t *testing.T) {
			assert.Equal(t, tt.want, Permissive(tt.license))
		})
	}
}

func newResolver(ts *httptest.Server) *Resolver {
	openAlexAPIBase = ts.URL + "/works/"
	return &Resolver{HTTP: &httputil.Retrier{Client: ts.Client()}, Email: "a@b.c"}
}

func TestResolve(t *testing.T) {
	old := openAlexAPIBase
	defer func() { openAlexAPIBase = old }()

	var gotPath, gotMailto string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMailto = r.URL.Query().Get("mailto")
		w.Write([]byte(`{"best_oa_location": {"license": "cc-by-sa"}, "primary_location": {"license": "cc-by-nc"}}`))
	}))
	defer ts.Close()

	got := newResolver(ts).Resolve(context.Background(), "10.1234/abc")
	assert.Equal(t, "cc-by-sa", got)
	assert.Equal(t, "/works/https://doi.org/10.1234/abc", gotPath)
	assert.Equal(t, "a@b.c", gotMailto)
}

func TestResolve_FallsBackToPrimaryLocation(t *testing.T) {
	old := openAlexAPIBase
	defer func() { openAlexAPIBase = old }()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"best_oa_location": {"license": null}, "primary_location": {"license": "cc-by"}}`))
	}))
	defer ts.Close()

	assert.Equal(t, "cc-by", newResolver(ts).Resolve(context.Background(), "10.1/x"))
}

func TestResolve_Unknown(t *testing.T) {
	old := openAlexAPIBase
	defer func() { openAlexAPIBase = old }()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"no locations", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte(`{}`)) }},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte(`{`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()
			assert.Equal(t, Unknown, newResolver(ts).Resolve(context.Background(), "10.1/x"))
		})
	}
}

func TestResolve_EmptyDOI(t *testing.T) {
	r := &Resolver{HTTP: &httputil.Retrier{Client: &http.Client{Timeout: time.Millisecond}}}
	assert.Equal(t, Unknown, r.Resolve(context.Background(), ""))
}
