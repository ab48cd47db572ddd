// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package photo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cardnews/internal/httputil"
)

func withPexels(t *testing.T, handler http.HandlerFunc) (*Source, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	old := pexelsAPIBase
	pexelsAPIBase = ts.URL + "/v1/search"
	t.Cleanup(func() { pexelsAPIBase = old })
	return &Source{HTTP: &httputil.Retrier{Client: ts.Client()}, APIKey: "pkey"}, ts
}

func TestFetch(t *testing.T) {
	var src *Source
	var ts *httptest.Server
	src, ts = withPexels(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/search":
			assert.Equal(t, "pkey", r.Header.Get("Authorization"))
			q := r.URL.Query()
			assert.Equal(t, "race car cockpit", q.Get("query"))
			assert.Equal(t, "5", q.Get("per_page"))
			assert.Equal(t, "square", q.Get("orientation"))
			fmt.Fprintf(w, `{"photos":[{"url":"https://pexels.com/p/1","photographer":"Ana","src":{"large2x":"%s/img/1.jpg"}}]}`, ts.URL)
		case "/img/1.jpg":
			w.Write([]byte("JPEGDATA"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	dest := filepath.Join(t.TempDir(), "bg_1.jpg")
	p, ok := src.Fetch(context.Background(), "race car cockpit", dest)
	require.True(t, ok)
	assert.Equal(t, dest, p.Path)
	assert.Equal(t, "Ana", p.Photographer)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "JPEGDATA", string(data))
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"no results", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte(`{"photos":[]}`)) }},
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) }},
		{"image missing", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v1/search" {
				w.Write([]byte(`{"photos":[{"src":{"large2x":"http://` + r.Host + `/gone.jpg"}}]}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}},
		{"no image url", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte(`{"photos":[{"src":{}}]}`)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, _ := withPexels(t, tt.handler)
			dest := filepath.Join(t.TempDir(), "bg.jpg")
			_, ok := src.Fetch(context.Background(), "query", dest)
			assert.False(t, ok)
			assert.NoFileExists(t, dest)
		})
	}
}

func TestFetch_NoKey(t *testing.T) {
	var called bool
	src, _ := withPexels(t, func(http.ResponseWriter, *http.Request) { called = true })
	src.APIKey = ""
	_, ok := src.Fetch(context.Background(), "q", filepath.Join(t.TempDir(), "x.jpg"))
	assert.False(t, ok)
	assert.False(t, called)
}
