// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cardnews/internal/httputil"
	"github.com/pdiddy/cardnews/pkg/types"
)

func newTestExtractor(t *testing.T, ts *httptest.Server, cfg types.ExtractionConfig) *Extractor {
	t.Helper()
	cfg.WorkDir = t.TempDir()
	client := http.DefaultClient
	if ts != nil {
		client = ts.Client()
	}
	return New(cfg, &httputil.Retrier{Client: client}, nil)
}

func htmlPage(body string) string {
	return "<!DOCTYPE html><html><head><title>x</title></head><body><h1>Heat stress</h1><p>" +
		body + "</p></body></html>"
}

func TestExtract_HTMLConvertedToMarkdown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(htmlPage(strings.Repeat("Drivers lose 2 kg of fluid per race. ", 60))))
	}))
	defer ts.Close()

	e := newTestExtractor(t, ts, types.ExtractionConfig{})
	got, err := e.Extract(context.Background(), types.Paper{DOI: "10.1/a", PDFURL: ts.URL, Abstract: "abstract"})
	require.NoError(t, err)

	assert.Contains(t, got.Text, "# Heat stress")
	assert.Contains(t, got.Text, "Drivers lose 2 kg of fluid per race.")
	assert.NotContains(t, got.Text, "<p>")
	assert.Empty(t, got.Figures)
	assert.FileExists(t, filepath.Join(e.Cfg.WorkDir, "10-1_a", "paper.html"))
}

func TestExtract_AbstractFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"too short", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("%PDF-1.4 tiny")) }},
		{"not a pdf", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte(strings.Repeat("garbage ", 500)))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			e := newTestExtractor(t, ts, types.ExtractionConfig{})
			got, err := e.Extract(context.Background(), types.Paper{DOI: "10.1/b", PDFURL: ts.URL, Abstract: "  The abstract.  "})
			require.NoError(t, err)
			assert.Equal(t, "The abstract.", got.Text)
			assert.Empty(t, got.Figures)
			assert.Empty(t, got.FigureDir)
		})
	}
}

func TestExtract_NoURLUsesAbstract(t *testing.T) {
	e := newTestExtractor(t, nil, types.ExtractionConfig{})
	got, err := e.Extract(context.Background(), types.Paper{DOI: "10.1/c", Abstract: "only abstract"})
	require.NoError(t, err)
	assert.Equal(t, "only abstract", got.Text)
}

func TestExtract_Empty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	e := newTestExtractor(t, ts, types.ExtractionConfig{})
	_, err := e.Extract(context.Background(), types.Paper{DOI: "10.1/d", PDFURL: ts.URL, Abstract: " \n "})
	assert.ErrorIs(t, err, ErrExtractionEmpty)
}

func TestExtract_Truncates(t *testing.T) {
	e := newTestExtractor(t, nil, types.ExtractionConfig{MaxChars: 10})
	got, err := e.Extract(context.Background(), types.Paper{DOI: "10.1/e", Abstract: strings.Repeat("심", 50)})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("심", 10), got.Text)
}

func TestExtract_DoesNotMutateInput(t *testing.T) {
	e := newTestExtractor(t, nil, types.ExtractionConfig{})
	in := types.Paper{DOI: "10.1/f", Abstract: "a", Text: "stale"}
	_, err := e.Extract(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "stale", in.Text)
}

func TestNew_Defaults(t *testing.T) {
	e := New(types.ExtractionConfig{}, &httputil.Retrier{}, nil)
	assert.Equal(t, DefaultMaxPages, e.Cfg.MaxPages)
	assert.Equal(t, DefaultMaxChars, e.Cfg.MaxChars)
	assert.Equal(t, DefaultMinFigureWidth, e.Cfg.MinFigureWidth)
	assert.Equal(t, DefaultMinFigureHeight, e.Cfg.MinFigureHeight)
	assert.NotEmpty(t, e.Cfg.WorkDir)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ct   string
		head string
		want bodyKind
	}{
		{"pdf magic wins", "text/html", "%PDF-1.7", kindPDF},
		{"octet stream pdf", "application/octet-stream", "%PDF-1.4", kindPDF},
		{"html type", "text/html; charset=utf-8", "<html>", kindHTML},
		{"sniffed doctype", "", "  <!DOCTYPE html>", kindHTML},
		{"sniffed html", "application/octet-stream", "<HTML lang=en>", kindHTML},
		{"unknown", "", "binary", kindPDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.ct, []byte(tt.head)))
		})
	}
}

func TestSamplesToImage(t *testing.T) {
	rgb := []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 10, 20, 30}
	img := samplesToImage(rgb, 2, 2, 3)
	r, g, b, _ := img.At(1, 0).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0), b)

	gray := samplesToImage([]byte{0, 128, 255, 64}, 2, 2, 1)
	gv, _, _, _ := gray.At(0, 1).RGBA()
	assert.Equal(t, uint32(255*0x101), gv)

	path := filepath.Join(t.TempDir(), "fig.png")
	require.NoError(t, writePNG(path, img))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 2, decoded.Bounds().Dx())
}

func TestLimitedBuffer(t *testing.T) {
	var buf bytes.Buffer
	lb := &limitedBuffer{buf: &buf, max: 4}
	n, err := lb.Write([]byte("%PD"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = lb.Write([]byte("F-1.7"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "%PDF", buf.String())
}
