// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fulltext downloads a paper's open-access full text and extracts
// plain text and candidate figure images from it. PDF responses are read
// with ledongthuc/pdf; HTML responses are converted to Markdown. When
// neither yields text the abstract is used instead.
package fulltext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/httputil"
	"github.com/pdiddy/cardnews/pkg/types"
)

// ErrExtractionEmpty is returned when neither the full text nor the
// abstract yields any text. The pipeline skips the item.
var ErrExtractionEmpty = errors.New("no usable text extracted")

// minBodyBytes rejects error pages and stubs served with a 200 status.
const minBodyBytes = 1000

// Defaults applied when the configuration leaves a field at zero.
const (
	DefaultMaxPages        = 25
	DefaultMaxChars        = 15000
	DefaultMinFigureWidth  = 300
	DefaultMinFigureHeight = 200
)

const figuresDir = "figures"

// Extractor fills in Paper.Text and Paper.Figures.
type Extractor struct {
	HTTP *httputil.Retrier
	Cfg  types.ExtractionConfig
	Log  *zap.Logger

	html *md.Converter
}

// New returns an Extractor with defaults applied to cfg.
func New(cfg types.ExtractionConfig, retrier *httputil.Retrier, log *zap.Logger) *Extractor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.MinFigureWidth <= 0 {
		cfg.MinFigureWidth = DefaultMinFigureWidth
	}
	if cfg.MinFigureHeight <= 0 {
		cfg.MinFigureHeight = DefaultMinFigureHeight
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "cardnews")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{HTTP: retrier, Cfg: cfg, Log: log, html: md.NewConverter("", true, nil)}
}

// Extract returns a copy of paper with Text, Figures, and FigureDir set.
// Download and parse failures are logged and fall back to the abstract;
// only a paper with no text at all fails, with ErrExtractionEmpty.
func (e *Extractor) Extract(ctx context.Context, paper types.Paper) (types.Paper, error) {
	log := e.Log.With(zap.String("doi", paper.DOI))
	out := paper
	out.Text = ""
	out.Figures = nil
	out.FigureDir = ""

	if paper.PDFURL != "" {
		text, figs, figDir, err := e.fromURL(ctx, paper)
		if err != nil {
			log.Warn("fulltext: extraction failed, using abstract", zap.String("url", paper.PDFURL), zap.Error(err))
		}
		out.Text = text
		out.Figures = figs
		if len(figs) > 0 {
			out.FigureDir = figDir
		}
	}

	if strings.TrimSpace(out.Text) == "" {
		out.Text = paper.Abstract
		if strings.TrimSpace(out.Text) != "" {
			log.Info("fulltext: using abstract only")
		}
	}
	if strings.TrimSpace(out.Text) == "" {
		return out, fmt.Errorf("%s: %w", paper.DOI, ErrExtractionEmpty)
	}

	out.Text = truncateRunes(strings.TrimSpace(out.Text), e.Cfg.MaxChars)
	log.Info("fulltext: extracted",
		zap.Int("chars", utf8.RuneCountInString(out.Text)),
		zap.Int("figures", len(out.Figures)))
	return out, nil
}

// PaperDir is the work directory for doi. Figures live in its "figures"
// subdirectory.
func (e *Extractor) PaperDir(doi string) string {
	return filepath.Join(e.Cfg.WorkDir, types.SafeID(doi))
}

// FigureDir is where figures extracted for doi are written.
func (e *Extractor) FigureDir(doi string) string {
	return filepath.Join(e.PaperDir(doi), figuresDir)
}

func (e *Extractor) fromURL(ctx context.Context, paper types.Paper) (string, []types.Figure, string, error) {
	dir := e.PaperDir(paper.DOI)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, "", fmt.Errorf("creating work directory: %w", err)
	}

	path, kind, err := e.download(ctx, paper.PDFURL, dir)
	if err != nil {
		return "", nil, "", err
	}

	if kind == kindHTML {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, "", fmt.Errorf("reading HTML: %w", err)
		}
		text, err := e.html.ConvertString(string(data))
		if err != nil {
			return "", nil, "", fmt.Errorf("converting HTML to markdown: %w", err)
		}
		return text, nil, "", nil
	}

	text, err := pdfText(path, e.Cfg.MaxPages)
	if err != nil {
		return "", nil, "", err
	}

	figDir := e.FigureDir(paper.DOI)
	figs, err := extractFigures(path, figDir, e.Cfg.MaxPages, e.Cfg.MinFigureWidth, e.Cfg.MinFigureHeight)
	if err != nil {
		e.Log.Warn("fulltext: figure extraction failed", zap.String("doi", paper.DOI), zap.Error(err))
	}
	return text, figs, figDir, nil
}

type bodyKind int

const (
	kindPDF bodyKind = iota
	kindHTML
)

// download fetches url into dir (temp file + rename) and classifies it.
func (e *Extractor) download(ctx context.Context, url, dir string) (string, bodyKind, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", kindPDF, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf, text/html;q=0.8")

	resp, err := e.HTTP.Do(ctx, req)
	if err != nil {
		return "", kindPDF, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp); err != nil {
		return "", kindPDF, err
	}

	tmp, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return "", kindPDF, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	var head bytes.Buffer
	n, copyErr := io.Copy(tmp, io.TeeReader(resp.Body, &limitedBuffer{buf: &head, max: 512}))
	closeErr := tmp.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return "", kindPDF, fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", kindPDF, fmt.Errorf("closing temp file: %w", closeErr)
	}
	if n < minBodyBytes {
		os.Remove(tmpPath)
		return "", kindPDF, fmt.Errorf("response too short (%d bytes)", n)
	}

	kind := classify(resp.Header.Get("Content-Type"), head.Bytes())
	name := "paper.pdf"
	if kind == kindHTML {
		name = "paper.html"
	}
	dest := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", kindPDF, fmt.Errorf("renaming temp file: %w", err)
	}
	return dest, kind, nil
}

// classify prefers the %PDF magic over the declared content type, since
// many repositories serve PDFs as application/octet-stream.
func classify(contentType string, head []byte) bodyKind {
	if bytes.HasPrefix(bytes.TrimSpace(head), []byte("%PDF")) {
		return kindPDF
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
		return kindHTML
	}
	lower := bytes.ToLower(bytes.TrimSpace(head))
	if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
		return kindHTML
	}
	return kindPDF
}

// limitedBuffer keeps the first max bytes written to it.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if room := l.max - l.buf.Len(); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		l.buf.Write(p[:room])
	}
	return len(p), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
