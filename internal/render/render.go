// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package render turns a card script into per-card HTML and PNG files.
// Each card executes an embedded html/template chosen by card type, with
// photographs and paper figures inlined as data URIs so the HTML is
// self-contained. Rasterization is delegated to a Rasterizer; without one
// only HTML is written.
package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/container"
	"github.com/pdiddy/cardnews/internal/photo"
	"github.com/pdiddy/cardnews/pkg/types"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	genericTemplate = "card_generic.html"
	defaultSize     = 1080
	defaultBrand    = "F1 SCIENCE BITES"
)

// PhotoSource fetches a photo for a query into dest. *photo.Source
// implements it.
type PhotoSource interface {
	Fetch(ctx context.Context, query, dest string) (photo.Photo, bool)
}

// Rasterizer converts one HTML document to PNG.
type Rasterizer interface {
	Rasterize(ctx context.Context, html []byte, w io.Writer) error
}

// ContainerRasterizer pipes HTML into a container image that writes PNG to
// stdout.
type ContainerRasterizer struct {
	Runtime container.Runtime
	Image   string
	Args    []string
}

// Rasterize implements Rasterizer.
func (c *ContainerRasterizer) Rasterize(ctx context.Context, html []byte, w io.Writer) error {
	return c.Runtime.Run(ctx, c.Image, c.Args, bytes.NewReader(html), w)
}

// Output lists what Render wrote.
type Output struct {
	HTML   []string
	Images []string
	Photos []photo.Photo
	Failed int
}

// Renderer renders card scripts.
type Renderer struct {
	Photos PhotoSource
	Raster Rasterizer
	Width  int
	Height int
	Log    *zap.Logger

	tmpl *template.Template
}

// New parses the embedded templates.
func New(photos PhotoSource, raster Rasterizer, width, height int, log *zap.Logger) (*Renderer, error) {
	tmpl, err := template.New("cards").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing card templates: %w", err)
	}
	if width <= 0 {
		width = defaultSize
	}
	if height <= 0 {
		height = defaultSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{Photos: photos, Raster: raster, Width: width, Height: height, Log: log, tmpl: tmpl}, nil
}

// cardView is the data passed to a card template.
type cardView struct {
	Fields        map[string]any
	Num           int
	Total         int
	Width         int
	Height        int
	Brand         string
	Image         template.URL
	Figure        template.URL
	FigureCaption string
	Chart         *chartView
	Credit        string
}

type chartView struct {
	Label   string
	Value   string
	Unit    string
	Percent int
}

// Render writes card_NN.html (and card_NN.png when a rasterizer is set) for
// every card into outDir. figureDir holds the paper's figure files. A card
// that fails is logged and counted; the remaining cards are still rendered.
func (r *Renderer) Render(ctx context.Context, script types.CardScript, figureDir, outDir string) (Output, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("creating output directory: %w", err)
	}

	var out Output
	photos := r.fetchPhotos(ctx, script, outDir, &out)

	var credit string
	if len(out.Photos) > 0 {
		credit = out.Photos[0].Photographer
	}

	for _, card := range script.Cards {
		htmlPath, pngPath, err := r.renderCard(ctx, card, len(script.Cards), photos, figureDir, outDir, credit)
		if htmlPath != "" {
			out.HTML = append(out.HTML, htmlPath)
		}
		if err != nil {
			out.Failed++
			r.Log.Warn("render: card failed", zap.Int("card", card.Num), zap.String("type", card.Type), zap.Error(err))
			continue
		}
		if pngPath != "" {
			out.Images = append(out.Images, pngPath)
		}
	}
	return out, nil
}

// fetchPhotos downloads one photo per distinct Pexels query.
func (r *Renderer) fetchPhotos(ctx context.Context, script types.CardScript, outDir string, out *Output) map[string]string {
	paths := make(map[string]string)
	if r.Photos == nil {
		return paths
	}
	tried := make(map[string]bool)
	for _, c := range script.Cards {
		if c.VisualSource != types.VisualPexels || c.PexelsQuery == "" || tried[c.PexelsQuery] {
			continue
		}
		tried[c.PexelsQuery] = true
		dest := filepath.Join(outDir, fmt.Sprintf("bg_%d.jpg", c.Num))
		if p, ok := r.Photos.Fetch(ctx, c.PexelsQuery, dest); ok {
			paths[c.PexelsQuery] = p.Path
			out.Photos = append(out.Photos, p)
		}
	}
	return paths
}

func (r *Renderer) renderCard(ctx context.Context, card types.Card, total int, photos map[string]string, figureDir, outDir, credit string) (htmlPath, pngPath string, err error) {
	view := cardView{
		Fields:        card.Fields,
		Num:           card.Num,
		Total:         total,
		Width:         r.Width,
		Height:        r.Height,
		Brand:         defaultBrand,
		FigureCaption: card.FigureCaption,
		Chart:         chartFrom(card.Fields["chart_data"]),
	}
	if card.Type == "closing" {
		view.Credit = credit
	}

	switch card.VisualSource {
	case types.VisualPexels:
		if p, ok := photos[card.PexelsQuery]; ok {
			view.Image, err = dataURI(p)
			if err != nil {
				return "", "", err
			}
		}
	case types.VisualPaperFigure:
		if card.FigureFile != "" && figureDir != "" {
			view.Figure, err = dataURI(filepath.Join(figureDir, filepath.Base(card.FigureFile)))
			if err != nil {
				return "", "", err
			}
		}
	}

	name := "card_" + card.Type + ".html"
	if r.tmpl.Lookup(name) == nil {
		name = genericTemplate
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, view); err != nil {
		return "", "", fmt.Errorf("executing %s: %w", name, err)
	}

	base := fmt.Sprintf("card_%02d", card.Num)
	htmlPath = filepath.Join(outDir, base+".html")
	if err := os.WriteFile(htmlPath, buf.Bytes(), 0o644); err != nil {
		return "", "", fmt.Errorf("writing %s: %w", htmlPath, err)
	}

	if r.Raster == nil {
		return htmlPath, "", nil
	}

	var png bytes.Buffer
	if err := r.Raster.Rasterize(ctx, buf.Bytes(), &png); err != nil {
		return htmlPath, "", fmt.Errorf("rasterizing card %d: %w", card.Num, err)
	}
	if png.Len() == 0 {
		return htmlPath, "", fmt.Errorf("rasterizing card %d: empty output", card.Num)
	}
	pngPath = filepath.Join(outDir, base+".png")
	if err := os.WriteFile(pngPath, png.Bytes(), 0o644); err != nil {
		return htmlPath, "", fmt.Errorf("writing %s: %w", pngPath, err)
	}
	return htmlPath, pngPath, nil
}

func dataURI(path string) (template.URL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	mimeType := http.DetectContentType(data)
	return template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
}

// chartFrom builds a bar view from chart_data {label, value, max, unit}.
// It returns nil when there is no numeric value.
func chartFrom(v any) *chartView {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	value, ok := number(m["value"])
	if !ok {
		return nil
	}
	c := &chartView{
		Label:   str(m, "label"),
		Value:   strconv.FormatFloat(value, 'f', -1, 64),
		Unit:    str(m, "unit"),
		Percent: 100,
	}
	if max, ok := number(m["max"]); ok && max > 0 {
		p := int(value / max * 100)
		switch {
		case p < 0:
			p = 0
		case p > 100:
			p = 100
		}
		c.Percent = p
	}
	return c
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
