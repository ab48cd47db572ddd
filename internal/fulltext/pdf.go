// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fulltext

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/pdiddy/cardnews/pkg/types"
)

var extraneousWhitespace = regexp.MustCompile(`[ \t]+`)

// pdfText returns the plain text of the first maxPages pages. A page that
// fails to decode is skipped.
func pdfText(path string, maxPages int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer file.Close()

	n := reader.NumPage()
	if n > maxPages {
		n = maxPages
	}

	var pages []string
	for i := 1; i <= n; i++ {
		pt, ok := pageText(reader.Page(i))
		if ok && strings.TrimSpace(pt) != "" {
			pages = append(pages, extraneousWhitespace.ReplaceAllString(pt, " "))
		}
	}
	return strings.Join(pages, "\n"), nil
}

func pageText(p pdf.Page) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			text, ok = "", false
		}
	}()
	if p.V.IsNull() {
		return "", false
	}
	t, err := p.GetPlainText(nil)
	if err != nil {
		return "", false
	}
	return t, true
}

// extractFigures saves image XObjects of at least minW x minH from the first
// maxPages pages as PNG files in dir. Only 8-bit RGB or grayscale images with
// no filter or FlateDecode can be decoded; others are skipped. Files are
// named figure_<page>_<index>.png with a zero-based page.
func extractFigures(path, dir string, maxPages, minW, minH int) (figs []types.Figure, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf images: %v", r)
		}
	}()

	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer file.Close()

	n := reader.NumPage()
	if n > maxPages {
		n = maxPages
	}

	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		xobjs := page.Resources().Key("XObject")
		for idx, name := range xobjs.Keys() {
			x := xobjs.Key(name)
			if x.Key("Subtype").Name() != "Image" {
				continue
			}
			w, h := int(x.Key("Width").Int64()), int(x.Key("Height").Int64())
			if w < minW || h < minH {
				continue
			}
			img, ok := decodeImage(x, w, h)
			if !ok {
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return figs, fmt.Errorf("creating figure directory: %w", err)
			}
			fname := fmt.Sprintf("figure_%d_%d.png", i-1, idx)
			if err := writePNG(filepath.Join(dir, fname), img); err != nil {
				return figs, err
			}
			figs = append(figs, types.Figure{File: fname, Width: w, Height: h, Page: i - 1})
		}
	}
	return figs, nil
}

// decodeImage reads an image XObject's samples into an image.Image.
func decodeImage(x pdf.Value, w, h int) (img image.Image, ok bool) {
	defer func() {
		if recover() != nil {
			img, ok = nil, false
		}
	}()

	if bpc := x.Key("BitsPerComponent").Int64(); bpc != 8 {
		return nil, false
	}
	for _, f := range filterNames(x.Key("Filter")) {
		if f != "FlateDecode" {
			return nil, false
		}
	}

	var comps int
	switch x.Key("ColorSpace").Name() {
	case "DeviceRGB":
		comps = 3
	case "DeviceGray":
		comps = 1
	default:
		return nil, false
	}

	rc := x.Reader()
	defer rc.Close()
	samples, err := io.ReadAll(io.LimitReader(rc, int64(w*h*comps)+1))
	if err != nil || len(samples) != w*h*comps {
		return nil, false
	}
	return samplesToImage(samples, w, h, comps), true
}

func filterNames(v pdf.Value) []string {
	switch v.Kind() {
	case pdf.Name:
		return []string{v.Name()}
	case pdf.Array:
		names := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			names = append(names, v.Index(i).Name())
		}
		return names
	}
	return nil
}

// samplesToImage converts packed 8-bit samples to an image. comps is 1
// (gray) or 3 (RGB).
func samplesToImage(samples []byte, w, h, comps int) image.Image {
	if comps == 1 {
		g := image.NewGray(image.Rect(0, 0, w, h))
		copy(g.Pix, samples)
		return g
	}
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for xi := 0; xi < w; xi++ {
			o := (y*w + xi) * 3
			rgba.SetRGBA(xi, y, color.RGBA{R: samples[o], G: samples[o+1], B: samples[o+2], A: 0xff})
		}
	}
	return rgba
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating figure file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding figure: %w", err)
	}
	return f.Close()
}
