// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the data shared across the cardnews pipeline: papers,
// stage outputs, card scripts, run records, and configuration.
package types

import "strings"

// Paper is one unit of pipeline work: an open-access paper found by the
// paper source. Text and Figures are filled in by the extractor.
type Paper struct {
	// DOI is the unique identifier recorded in the ledger.
	DOI string `json:"doi" yaml:"doi"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the publication year (0 if unknown).
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Venue is the journal or conference.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Abstract is the paper abstract. It is the text fallback when full-text
	// extraction yields nothing.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// CitationCount ranks candidates; higher is processed first.
	CitationCount int `json:"citation_count" yaml:"citation_count"`

	// PDFURL is the open-access full-text location.
	PDFURL string `json:"pdf_url" yaml:"pdf_url"`

	// License is the license string as reported by the license resolver
	// (e.g. "cc-by"), or "unknown".
	License string `json:"license" yaml:"license"`

	// Text is the extracted full text (or abstract fallback).
	Text string `json:"-" yaml:"-"`

	// Figures is the inventory of figure images extracted from the PDF.
	Figures []Figure `json:"-" yaml:"-"`

	// FigureDir is the directory holding the figure files, empty when no
	// figures were extracted.
	FigureDir string `json:"-" yaml:"-"`
}

// AuthorList returns up to max author names joined by ", ".
func (p Paper) AuthorList(max int) string {
	authors := p.Authors
	if max > 0 && len(authors) > max {
		authors = authors[:max]
	}
	return strings.Join(authors, ", ")
}

// Figure describes one candidate figure image extracted from a paper.
type Figure struct {
	// File is the figure file name inside the paper's figure directory.
	File string `json:"filename" yaml:"filename"`

	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`

	// Page is the zero-based PDF page the figure was found on.
	Page int `json:"page" yaml:"page"`
}

// PaperRef is the paper reference stored in a run's metadata record.
type PaperRef struct {
	Title   string `json:"title" yaml:"title"`
	DOI     string `json:"doi" yaml:"doi"`
	Year    int    `json:"year,omitempty" yaml:"year,omitempty"`
	Authors string `json:"authors" yaml:"authors"`
	Venue   string `json:"venue,omitempty" yaml:"venue,omitempty"`
	License string `json:"license" yaml:"license"`
}

// Ref builds the metadata reference for p.
func (p Paper) Ref() PaperRef {
	return PaperRef{
		Title:   p.Title,
		DOI:     p.DOI,
		Year:    p.Year,
		Authors: p.AuthorList(5),
		Venue:   p.Venue,
		License: p.License,
	}
}

// maxSafeIDLen caps the length of a SafeID.
const maxSafeIDLen = 60

// SafeID turns a DOI into a file-system-safe directory component:
// "/" becomes "_", "." becomes "-", and the result is capped at 60 bytes.
func SafeID(doi string) string {
	s := strings.NewReplacer("/", "_", ".", "-", "\\", "_", ":", "_", " ", "_").Replace(strings.TrimSpace(doi))
	if len(s) > maxSafeIDLen {
		s = s[:maxSafeIDLen]
	}
	return s
}
