// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"
)

// Template names. A prompt directory overrides a built-in prompt with a file
// named <name>.tmpl.
const (
	AnalysisTemplate = "analysis"
	ScriptTemplate   = "script"
	VerifyTemplate   = "verify"
)

const analysisPrompt = `You are a research analyst specialising in Formula 1 driver physiology and a visual director for science card news.
Analyse the open-access paper below and extract the data and image-sourcing instructions needed to produce a card news set.
Reader-facing text is written in Korean; keep search keywords and quotes in English.

## Paper
- Title: {{.title}}
- Authors: {{.authors}}
- DOI: {{.doi}}
- Year: {{.year}}
- Venue: {{.venue}}
- License: {{.license}}

## Paper text
{{.paper_text}}

## Figures extracted from the paper
{{.figure_list}}

## Instructions
Respond with JSON only, in exactly this shape, without Markdown code fences.

{
  "hook_headline": "Korean headline that sparks a general reader's curiosity (15 characters max, no exaggeration)",
  "hook_sub": "one supporting sentence (30 characters max, Korean)",
  "category": "one of cardiovascular|musculoskeletal|thermal|cognitive|fitness|injury",
  "why_it_matters": "why this research matters, two Korean sentences",
  "key_findings": [
    {
      "finding_kr": "one-sentence key finding in Korean (25 characters max)",
      "data_point": "a concrete figure quoted directly from the paper",
      "original_quote": "the English sentence from the paper the figure comes from",
      "chart_type": "bar|gauge|comparison, whichever fits"
    }
  ],
  "wow_fact": "one fact a general reader would find surprising (30 characters max, Korean)",
  "practical_implication": "what F1 teams or drivers can take from this (two Korean sentences)",
  "citation_apa": "full APA citation",
  "pexels_search": {
    "cover_keywords": ["three English Pexels queries for the cover; no team or driver names; dynamic motorsport or exercise scenes"],
    "context_keywords": ["two English queries for the context card"],
    "implication_keywords": ["two English queries for the implication card"]
  },
  "figure_selection": {
    "use_paper_figures": true,
    "reason": "why paper figures are or are not used",
    "selected_figures": ["up to two figure file names to use"],
    "figure_captions": ["a Korean caption for each selected figure, 20 characters max"]
  },
  "difficulty": "beginner|intermediate|advanced"
}

## Hard rules
1. Every data_point must be a number stated in the paper text. No inference or calculation.
2. pexels_search keywords must not name brands or people such as Ferrari, Mercedes, Red Bull, or Verstappen.
3. Set use_paper_figures to true only when the license is CC-BY or CC-BY-SA.
4. If the license is unclear, use_paper_figures is false.
5. Add a short plain-language gloss in parentheses after technical terms, e.g. "VO2max (maximal oxygen uptake)".
6. key_findings has at least 2 and at most 4 entries.
`

const scriptPrompt = `You are an editorial designer for F1-themed science card news.
Using the analysis below, write a 7-card script that uses real photographs and the paper's original charts.
Reader-facing text is written in Korean; technical terms keep their English name alongside.

## Input analysis
{{.analysis_json}}

## Available image assets
- Pexels stock photos, searched automatically from cover_keywords, context_keywords, and implication_keywords
- Paper figures usable: {{.use_figures}}
- Usable figures: {{.available_figures}}

## Design principles
1. The cards must not look AI-generated. No vector art, illustrations, or icons.
2. Real photographs lead each card; text is overlaid on the photo.
3. Paper charts are inserted as they are, never redrawn.

## Instructions
Respond with JSON only, in exactly this shape, without Markdown code fences.

{
  "cards": [
    {"card_num": 1, "type": "cover", "headline": "large headline (12 characters max)", "subheadline": "supporting line (20 characters max)", "badge": "category badge, e.g. CARDIOVASCULAR", "visual_source": "pexels", "pexels_query": "top cover keyword"},
    {"card_num": 2, "type": "context", "headline": "subtitle (10 characters max)", "body_lines": ["line 1 (20 characters max)", "line 2", "line 3"], "visual_source": "pexels", "pexels_query": "top context keyword"},
    {"card_num": 3, "type": "finding", "headline": "finding subtitle (10 characters max)", "stat_big": "highlighted figure, e.g. 170 BPM", "stat_label": "what the figure measures (15 characters max)", "body": "detail (40 characters max)", "visual_source": "paper_figure or css_chart", "figure_file": "figure file name when paper_figure", "figure_caption": "figure source caption", "chart_data": {"label": "item", "value": 0, "max": 0, "unit": "unit"}},
    {"card_num": 4, "type": "finding", "headline": "finding subtitle", "stat_big": "highlighted figure", "stat_label": "what the figure measures", "body": "detail", "visual_source": "paper_figure or css_chart", "figure_file": "", "figure_caption": "", "chart_data": {}},
    {"card_num": 5, "type": "finding", "headline": "finding subtitle", "stat_big": "highlighted figure", "stat_label": "what the figure measures", "body": "detail", "visual_source": "css_chart or pexels", "pexels_query": "related keyword when pexels", "chart_data": {}},
    {"card_num": 6, "type": "implication", "headline": "in practice (10 characters max)", "points": ["point 1 (20 characters max)", "point 2", "point 3"], "closing_line": "closing sentence (25 characters max)", "visual_source": "pexels", "pexels_query": "top implication keyword"},
    {"card_num": 7, "type": "closing", "citation": "full APA citation", "doi_url": "https://doi.org/...", "license": "e.g. CC-BY 4.0", "brand_tag": "F1 SCIENCE BITES", "hashtags": ["#F1Science", "#SportsScience"], "visual_source": "none"}
  ],
  "instagram_caption": "Instagram caption with hashtags (500 characters max)"
}

## Hard rules
1. stat_big values come only from the analysis data_point values.
2. At most 60 characters of text per card.
3. Card 7 carries the exact source and license.
4. chart_data.value is always a number.
5. visual_source is one of pexels, paper_figure, css_chart, none. Use paper_figure only with a file from the usable figures list.
`

const verifyPrompt = `You are a sports-science PhD fact-checker and copyright reviewer.
Verify the accuracy and legal compliance of the card news script below.

## Original paper text (excerpt)
{{.paper_text_excerpt}}

## Paper license: {{.license}}

## Paper analysis
{{.analysis_json}}

## Card news script
{{.cardnews_json}}

## Instructions
Respond with JSON only, in exactly this shape, without Markdown code fences.

{
  "checks": [
    {"item": "what was checked", "status": "PASS or FAIL", "issue": "the problem when FAIL, else empty", "fix": "the suggested fix when FAIL, else empty"}
  ],
  "verdict": "APPROVED or REVISION_NEEDED",
  "revision_instructions": "concrete instructions when revision is needed; empty when APPROVED"
}

## Criteria
1. Every number on the cards matches the paper text exactly.
2. Correlation is not presented as causation.
3. The study's limitations are not ignored.
4. The APA citation is accurate.
5. Technical terms are translated accurately.
6. paper_figure is used only when the license is CC-BY or CC-BY-SA.
7. Pexels queries name no brands or drivers.
`

var builtinPrompts = map[string]string{
	AnalysisTemplate: analysisPrompt,
	ScriptTemplate:   scriptPrompt,
	VerifyTemplate:   verifyPrompt,
}

// Prompts holds the parsed template for each stage.
type Prompts struct {
	Analysis *template.Template
	Script   *template.Template
	Verify   *template.Template
}

// ParseTemplate parses text as a stage prompt. Every placeholder must be
// supplied at execution time.
func ParseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &TemplateError{Template: name, Err: err}
	}
	return tmpl, nil
}

// LoadPrompts returns the built-in prompts, each replaced by <dir>/<name>.tmpl
// when that file exists. An empty dir means built-ins only.
func LoadPrompts(dir string) (Prompts, error) {
	parsed := make(map[string]*template.Template, len(builtinPrompts))
	for name, text := range builtinPrompts {
		if dir != "" {
			data, err := os.ReadFile(filepath.Join(dir, name+".tmpl"))
			switch {
			case err == nil:
				text = string(data)
			case !errors.Is(err, fs.ErrNotExist):
				return Prompts{}, fmt.Errorf("reading prompt %s: %w", name, err)
			}
		}
		tmpl, err := ParseTemplate(name, text)
		if err != nil {
			return Prompts{}, err
		}
		parsed[name] = tmpl
	}
	return Prompts{
		Analysis: parsed[AnalysisTemplate],
		Script:   parsed[ScriptTemplate],
		Verify:   parsed[VerifyTemplate],
	}, nil
}
