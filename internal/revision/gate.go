// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package revision

import (
	"fmt"

	"github.com/pdiddy/cardnews/internal/license"
	"github.com/pdiddy/cardnews/pkg/types"
)

// MaxFigures bounds how many paper figures one script may use.
const MaxFigures = 2

// GateAnalysis applies the figure license policy to a and returns a new
// Analysis with the permitted figure selection. Figures are usable only when
// the stage chose to use them, the paper's license is permissive, and at
// least one selected file exists in the paper's figure inventory. Selected
// files are intersected with the inventory and capped at MaxFigures.
func GateAnalysis(a types.Analysis, paper types.Paper) types.Analysis {
	inventory := make(map[string]bool, len(paper.Figures))
	for _, f := range paper.Figures {
		inventory[f.File] = true
	}

	in := a.FigureSelection
	out := types.FigureSelection{Reason: in.Reason}

	seen := make(map[string]bool)
	for i, name := range in.SelectedFigures {
		if !inventory[name] || seen[name] || len(out.SelectedFigures) == MaxFigures {
			continue
		}
		seen[name] = true
		out.SelectedFigures = append(out.SelectedFigures, name)
		if i < len(in.FigureCaptions) {
			out.FigureCaptions = append(out.FigureCaptions, in.FigureCaptions[i])
		}
	}

	permissive := license.Permissive(paper.License)
	out.UsePaperFigures = types.FlexBool(bool(in.UsePaperFigures) && permissive && len(out.SelectedFigures) > 0)

	if !out.UsePaperFigures {
		if bool(in.UsePaperFigures) && !permissive {
			out.Reason = fmt.Sprintf("license %q does not permit figure reuse", paper.License)
		}
		out.SelectedFigures = nil
		out.FigureCaptions = nil
	}

	gated := a
	gated.FigureSelection = out
	return gated
}

// AllowedFigures returns the figure files a script may reference.
func AllowedFigures(a types.Analysis) []string {
	if !bool(a.FigureSelection.UsePaperFigures) {
		return nil
	}
	return append([]string(nil), a.FigureSelection.SelectedFigures...)
}

// GateScript returns a copy of script in which every paper_figure card that
// references a file outside allowed is downgraded: to css_chart when the
// card carries chart data, otherwise to none.
func GateScript(script types.CardScript, allowed []string) types.CardScript {
	ok := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		ok[f] = true
	}

	out := types.CardScript{Caption: script.Caption, Cards: make([]types.Card, len(script.Cards)), Raw: script.Raw}
	for i, c := range script.Cards {
		if c.VisualSource != types.VisualPaperFigure || ok[c.FigureFile] {
			out.Cards[i] = c
			continue
		}
		out.Cards[i] = downgrade(c)
	}
	return out
}

func downgrade(c types.Card) types.Card {
	fields := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		fields[k] = v
	}
	delete(fields, "figure_file")
	delete(fields, "figure_caption")

	d := c
	d.Fields = fields
	d.FigureFile = ""
	d.FigureCaption = ""
	if c.HasChartData() {
		d.VisualSource = types.VisualCSSChart
	} else {
		d.VisualSource = types.VisualNone
	}
	d.Fields["visual_source"] = string(d.VisualSource)
	return d
}
