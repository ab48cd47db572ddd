// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/cardnews/pkg/types"
)

// VerifyExcerptRunes is how much of the paper text the verify stage sees.
const VerifyExcerptRunes = 5000

// Finding count bounds for the analyze stage.
const (
	MinFindings = 2
	MaxFindings = 4
)

// Stages runs the three content stages with one set of prompts.
type Stages struct {
	Runner  *Runner
	Prompts Prompts
}

// AnalyzeInputs builds the analyze stage inputs for paper.
func AnalyzeInputs(paper types.Paper) Inputs {
	year := ""
	if paper.Year > 0 {
		year = strconv.Itoa(paper.Year)
	}
	return Inputs{
		"title":       paper.Title,
		"authors":     paper.AuthorList(5),
		"doi":         paper.DOI,
		"year":        year,
		"venue":       paper.Venue,
		"license":     paper.License,
		"paper_text":  paper.Text,
		"figure_list": FigureList(paper.Figures),
	}
}

// FigureList renders the figure inventory for a prompt: indented JSON, or
// "none" when there are no figures.
func FigureList(figs []types.Figure) string {
	if len(figs) == 0 {
		return "none"
	}
	data, err := json.MarshalIndent(figs, "", "  ")
	if err != nil {
		return "none"
	}
	return string(data)
}

// Analyze runs the analyze stage and promotes its output.
func (s *Stages) Analyze(ctx context.Context, paper types.Paper) (types.Analysis, error) {
	out, err := s.Runner.Run(ctx, types.StageAnalyze, s.Prompts.Analysis, AnalyzeInputs(paper))
	if err != nil {
		return types.Analysis{}, err
	}
	a, err := PromoteAnalysis(out)
	if err != nil {
		return types.Analysis{}, &StageError{Stage: types.StageAnalyze, Err: err}
	}
	return a, nil
}

// ScriptRequest carries the script stage inputs. Revision holds the
// fact-checker's instructions on the revision run.
type ScriptRequest struct {
	Analysis   types.Analysis
	UseFigures bool
	Figures    []string
	Revision   string
}

// Inputs renders the request as prompt inputs.
func (r ScriptRequest) Inputs() (Inputs, error) {
	analysisJSON, err := json.MarshalIndent(r.Analysis, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	figures := "none"
	if len(r.Figures) > 0 {
		figures = strings.Join(r.Figures, ", ")
	}
	return Inputs{
		"analysis_json":     string(analysisJSON),
		"use_figures":       strconv.FormatBool(r.UseFigures),
		"available_figures": figures,
	}, nil
}

// revisionHeading introduces the fact-checker feedback on a revision run.
const revisionHeading = "## Revision instructions (fact-checker feedback)"

// noInstructions stands in when the verdict asks for a revision without
// saying what to change.
const noInstructions = "The fact-checker asked for a revision without details. Re-check every figure against the analysis and every hard rule, and correct what is wrong."

// RevisionDirective is appended to the rendered script prompt on the
// revision run, whatever template produced it.
func RevisionDirective(instructions string) string {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		instructions = noInstructions
	}
	return "\n\n" + revisionHeading + "\nRewrite the script applying every instruction below. Keep the same JSON shape.\n" + instructions
}

// Script runs the script stage under stageName (script or script-revision)
// and promotes its output. Under script-revision the revision directive is
// appended to the rendered prompt.
func (s *Stages) Script(ctx context.Context, stageName string, req ScriptRequest) (types.CardScript, error) {
	inputs, err := req.Inputs()
	if err != nil {
		return types.CardScript{}, &StageError{Stage: stageName, Err: err}
	}
	prompt, err := render(s.Prompts.Script, inputs)
	if err != nil {
		return types.CardScript{}, &StageError{Stage: stageName, Err: err}
	}
	if stageName == types.StageRevise {
		prompt += RevisionDirective(req.Revision)
	}
	out, err := s.Runner.RunPrompt(ctx, stageName, prompt)
	if err != nil {
		return types.CardScript{}, err
	}
	script, err := PromoteScript(out)
	if err != nil {
		return types.CardScript{}, &StageError{Stage: stageName, Err: err}
	}
	return script, nil
}

// VerifyRequest carries the verify stage inputs.
type VerifyRequest struct {
	Text     string
	License  string
	Analysis types.Analysis
	Script   types.CardScript
}

// Inputs renders the request as prompt inputs.
func (r VerifyRequest) Inputs() (Inputs, error) {
	analysisJSON, err := json.MarshalIndent(r.Analysis, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding analysis: %w", err)
	}
	scriptJSON, err := json.MarshalIndent(r.Script, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding script: %w", err)
	}
	return Inputs{
		"paper_text_excerpt": Excerpt(r.Text, VerifyExcerptRunes),
		"license":            r.License,
		"analysis_json":      string(analysisJSON),
		"cardnews_json":      string(scriptJSON),
	}, nil
}

// Verify runs the verify stage and promotes its output.
func (s *Stages) Verify(ctx context.Context, req VerifyRequest) (types.Verification, error) {
	inputs, err := req.Inputs()
	if err != nil {
		return types.Verification{}, &StageError{Stage: types.StageVerify, Err: err}
	}
	out, err := s.Runner.Run(ctx, types.StageVerify, s.Prompts.Verify, inputs)
	if err != nil {
		return types.Verification{}, err
	}
	return PromoteVerification(out), nil
}

// Excerpt returns the first n runes of s.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// PromoteAnalysis checks the analyze output and converts it to a typed
// record: a non-empty hook_headline and 2 to 4 key_findings, each with a
// data_point.
func PromoteAnalysis(out types.StageOutput) (types.Analysis, error) {
	var a types.Analysis
	if err := remarshal(out.Fields, &a); err != nil {
		return types.Analysis{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if strings.TrimSpace(a.Headline) == "" {
		return types.Analysis{}, fmt.Errorf("%w: missing hook_headline", ErrInvalidOutput)
	}
	if n := len(a.Findings); n < MinFindings || n > MaxFindings {
		return types.Analysis{}, fmt.Errorf("%w: %d key_findings, want %d to %d", ErrInvalidOutput, n, MinFindings, MaxFindings)
	}
	for i, f := range a.Findings {
		if strings.TrimSpace(string(f.DataPoint)) == "" {
			return types.Analysis{}, fmt.Errorf("%w: key_findings[%d] has no data_point", ErrInvalidOutput, i)
		}
	}
	return a, nil
}

// PromoteScript checks the script output and converts it to a typed record.
// It requires exactly seven cards whose card_num values are exactly 1..7 in
// any order, each with a type and a known visual_source. The returned cards
// are sorted by card_num.
func PromoteScript(out types.StageOutput) (types.CardScript, error) {
	var script types.CardScript
	if err := remarshal(out.Fields, &script); err != nil {
		return types.CardScript{}, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if len(script.Cards) != types.CardCount {
		return types.CardScript{}, fmt.Errorf("%w: %d cards, want %d", ErrInvalidOutput, len(script.Cards), types.CardCount)
	}

	seen := make(map[int]bool, types.CardCount)
	for _, c := range script.Cards {
		if c.Num < 1 || c.Num > types.CardCount {
			return types.CardScript{}, fmt.Errorf("%w: card_num %d out of range 1..%d", ErrInvalidOutput, c.Num, types.CardCount)
		}
		if seen[c.Num] {
			return types.CardScript{}, fmt.Errorf("%w: duplicate card_num %d", ErrInvalidOutput, c.Num)
		}
		seen[c.Num] = true
		if c.Type == "" {
			return types.CardScript{}, fmt.Errorf("%w: card %d has no type", ErrInvalidOutput, c.Num)
		}
		if !c.VisualSource.Valid() {
			return types.CardScript{}, fmt.Errorf("%w: card %d has visual_source %q", ErrInvalidOutput, c.Num, c.VisualSource)
		}
	}

	sort.Slice(script.Cards, func(i, j int) bool { return script.Cards[i].Num < script.Cards[j].Num })
	return script, nil
}

// PromoteVerification converts the verify output to a typed record. A
// missing or unrecognized verdict becomes UNKNOWN; malformed checks are
// dropped rather than failing the stage.
func PromoteVerification(out types.StageOutput) types.Verification {
	return types.VerificationFromFields(out.Fields)
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
