// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stage names used in prompts, logs, and errors.
const (
	StageAnalyze = "analyze"
	StageScript  = "script"
	StageVerify  = "verify"
	StageRevise  = "script-revision"
)

// StageOutput is the untyped JSON object returned by one stage, tagged with
// the stage name for error reporting.
type StageOutput struct {
	Stage  string
	Fields map[string]any
}

// Finding is one numeric data point reported by the analyze stage.
type Finding struct {
	Finding       string     `json:"finding_kr"`
	DataPoint     FlexString `json:"data_point"`
	OriginalQuote string     `json:"original_quote"`
	ChartType     string     `json:"chart_type"`
}

// FigureSelection is the analyze stage's decision about paper figures.
type FigureSelection struct {
	UsePaperFigures FlexBool `json:"use_paper_figures"`
	Reason          string   `json:"reason"`
	SelectedFigures []string `json:"selected_figures"`
	FigureCaptions  []string `json:"figure_captions"`
}

// Analysis is the promoted output of the analyze stage.
type Analysis struct {
	Headline        string          `json:"hook_headline"`
	Sub             string          `json:"hook_sub"`
	Category        string          `json:"category"`
	Findings        []Finding       `json:"key_findings"`
	CitationAPA     string          `json:"citation_apa"`
	FigureSelection FigureSelection `json:"figure_selection"`

	// Raw is the object as returned by the backend. It carries every key the
	// typed fields do not model.
	Raw map[string]any `json:"-"`
}

// MarshalJSON serializes the raw object with the typed figure selection
// written over it, so a gated selection is what downstream stages see.
func (a Analysis) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Raw)+1)
	for k, v := range a.Raw {
		out[k] = v
	}
	if out["hook_headline"] == nil {
		out["hook_headline"] = a.Headline
	}
	if out["key_findings"] == nil {
		out["key_findings"] = a.Findings
	}
	out["figure_selection"] = a.FigureSelection
	return json.Marshal(out)
}

// UnmarshalJSON decodes the typed fields and keeps the full object in Raw.
func (a *Analysis) UnmarshalJSON(data []byte) error {
	type plain Analysis
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Analysis(p)
	a.Raw = raw
	return nil
}

// FlexString accepts any JSON scalar and keeps its text form. Backends
// emit data points as either "170 BPM" or 170.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = FlexString(stringField(v))
	return nil
}

// FlexBool accepts true/false or their string forms.
type FlexBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = FlexBool(t)
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(t))
		*b = FlexBool(parsed)
	default:
		*b = false
	}
	return nil
}

// VisualSource designates where a card's visual comes from.
type VisualSource string

const (
	VisualPexels      VisualSource = "pexels"
	VisualPaperFigure VisualSource = "paper_figure"
	VisualCSSChart    VisualSource = "css_chart"
	VisualNone        VisualSource = "none"
)

// Valid reports whether v is one of the four accepted designators.
func (v VisualSource) Valid() bool {
	switch v {
	case VisualPexels, VisualPaperFigure, VisualCSSChart, VisualNone:
		return true
	}
	return false
}

// CardCount is the number of cards in every script.
const CardCount = 7

// Card is one card of a script. Num, Type, and the visual fields are typed;
// Fields keeps the whole card object for the templates.
type Card struct {
	Num           int
	Type          string
	VisualSource  VisualSource
	PexelsQuery   string
	FigureFile    string
	FigureCaption string
	Fields        map[string]any
}

// HasChartData reports whether the card carries a non-empty chart_data object.
func (c Card) HasChartData() bool {
	m, ok := c.Fields["chart_data"].(map[string]any)
	return ok && len(m) > 0
}

// MarshalJSON writes Fields with the typed values written over them.
func (c Card) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Fields)+3)
	for k, v := range c.Fields {
		out[k] = v
	}
	out["card_num"] = c.Num
	out["type"] = c.Type
	out["visual_source"] = string(c.VisualSource)
	if c.PexelsQuery != "" {
		out["pexels_query"] = c.PexelsQuery
	}
	if c.FigureFile != "" {
		out["figure_file"] = c.FigureFile
	}
	if c.FigureCaption != "" {
		out["figure_caption"] = c.FigureCaption
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a card object. card_num may be a number or a numeric
// string; a missing visual_source becomes "none".
func (c *Card) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	num, err := intField(fields["card_num"])
	if err != nil {
		return fmt.Errorf("card_num: %w", err)
	}
	*c = Card{
		Num:           num,
		Type:          stringField(fields["type"]),
		VisualSource:  VisualSource(strings.ToLower(stringField(fields["visual_source"]))),
		PexelsQuery:   stringField(fields["pexels_query"]),
		FigureFile:    stringField(fields["figure_file"]),
		FigureCaption: stringField(fields["figure_caption"]),
		Fields:        fields,
	}
	if c.VisualSource == "" {
		c.VisualSource = VisualNone
	}
	return nil
}

// CardScript is the promoted output of the script stage.
type CardScript struct {
	Cards   []Card `json:"cards"`
	Caption string `json:"instagram_caption,omitempty"`

	// Raw is the object as returned by the backend.
	Raw map[string]any `json:"-"`
}

// MarshalJSON serializes the raw object with the typed cards and caption
// written over it.
func (s CardScript) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Raw)+2)
	for k, v := range s.Raw {
		out[k] = v
	}
	out["cards"] = s.Cards
	if s.Caption != "" {
		out["instagram_caption"] = s.Caption
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the typed fields and keeps the full object in Raw.
func (s *CardScript) UnmarshalJSON(data []byte) error {
	type plain CardScript
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = CardScript(p)
	s.Raw = raw
	return nil
}

// Verdict is the verify stage's classification of a script.
type Verdict string

const (
	VerdictApproved       Verdict = "APPROVED"
	VerdictRevisionNeeded Verdict = "REVISION_NEEDED"
	VerdictUnknown        Verdict = "UNKNOWN"
)

// ParseVerdict normalizes a backend verdict string. Anything that is not
// recognizably APPROVED or REVISION_NEEDED is UNKNOWN.
func ParseVerdict(s string) Verdict {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch Verdict(norm) {
	case VerdictApproved:
		return VerdictApproved
	case VerdictRevisionNeeded:
		return VerdictRevisionNeeded
	}
	return VerdictUnknown
}

// Check is one line of the verify stage's checklist.
type Check struct {
	Item   string `json:"item"`
	Status string `json:"status"`
	Issue  string `json:"issue,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

// Verification is the promoted output of the verify stage.
type Verification struct {
	Verdict              Verdict `json:"verdict"`
	Checks               []Check `json:"checks"`
	RevisionInstructions string  `json:"revision_instructions"`

	// Raw is the object as returned by the backend.
	Raw map[string]any `json:"-"`
}

// VerificationFromFields builds a Verification from a verify stage object.
// A missing or unrecognized verdict becomes UNKNOWN; malformed checks are
// dropped.
func VerificationFromFields(fields map[string]any) Verification {
	v := Verification{
		Verdict:              ParseVerdict(stringField(fields["verdict"])),
		RevisionInstructions: stringField(fields["revision_instructions"]),
		Raw:                  fields,
	}
	if items, ok := fields["checks"].([]any); ok {
		for _, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				continue
			}
			var c Check
			if err := json.Unmarshal(data, &c); err == nil {
				v.Checks = append(v.Checks, c)
			}
		}
	}
	return v
}

// MarshalJSON serializes the raw object with the normalized verdict written
// over it. Typed fields fill in keys the raw object lacks.
func (v Verification) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Raw)+3)
	for k, val := range v.Raw {
		out[k] = val
	}
	out["verdict"] = string(v.Verdict)
	if out["checks"] == nil {
		out["checks"] = v.Checks
	}
	if out["revision_instructions"] == nil {
		out["revision_instructions"] = v.RevisionInstructions
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a verification object leniently, the same way the
// verify stage output is promoted.
func (v *Verification) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*v = VerificationFromFields(fields)
	return nil
}

// RunRecord is the metadata.json written once per completed paper.
type RunRecord struct {
	RunID        string        `json:"run_id"`
	Paper        PaperRef      `json:"paper"`
	Analysis     Analysis      `json:"analysis"`
	CardNews     CardScript    `json:"cardnews"`
	Verification *Verification `json:"verification"`
	Revised      bool          `json:"revised"`
	Verified     bool          `json:"verified"`
	Images       []string      `json:"images,omitempty"`
	GeneratedAt  time.Time     `json:"generated_at"`
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func intField(v any) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", t)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
