// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package stage runs one named generation stage: it renders the stage's
// prompt template from string inputs, sends it through the provider chain,
// recovers a JSON object from the reply, and promotes that object to the
// stage's typed record.
package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/llmjson"
	"github.com/pdiddy/cardnews/internal/provider"
	"github.com/pdiddy/cardnews/pkg/types"
)

// ErrStageFailed is matched by every *StageError.
var ErrStageFailed = errors.New("stage failed")

// ErrInvalidOutput marks a stage reply that parsed as JSON but lacks the
// keys or shape the next stage depends on.
var ErrInvalidOutput = errors.New("invalid stage output")

// Inputs are the named values interpolated into a stage prompt. A fresh map
// is built for every invocation.
type Inputs map[string]string

// TemplateError reports a prompt template that failed to parse or that
// referenced a placeholder with no input.
type TemplateError struct {
	Template string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// StageError wraps any failure of one stage with the stage name.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStageFailed) true.
func (e *StageError) Is(target error) bool {
	return target == ErrStageFailed
}

// Runner executes stages against one generator.
type Runner struct {
	gen provider.Generator
	log *zap.Logger
}

// NewRunner returns a Runner that sends prompts to gen.
func NewRunner(gen provider.Generator, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{gen: gen, log: log}
}

// Run renders tmpl with inputs, generates, and decodes the reply. Every
// failure is returned as a *StageError naming stageName.
func (r *Runner) Run(ctx context.Context, stageName string, tmpl *template.Template, inputs Inputs) (types.StageOutput, error) {
	prompt, err := render(tmpl, inputs)
	if err != nil {
		return types.StageOutput{}, &StageError{Stage: stageName, Err: err}
	}
	return r.RunPrompt(ctx, stageName, prompt)
}

// RunPrompt generates from an already rendered prompt and decodes the reply.
func (r *Runner) RunPrompt(ctx context.Context, stageName, prompt string) (types.StageOutput, error) {
	r.log.Debug("stage: generating", zap.String("stage", stageName), zap.Int("prompt_chars", len(prompt)))

	raw, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		return types.StageOutput{}, &StageError{Stage: stageName, Err: err}
	}

	fields, err := llmjson.Decode(raw)
	if err != nil {
		return types.StageOutput{}, &StageError{Stage: stageName, Err: err}
	}

	r.log.Debug("stage: decoded", zap.String("stage", stageName), zap.Int("keys", len(fields)))
	return types.StageOutput{Stage: stageName, Fields: fields}, nil
}

func render(tmpl *template.Template, inputs Inputs) (string, error) {
	if tmpl == nil {
		return "", &TemplateError{Template: "<nil>", Err: errors.New("no template")}
	}
	// A nil map would make every placeholder "no value" instead of an error.
	data := map[string]string(inputs)
	if data == nil {
		data = map[string]string{}
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", &TemplateError{Template: tmpl.Name(), Err: err}
	}
	return sb.String(), nil
}
