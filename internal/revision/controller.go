// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package revision drives one paper through Analyze, Script, and Verify,
// with at most one Script revision when the verifier asks for it. It owns
// the figure license policy: the backend's own figure decision is never
// trusted on its own.
package revision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/stage"
	"github.com/pdiddy/cardnews/pkg/types"
)

// ErrUnverified is the cause of a verify Failure when the verdict is
// UNKNOWN and the policy is PolicyFail.
var ErrUnverified = errors.New("verify returned no recognizable verdict")

// Policies for an UNKNOWN verdict.
const (
	PolicyRender = "render"
	PolicyFail   = "fail"
)

// Stages is the stage surface the controller drives. *stage.Stages
// implements it.
type Stages interface {
	Analyze(ctx context.Context, paper types.Paper) (types.Analysis, error)
	Script(ctx context.Context, stageName string, req stage.ScriptRequest) (types.CardScript, error)
	Verify(ctx context.Context, req stage.VerifyRequest) (types.Verification, error)
}

// Failure is the terminal state of an item that did not complete. Stage
// names the stage that failed.
type Failure struct {
	Stage string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result is the completed state of one item.
type Result struct {
	Analysis     types.Analysis
	Script       types.CardScript
	Verification types.Verification
	Revised      bool
	Verified     bool
}

// Options configures a Controller.
type Options struct {
	// StageDelay separates consecutive generation calls.
	StageDelay time.Duration
	// UnknownVerdict is PolicyRender (default) or PolicyFail.
	UnknownVerdict string
	Log            *zap.Logger
}

// Controller runs the per-item stage state machine.
type Controller struct {
	stages  Stages
	delay   time.Duration
	unknown string
	log     *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New returns a Controller over stages.
func New(stages Stages, opts Options) (*Controller, error) {
	policy := opts.UnknownVerdict
	switch policy {
	case "":
		policy = PolicyRender
	case PolicyRender, PolicyFail:
	default:
		return nil, fmt.Errorf("unknown_verdict %q: want %q or %q", policy, PolicyRender, PolicyFail)
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{stages: stages, delay: opts.StageDelay, unknown: policy, log: log, sleep: sleepCtx}, nil
}

// Run takes paper from Analyze to a final script. On failure the error is a
// *Failure naming the stage.
func (c *Controller) Run(ctx context.Context, paper types.Paper) (Result, error) {
	log := c.log.With(zap.String("doi", paper.DOI))

	raw, err := c.stages.Analyze(ctx, paper)
	if err != nil {
		return Result{}, &Failure{Stage: types.StageAnalyze, Err: err}
	}
	analysis := GateAnalysis(raw, paper)
	allowed := AllowedFigures(analysis)
	if bool(raw.FigureSelection.UsePaperFigures) && allowed == nil {
		log.Info("revision: paper figures disabled",
			zap.String("license", paper.License),
			zap.String("reason", analysis.FigureSelection.Reason))
	}

	req := stage.ScriptRequest{
		Analysis:   analysis,
		UseFigures: bool(analysis.FigureSelection.UsePaperFigures),
		Figures:    allowed,
	}

	if err := c.pause(ctx); err != nil {
		return Result{}, &Failure{Stage: types.StageScript, Err: err}
	}
	script, err := c.stages.Script(ctx, types.StageScript, req)
	if err != nil {
		return Result{}, &Failure{Stage: types.StageScript, Err: err}
	}
	script = GateScript(script, allowed)

	if err := c.pause(ctx); err != nil {
		return Result{}, &Failure{Stage: types.StageVerify, Err: err}
	}
	verification, err := c.stages.Verify(ctx, stage.VerifyRequest{
		Text:     paper.Text,
		License:  paper.License,
		Analysis: analysis,
		Script:   script,
	})
	if err != nil {
		return Result{}, &Failure{Stage: types.StageVerify, Err: err}
	}

	log.Info("revision: verdict", zap.String("verdict", string(verification.Verdict)), zap.Int("checks", len(verification.Checks)))

	result := Result{Analysis: analysis, Script: script, Verification: verification}

	switch verification.Verdict {
	case types.VerdictApproved:
		result.Verified = true

	case types.VerdictRevisionNeeded:
		// One revision, accepted without a second verify.
		revReq := req
		revReq.Revision = verification.RevisionInstructions
		if err := c.pause(ctx); err != nil {
			return Result{}, &Failure{Stage: types.StageRevise, Err: err}
		}
		revised, err := c.stages.Script(ctx, types.StageRevise, revReq)
		if err != nil {
			return Result{}, &Failure{Stage: types.StageRevise, Err: err}
		}
		result.Script = GateScript(revised, allowed)
		result.Revised = true

	default:
		if c.unknown == PolicyFail {
			return Result{}, &Failure{Stage: types.StageVerify, Err: ErrUnverified}
		}
		log.Warn("revision: verdict unknown, rendering unverified script")
	}

	return result, nil
}

func (c *Controller) pause(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	return c.sleep(ctx, c.delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
