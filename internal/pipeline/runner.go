// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline processes a queue of papers one at a time: extract,
// analyze/script/verify, render, write the run record, and append the
// paper to the ledger. A failing paper is logged and skipped; it never
// aborts the run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/fulltext"
	"github.com/pdiddy/cardnews/internal/ledger"
	"github.com/pdiddy/cardnews/internal/license"
	"github.com/pdiddy/cardnews/internal/render"
	"github.com/pdiddy/cardnews/internal/revision"
	"github.com/pdiddy/cardnews/pkg/types"
)

// Stages reported for failures outside the controller.
const (
	StageExtract  = "extract"
	StageRender   = "render"
	StageArtifact = "artifact"
	StageLedger   = "ledger"
)

const (
	metadataFile = "metadata.json"
	captionFile  = "instagram_caption.txt"
)

// Extractor fills in a paper's text and figures. *fulltext.Extractor
// implements it.
type Extractor interface {
	Extract(ctx context.Context, paper types.Paper) (types.Paper, error)
}

// LicenseResolver looks up a paper's license. *license.Resolver implements
// it.
type LicenseResolver interface {
	Resolve(ctx context.Context, doi string) string
}

// ItemController runs the stage sequence for one paper.
// *revision.Controller implements it.
type ItemController interface {
	Run(ctx context.Context, paper types.Paper) (revision.Result, error)
}

// CardRenderer renders a final script. *render.Renderer implements it.
type CardRenderer interface {
	Render(ctx context.Context, script types.CardScript, figureDir, outDir string) (render.Output, error)
}

// ItemResult is the outcome of one paper.
type ItemResult struct {
	DOI       string
	OutputDir string
	Stage     string // failing stage; empty on success
	Err       error
}

// Summary counts the outcomes of a run. A run with zero completions is not
// an error.
type Summary struct {
	RunID     string
	Completed int
	Failed    int
	Skipped   int
	Items     []ItemResult
}

// Runner processes papers sequentially.
type Runner struct {
	Extractor  Extractor
	License    LicenseResolver // nil keeps Paper.License
	Controller ItemController
	Renderer   CardRenderer
	Ledger     ledger.Store
	OutputDir  string
	ItemDelay  time.Duration
	Log        *zap.Logger
	Out        io.Writer // progress lines; nil discards

	now   func() time.Time
	newID func() string
	sleep func(context.Context, time.Duration) error
}

// Run processes papers in order. Papers already in the ledger, or repeated
// in the queue, are skipped without any network call. The returned error is
// non-nil only when ctx is cancelled or the ledger cannot be read.
func (r *Runner) Run(ctx context.Context, papers []types.Paper) (Summary, error) {
	r.defaults()
	summary := Summary{RunID: r.newID()}
	log := r.Log.With(zap.String("run_id", summary.RunID))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	seen, err := r.Ledger.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading ledger: %w", err)
	}

	processed := 0
	for _, paper := range papers {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if seen.Has(paper.DOI) {
			log.Info("pipeline: item skipped, already processed", zap.String("doi", paper.DOI))
			summary.Skipped++
			summary.Items = append(summary.Items, ItemResult{DOI: paper.DOI})
			continue
		}

		if processed > 0 && r.ItemDelay > 0 {
			if err := r.sleep(ctx, r.ItemDelay); err != nil {
				return summary, err
			}
		}
		processed++

		fmt.Fprintf(r.Out, "processing %s (%s)\n", paper.Title, paper.DOI)
		res := r.runItem(ctx, summary.RunID, paper, log)
		summary.Items = append(summary.Items, res)

		switch {
		case res.Err == nil:
			seen.Add(paper.DOI)
			summary.Completed++
			fmt.Fprintf(r.Out, "done    %s\n", res.OutputDir)
		case errors.Is(res.Err, fulltext.ErrExtractionEmpty):
			log.Warn("pipeline: item skipped", zap.String("doi", paper.DOI), zap.String("stage", res.Stage), zap.Error(res.Err))
			summary.Skipped++
			fmt.Fprintf(r.Out, "skipped %s: no text\n", paper.DOI)
		default:
			log.Error("pipeline: item failed", zap.String("doi", paper.DOI), zap.String("stage", res.Stage), zap.Error(res.Err))
			summary.Failed++
			fmt.Fprintf(r.Out, "failed  %s at %s: %v\n", paper.DOI, res.Stage, res.Err)
		}

		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}

	fmt.Fprintf(r.Out, "\ncompleted: %d, failed: %d, skipped: %d\n",
		summary.Completed, summary.Failed, summary.Skipped)
	log.Info("pipeline: run finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

func (r *Runner) runItem(ctx context.Context, runID string, paper types.Paper, log *zap.Logger) ItemResult {
	res := ItemResult{DOI: paper.DOI}
	fail := func(stage string, err error) ItemResult {
		res.Stage = stage
		res.Err = err
		return res
	}

	if r.License != nil && (paper.License == "" || paper.License == license.Unknown) {
		paper.License = r.License.Resolve(ctx, paper.DOI)
	}
	if paper.License == "" {
		paper.License = license.Unknown
	}

	paper, err := r.Extractor.Extract(ctx, paper)
	if err != nil {
		return fail(StageExtract, err)
	}

	result, err := r.Controller.Run(ctx, paper)
	if err != nil {
		stage := "controller"
		var f *revision.Failure
		if errors.As(err, &f) {
			stage = f.Stage
		}
		return fail(stage, err)
	}

	outDir := filepath.Join(r.OutputDir, r.now().Format("2006-01-02")+"_"+types.SafeID(paper.DOI))
	res.OutputDir = outDir

	rendered, err := r.Renderer.Render(ctx, result.Script, paper.FigureDir, outDir)
	if err != nil {
		return fail(StageRender, err)
	}
	if len(result.Script.Cards) > 0 && len(rendered.HTML) == 0 {
		return fail(StageRender, fmt.Errorf("no card could be rendered"))
	}
	if rendered.Failed > 0 {
		log.Warn("pipeline: some cards failed to render", zap.String("doi", paper.DOI), zap.Int("failed", rendered.Failed))
	}

	record := types.RunRecord{
		RunID:        runID,
		Paper:        paper.Ref(),
		Analysis:     result.Analysis,
		CardNews:     result.Script,
		Verification: &result.Verification,
		Revised:      result.Revised,
		Verified:     result.Verified,
		GeneratedAt:  r.now().UTC(),
	}
	for _, img := range rendered.Images {
		record.Images = append(record.Images, filepath.Base(img))
	}
	if err := writeArtifacts(outDir, record); err != nil {
		return fail(StageArtifact, err)
	}

	err = r.Ledger.Append(ctx, ledger.Entry{
		DOI:         paper.DOI,
		Title:       paper.Title,
		RunID:       runID,
		OutputDir:   outDir,
		CompletedAt: r.now(),
	})
	if err != nil {
		return fail(StageLedger, err)
	}
	return res
}

// writeArtifacts writes instagram_caption.txt (when the script has a
// caption) and then metadata.json into dir. Only items absent from the
// ledger reach this point, so files left by an earlier attempt that never
// committed are replaced; a stale caption is removed when the new script has
// none.
func writeArtifacts(dir string, record types.RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return eris.Wrap(err, "pipeline: encoding metadata")
	}
	captionPath := filepath.Join(dir, captionFile)
	if record.CardNews.Caption != "" {
		if err := replaceFile(captionPath, []byte(record.CardNews.Caption)); err != nil {
			return err
		}
	} else if err := os.Remove(captionPath); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "pipeline: removing stale %s", captionFile)
	}
	return replaceFile(filepath.Join(dir, metadataFile), data)
}

// replaceFile writes data to a temp file in the same directory and renames
// it over path, so readers see either the old file or the complete new one.
func replaceFile(path string, data []byte) error {
	name := filepath.Base(path)
	f, err := os.CreateTemp(filepath.Dir(path), "."+name+".*")
	if err != nil {
		return eris.Wrapf(err, "pipeline: creating %s", name)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return eris.Wrapf(err, "pipeline: writing %s", name)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return eris.Wrapf(err, "pipeline: syncing %s", name)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "pipeline: closing %s", name)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "pipeline: writing %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return eris.Wrapf(err, "pipeline: renaming %s", name)
	}
	return nil
}

func (r *Runner) defaults() {
	if r.Log == nil {
		r.Log = zap.NewNop()
	}
	if r.Out == nil {
		r.Out = io.Discard
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	if r.sleep == nil {
		r.sleep = sleepCtx
	}
	if r.OutputDir == "" {
		r.OutputDir = defaultOutputDir
	}
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
