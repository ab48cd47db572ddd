// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cardnews/internal/container"
	"github.com/pdiddy/cardnews/internal/fulltext"
	"github.com/pdiddy/cardnews/internal/httputil"
	"github.com/pdiddy/cardnews/internal/ledger"
	"github.com/pdiddy/cardnews/internal/license"
	"github.com/pdiddy/cardnews/internal/photo"
	"github.com/pdiddy/cardnews/internal/provider"
	"github.com/pdiddy/cardnews/internal/render"
	"github.com/pdiddy/cardnews/internal/revision"
	"github.com/pdiddy/cardnews/internal/search"
	"github.com/pdiddy/cardnews/internal/stage"
	"github.com/pdiddy/cardnews/pkg/types"
)

const (
	defaultOutputDir  = "output"
	defaultUserAgent  = "cardnews/0.1"
	defaultTimeout    = 30 * time.Second
	defaultPDFTimeout = 45 * time.Second
)

// detectRuntime is swapped in tests.
var detectRuntime = container.DetectRuntime

// App is a fully wired pipeline.
type App struct {
	Finder *search.Finder
	Runner *Runner
	Ledger ledger.Store
	Cfg    types.Config
	Log    *zap.Logger
}

// Build wires every component from cfg. Problems that prevent a run return
// a *ConfigError. The caller must Close the App.
func Build(cfg types.Config, out io.Writer, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	creds := cfg.Credentials

	chain, err := provider.Build(cfg.Generation, creds, log)
	if err != nil {
		return nil, &ConfigError{Key: "generation.providers", Err: err}
	}
	if chain.Len() == 0 {
		return nil, &ConfigError{Key: "generation.providers", Err: provider.ErrNoProvidersConfigured}
	}
	prompts, err := stage.LoadPrompts(cfg.Generation.PromptDir)
	if err != nil {
		return nil, &ConfigError{Key: "generation.prompt_dir", Err: err}
	}
	controller, err := revision.New(
		&stage.Stages{Runner: stage.NewRunner(chain, log), Prompts: prompts},
		revision.Options{
			StageDelay:     cfg.Generation.StageDelay,
			UnknownVerdict: cfg.Generation.UnknownVerdict,
			Log:            log,
		},
	)
	if err != nil {
		return nil, &ConfigError{Key: "generation.unknown_verdict", Err: err}
	}

	renderer, err := NewRenderer(cfg, log)
	if err != nil {
		return nil, &ConfigError{Key: "render", Err: err}
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return nil, &ConfigError{Key: "ledger", Err: err}
	}

	searchHTTP := retrier(cfg.Search.HTTPConfig, defaultTimeout, log)

	outputDir := cfg.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}

	return &App{
		Finder: newFinder(cfg, searchHTTP, log),
		Runner: &Runner{
			Extractor:  fulltext.New(cfg.Extraction, retrier(cfg.Extraction.HTTPConfig, defaultPDFTimeout, log), log),
			License:    &license.Resolver{HTTP: searchHTTP, Email: cfg.Search.OpenAlexEmail, Log: log},
			Controller: controller,
			Renderer:   renderer,
			Ledger:     store,
			OutputDir:  outputDir,
			ItemDelay:  cfg.ItemDelay,
			Log:        log,
			Out:        out,
		},
		Ledger: store,
		Cfg:    cfg,
		Log:    log,
	}, nil
}

// BuildSearch wires only the paper source and the ledger. It needs no
// generation credentials; the returned App has a nil Runner.
func BuildSearch(cfg types.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return nil, &ConfigError{Key: "ledger", Err: err}
	}
	return &App{
		Finder: newFinder(cfg, retrier(cfg.Search.HTTPConfig, defaultTimeout, log), log),
		Ledger: store,
		Cfg:    cfg,
		Log:    log,
	}, nil
}

func newFinder(cfg types.Config, h *httputil.Retrier, log *zap.Logger) *search.Finder {
	source := &search.SemanticScholar{
		HTTP:     h,
		APIKey:   cfg.Credentials.SemanticScholar,
		Limit:    cfg.Search.PerQueryLimit,
		YearFrom: cfg.Search.YearFrom,
	}
	return search.NewFinder(source, cfg.Search, log)
}

// Close releases the ledger.
func (a *App) Close() error {
	return a.Ledger.Close()
}

// Discover loads the ledger and searches for new papers.
func (a *App) Discover(ctx context.Context, queries []string) (search.Output, error) {
	seen, err := a.Ledger.Load(ctx)
	if err != nil {
		return search.Output{}, fmt.Errorf("loading ledger: %w", err)
	}
	return a.Finder.Find(ctx, queries, seen)
}

// RunQueries searches with queries and processes the selected papers.
func (a *App) RunQueries(ctx context.Context, queries []string) (Summary, error) {
	found, err := a.Discover(ctx, queries)
	if err != nil {
		return Summary{}, err
	}
	if len(found.Papers) == 0 {
		a.Log.Info("pipeline: no new papers")
		fmt.Fprintln(a.Runner.Out, "No new papers found.")
		return Summary{}, nil
	}
	return a.Runner.Run(ctx, found.Papers)
}

// NewRenderer builds the card renderer from cfg. Without a Pexels key cards
// have no photos; without a render image or container runtime only HTML is
// written.
func NewRenderer(cfg types.Config, log *zap.Logger) (*render.Renderer, error) {
	var photos render.PhotoSource
	if cfg.Credentials.Pexels != "" {
		photos = &photo.Source{
			HTTP:   retrier(cfg.Render.HTTPConfig, defaultTimeout, log),
			APIKey: cfg.Credentials.Pexels,
			Log:    log,
		}
	} else {
		log.Info("pipeline: no Pexels key, cards use solid backgrounds")
	}

	var raster render.Rasterizer
	if cfg.Render.Image != "" {
		rt, err := detectRuntime()
		if err != nil {
			log.Warn("pipeline: no container runtime, rendering HTML only", zap.Error(err))
		} else {
			raster = &render.ContainerRasterizer{Runtime: rt, Image: cfg.Render.Image, Args: cfg.Render.Args}
		}
	}

	return render.New(photos, raster, cfg.Render.Width, cfg.Render.Height, log)
}

func retrier(h types.HTTPConfig, fallback time.Duration, log *zap.Logger) *httputil.Retrier {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	ua := h.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return httputil.NewRetrier(timeout, ua, log)
}
