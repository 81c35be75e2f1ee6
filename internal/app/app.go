// Package app assembles a ready-to-run pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"deckflow/internal/cache"
	"deckflow/internal/config"
	"deckflow/internal/export"
	"deckflow/internal/llm"
	"deckflow/internal/outline"
	"deckflow/internal/pipeline"
	"deckflow/internal/provider"
	"deckflow/internal/publish"
	"deckflow/internal/render"
	"deckflow/internal/runstore"
	"deckflow/internal/search"
	"deckflow/internal/tools"
)

// App owns the long-lived resources behind an Orchestrator.
type App struct {
	Pipeline *pipeline.Orchestrator
	Runs     *runstore.Store
	closers  []io.Closer
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options tune assembly for the calling surface.
type Options struct {
	Observer    pipeline.Observer
	IsolateRuns bool
	// Capturer replaces the headless browser, mainly for tests.
	Capturer export.Capturer
}

// New builds the pipeline described by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	chat, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}

	searchClient := search.NewClient(cfg.Search)
	web := tools.NewWebSearchTool(searchClient, cfg.Search.WebResults)
	visual := tools.NewVisualSearchTool(searchClient, cfg.Search.ImageResults)

	files, err := provider.NewFileProvider(ctx, chat, cfg.Pipeline.MaxFileBytes)
	if err != nil {
		return nil, err
	}
	research, err := provider.NewResearchProvider(ctx, chat, web, visual)
	if err != nil {
		return nil, err
	}
	fetch := &http.Client{Timeout: cfg.Search.Timeout}

	builder, err := outline.NewBuilder(ctx, chat, cfg.Pipeline.MaxSlides)
	if err != nil {
		return nil, err
	}

	var renderOpts []render.Option
	if cfg.Pipeline.UseCopywriter {
		cw, err := render.NewCopywriter(ctx, chat)
		if err != nil {
			return nil, err
		}
		renderOpts = append(renderOpts, render.WithCopywriter(cw))
	}
	renderer := render.NewRenderer(cfg.Pipeline.Theme, renderOpts...)

	probeCache, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("probe cache: %w", err)
	}
	a.closers = append(a.closers, probeCache)
	prober := export.NewProber(cfg.Export.ProbeTimeout, cfg.Export.ProbeRetries, probeCache, cfg.Cache.TTL)

	capturer := opts.Capturer
	if capturer == nil {
		capturer = export.NewRodCapturer(export.CaptureOptions{
			Width:       cfg.Export.Width,
			Height:      cfg.Export.Height,
			Scale:       cfg.Export.Scale,
			SettleDelay: cfg.Export.SettleDelay,
			Timeout:     cfg.Export.CaptureTimeout,
			BrowserBin:  cfg.Export.BrowserBin,
			NoSandbox:   cfg.Export.NoSandbox,
		})
	}
	a.closers = append(a.closers, capturer)
	exporter := export.NewExporter(export.NewRepairer(prober, cfg.Export.ProbeConcurrency), capturer, export.Options{
		Width:  cfg.Export.Width,
		Height: cfg.Export.Height,
		Scale:  cfg.Export.Scale,
	})

	deps := pipeline.Deps{
		Files:    provider.WithSourceURL(files, fetch),
		Research: provider.WithSourceURL(research, fetch),
		Builder:  builder,
		Renderer: renderer,
		Exporter: exporter,
		Observer: opts.Observer,
	}

	if cfg.Runs.DBPath != "" {
		runs, err := runstore.Open(cfg.Runs.DBPath)
		if err != nil {
			return nil, err
		}
		a.Runs = runs
		a.closers = append(a.closers, runs)
		deps.Ledger = runs
	}

	if cfg.Publish.Bucket != "" {
		pub, err := publish.NewGCSPublisher(ctx, cfg.Publish)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub)
		deps.Publisher = pub
	}

	a.Pipeline, err = pipeline.New(ctx, deps, pipeline.Options{
		SlidesDir:    cfg.Pipeline.SlidesDir,
		ArtifactName: cfg.Pipeline.ArtifactName,
		IsolateRuns:  opts.IsolateRuns || cfg.Pipeline.IsolateRuns,
		Canvas:       render.Canvas{Width: cfg.Export.Width, Height: cfg.Export.Height},
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"llm":     cfg.LLM.Provider,
		"search":  cfg.Search.Provider,
		"cache":   cfg.Cache.Driver,
		"publish": cfg.Publish.Bucket != "",
	}).Info("pipeline assembled")
	return a, nil
}
