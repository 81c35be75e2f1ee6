// Package pipeline sequences content gathering, outlining, slide rendering
// and export as an eino graph with one routing branch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"deckflow/internal/export"
	"deckflow/internal/model"
	"deckflow/internal/provider"
	"deckflow/internal/render"
	"deckflow/internal/store"
)

const (
	nodeFiles    = "files_provider"
	nodeResearch = "research_provider"
	nodeOutline  = "outline"
	nodeSlides   = "slides"
	nodeExport   = "export"
)

// OutlineBuilder produces the outline from source material.
type OutlineBuilder interface {
	Build(ctx context.Context, topic string, src *model.SourceMaterial, intent int) (*model.Outline, error)
}

// SlideRenderer renders one slide.
type SlideRenderer interface {
	Render(ctx context.Context, spec model.SlideSpec, canvas render.Canvas) (*model.RenderedSlide, error)
}

// ArtifactExporter builds the combined artifact.
type ArtifactExporter interface {
	Export(ctx context.Context, slides []model.RenderedSlide, outPath string, opts ...export.ExportOption) (*export.Report, error)
}

// Publisher uploads a finished artifact and returns where it can be fetched.
type Publisher interface {
	Publish(ctx context.Context, runID, path string) (string, error)
}

// Ledger records finished runs.
type Ledger interface {
	Save(ctx context.Context, res *model.Result) error
}

// Deps are the collaborators of an Orchestrator. Publisher, Ledger and
// Observer are optional.
type Deps struct {
	Files     provider.Provider
	Research  provider.Provider
	Builder   OutlineBuilder
	Renderer  SlideRenderer
	Exporter  ArtifactExporter
	Publisher Publisher
	Ledger    Ledger
	Observer  Observer
}

// Options configures where runs write their files.
type Options struct {
	SlidesDir    string
	ArtifactName string
	// IsolateRuns gives every run its own subdirectory of SlidesDir.
	IsolateRuns bool
	Canvas      render.Canvas
}

// Orchestrator runs the pipeline. Runs that share a slides directory are
// serialised; isolated runs proceed concurrently.
type Orchestrator struct {
	deps     Deps
	opts     Options
	observer Observer
	graph    compose.Runnable[*State, *State]
	mu       sync.Mutex
	newID    func() string
	now      func() time.Time
}

func New(ctx context.Context, deps Deps, opts Options) (*Orchestrator, error) {
	if deps.Files == nil || deps.Research == nil || deps.Builder == nil || deps.Renderer == nil || deps.Exporter == nil {
		return nil, errors.New("pipeline: missing collaborator")
	}
	if opts.SlidesDir == "" {
		opts.SlidesDir = "slides"
	}
	if opts.ArtifactName == "" {
		opts.ArtifactName = "presentation.pdf"
	}
	if opts.Canvas.Width <= 0 || opts.Canvas.Height <= 0 {
		opts.Canvas = render.DefaultCanvas
	}
	o := &Orchestrator{
		deps:     deps,
		opts:     opts,
		observer: deps.Observer,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
	g, err := o.buildGraph(ctx)
	if err != nil {
		return nil, err
	}
	o.graph = g
	return o, nil
}

func (o *Orchestrator) buildGraph(ctx context.Context) (compose.Runnable[*State, *State], error) {
	g := compose.NewGraph[*State, *State]()

	nodes := []struct {
		key string
		fn  func(context.Context, *State) (*State, error)
	}{
		{nodeFiles, o.provideWith(o.deps.Files)},
		{nodeResearch, o.provideWith(o.deps.Research)},
		{nodeOutline, o.buildOutline},
		{nodeSlides, o.renderSlides},
		{nodeExport, o.exportDeck},
	}
	for _, n := range nodes {
		if err := g.AddLambdaNode(n.key, compose.InvokableLambda(n.fn)); err != nil {
			return nil, fmt.Errorf("add node %s: %w", n.key, err)
		}
	}

	route := compose.NewGraphBranch(func(ctx context.Context, st *State) (string, error) {
		if provider.Route(st.Request) == provider.OriginFiles {
			return nodeFiles, nil
		}
		return nodeResearch, nil
	}, map[string]bool{nodeFiles: true, nodeResearch: true})
	if err := g.AddBranch(compose.START, route); err != nil {
		return nil, fmt.Errorf("add route branch: %w", err)
	}

	edges := [][2]string{
		{nodeFiles, nodeOutline},
		{nodeResearch, nodeOutline},
		{nodeOutline, nodeSlides},
		{nodeSlides, nodeExport},
		{nodeExport, compose.END},
	}
	for _, e := range edges {
		if err := g.AddEdge(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", e[0], e[1], err)
		}
	}

	r, err := g.Compile(ctx, compose.WithGraphName("deck_pipeline"))
	if err != nil {
		return nil, fmt.Errorf("failed to compile graph: %w", err)
	}
	return r, nil
}

func validate(req model.Request) error {
	if strings.TrimSpace(req.Task) == "" && len(req.Files) == 0 {
		return fmt.Errorf("%w: task or files required", ErrInvalidRequest)
	}
	if req.SlideCount <= 0 {
		return fmt.Errorf("%w: slide count must be positive", ErrInvalidRequest)
	}
	return nil
}

// Run executes one pipeline run. The returned error is non-nil only when
// the request is invalid or a fatal stage failed; a degraded run returns a
// partial result and no error.
func (o *Orchestrator) Run(ctx context.Context, req model.Request) (*model.Result, error) {
	res := &model.Result{RunID: o.newID(), Task: req.Task, StartedAt: o.now()}
	log := logrus.WithField("run_id", res.RunID)

	if err := validate(req); err != nil {
		res.Status = model.StatusFailed
		res.Error = err.Error()
		res.FinishedAt = o.now()
		return res, err
	}

	dir := o.opts.SlidesDir
	if o.opts.IsolateRuns {
		dir = filepath.Join(dir, res.RunID)
	} else {
		o.mu.Lock()
		defer o.mu.Unlock()
	}

	st := &State{RunID: res.RunID, Request: req, store: store.New(dir), log: log}
	// the store is emptied once, before any slide is rendered
	if err := st.store.Reset(); err != nil {
		st.Fatal = &StageError{Stage: StageRender, Err: err}
	} else {
		log.WithFields(logrus.Fields{"route": provider.Route(req), "slides": req.SlideCount}).Info("pipeline started")
		if _, err := o.graph.Invoke(ctx, st); err != nil && st.Fatal == nil {
			st.Fatal = &StageError{Stage: StageProvide, Err: err}
			if st.Outline != nil {
				st.Fatal.Stage = StageRender
			} else if st.Material != nil {
				st.Fatal.Stage = StageOutline
			}
		}
	}

	o.finish(ctx, st, res)
	if o.deps.Ledger != nil {
		if err := o.deps.Ledger.Save(context.WithoutCancel(ctx), res); err != nil {
			log.WithError(err).Warn("failed to record run")
		}
	}
	log.WithFields(logrus.Fields{"status": res.Status, "slides": len(res.Slides), "skipped": res.Skipped}).Info("pipeline finished")
	if st.Fatal != nil {
		return res, st.Fatal
	}
	return res, nil
}

func (o *Orchestrator) finish(ctx context.Context, st *State, res *model.Result) {
	res.Outline = st.Outline
	res.Slides = st.Slides
	res.Skipped = st.Skipped

	switch {
	case st.Fatal != nil:
		res.Status = model.StatusFailed
		res.FatalStage = string(st.Fatal.Stage)
		res.Error = st.Fatal.Err.Error()
	case st.ExportErr != nil:
		res.Status = model.StatusPartial
		res.ExportError = st.ExportErr.Error()
	case len(st.Skipped) > 0:
		res.Status = model.StatusPartial
		res.ArtifactPath = st.Artifact
	default:
		res.Status = model.StatusComplete
		res.ArtifactPath = st.Artifact
	}

	if res.ArtifactPath != "" && o.deps.Publisher != nil {
		url, err := o.deps.Publisher.Publish(ctx, res.RunID, res.ArtifactPath)
		if err != nil {
			st.log.WithField("stage", StagePublish).WithError(err).Warn("publishing failed, keeping local artifact")
		} else {
			res.PublishedURL = url
		}
	}
	res.FinishedAt = o.now()
}

func (o *Orchestrator) provideWith(p provider.Provider) func(context.Context, *State) (*State, error) {
	return func(ctx context.Context, st *State) (*State, error) {
		if err := ctx.Err(); err != nil {
			return st, st.fail(StageProvide, err)
		}
		o.emit(Event{RunID: st.RunID, Kind: EventStageStarted, Stage: StageProvide})
		mat, err := p.Provide(ctx, st.Request)
		if err != nil {
			return st, st.fail(StageProvide, err)
		}
		if mat == nil || strings.TrimSpace(mat.Digest) == "" {
			return st, st.fail(StageProvide, errors.New("content provider returned no material"))
		}
		st.Material = mat
		st.log.WithFields(logrus.Fields{"stage": StageProvide, "origin": mat.Origin, "visuals": len(mat.Visuals)}).Info("source material ready")
		o.emit(Event{RunID: st.RunID, Kind: EventStageFinished, Stage: StageProvide})
		return st, nil
	}
}

func (o *Orchestrator) buildOutline(ctx context.Context, st *State) (*State, error) {
	if err := ctx.Err(); err != nil {
		return st, st.fail(StageOutline, err)
	}
	o.emit(Event{RunID: st.RunID, Kind: EventStageStarted, Stage: StageOutline})
	topic := strings.TrimSpace(st.Request.Task)
	if topic == "" {
		topic = "Presentation"
	}
	out, err := o.deps.Builder.Build(ctx, topic, st.Material, st.Request.SlideCount)
	if err != nil {
		return st, st.fail(StageOutline, err)
	}
	if out.Len() == 0 {
		return st, st.fail(StageOutline, errors.New("empty outline"))
	}
	if err := out.Validate(); err != nil {
		return st, st.fail(StageOutline, err)
	}
	st.Outline = out
	st.log.WithFields(logrus.Fields{"stage": StageOutline, "slides": out.Len()}).Info("outline ready")
	o.emit(Event{RunID: st.RunID, Kind: EventStageFinished, Stage: StageOutline, Total: out.Len()})
	return st, nil
}

// renderSlides renders in increasing index order. A failed slide is skipped
// and its index stays empty. Cancellation stops the loop and keeps what was
// already stored.
func (o *Orchestrator) renderSlides(ctx context.Context, st *State) (*State, error) {
	total := st.Outline.Len()
	o.emit(Event{RunID: st.RunID, Kind: EventStageStarted, Stage: StageRender, Total: total})
	for i, spec := range st.Outline.Slides {
		if err := ctx.Err(); err != nil {
			st.log.WithField("stage", StageRender).WithError(err).Warn("run cancelled during slide rendering")
			break
		}
		log := st.log.WithFields(logrus.Fields{"stage": StageRender, "slide": spec.Index})
		slide, err := o.deps.Renderer.Render(ctx, spec, o.opts.Canvas)
		if err == nil {
			slide.Index = spec.Index
			err = st.store.Put(slide)
		}
		if err != nil {
			log.WithError(err).Warn("slide failed, skipping")
			st.Skipped = append(st.Skipped, spec.Index)
			o.emit(Event{RunID: st.RunID, Kind: EventSlideSkipped, Stage: StageRender, Slide: spec.Index, Done: i + 1, Total: total, Err: err})
			continue
		}
		st.Slides = append(st.Slides, *slide)
		log.Debug("slide stored")
		o.emit(Event{RunID: st.RunID, Kind: EventSlideRendered, Stage: StageRender, Slide: spec.Index, Done: i + 1, Total: total})
	}
	if len(st.Slides) == 0 {
		return st, st.fail(StageRender, errors.New("no slide could be rendered"))
	}
	o.emit(Event{RunID: st.RunID, Kind: EventStageFinished, Stage: StageRender, Total: total})
	return st, nil
}

// exportDeck never fails the run; export problems degrade the result.
func (o *Orchestrator) exportDeck(ctx context.Context, st *State) (*State, error) {
	log := st.log.WithField("stage", StageExport)
	if err := ctx.Err(); err != nil {
		st.ExportErr = err
		return st, nil
	}
	o.emit(Event{RunID: st.RunID, Kind: EventStageStarted, Stage: StageExport})

	// export what is on disk, not what is in memory
	slides, err := st.store.LoadAll()
	if err != nil {
		st.ExportErr = err
		log.WithError(err).Warn("failed to read slide store")
		return st, nil
	}
	outPath := filepath.Join(st.store.Dir(), o.opts.ArtifactName)
	report, err := o.deps.Exporter.Export(ctx, slides, outPath, export.OnPage(func(index, done, total int) {
		o.emit(Event{RunID: st.RunID, Kind: EventPageCaptured, Stage: StageExport, Slide: index, Done: done, Total: total})
	}))
	st.Export = report
	if err != nil {
		st.ExportErr = err
		log.WithError(err).Warn("export failed, returning slides without artifact")
		o.emit(Event{RunID: st.RunID, Kind: EventStageFinished, Stage: StageExport, Err: err})
		return st, nil
	}
	st.Artifact = report.Path
	o.emit(Event{RunID: st.RunID, Kind: EventStageFinished, Stage: StageExport})
	return st, nil
}
