package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckflow/internal/export"
	"deckflow/internal/model"
	"deckflow/internal/provider"
	"deckflow/internal/render"
)

type fakeProvider struct {
	origin string
	err    error
	calls  int
}

func (p *fakeProvider) Provide(ctx context.Context, req model.Request) (*model.SourceMaterial, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &model.SourceMaterial{Digest: "digest for " + req.Task, Origin: p.origin}, nil
}

type fakeBuilder struct {
	calls  int
	intent int
	err    error
}

func makeOutline(topic string, n int) *model.Outline {
	out := &model.Outline{Topic: topic}
	for i := 1; i <= n; i++ {
		role := model.RoleBody
		switch {
		case i == 1:
			role = model.RoleCover
		case i == 2:
			role = model.RoleTOC
		case i == n:
			role = model.RoleClosing
		}
		out.Slides = append(out.Slides, model.SlideSpec{Index: i, Role: role, Title: fmt.Sprintf("Slide %d", i)})
	}
	return out
}

func (b *fakeBuilder) Build(ctx context.Context, topic string, src *model.SourceMaterial, intent int) (*model.Outline, error) {
	b.calls++
	b.intent = intent
	if b.err != nil {
		return nil, b.err
	}
	return makeOutline(topic, intent), nil
}

type fakeRenderer struct {
	fail  map[int]bool
	calls []int
}

func (r *fakeRenderer) Render(ctx context.Context, spec model.SlideSpec, canvas render.Canvas) (*model.RenderedSlide, error) {
	r.calls = append(r.calls, spec.Index)
	if r.fail[spec.Index] || r.fail[-1] {
		return nil, errors.New("layout overflow")
	}
	return &model.RenderedSlide{Index: spec.Index, HTML: fmt.Sprintf("<html><body>%s</body></html>", spec.Title)}, nil
}

type fakeExporter struct {
	err   error
	calls int
	got   []model.RenderedSlide
}

func (e *fakeExporter) Export(ctx context.Context, slides []model.RenderedSlide, outPath string, opts ...export.ExportOption) (*export.Report, error) {
	e.calls++
	e.got = slides
	if e.err != nil {
		return &export.Report{State: export.StateFailed, FailedIn: export.StateCapture}, e.err
	}
	rep := &export.Report{State: export.StateDone, Path: outPath}
	for _, s := range slides {
		rep.Pages = append(rep.Pages, s.Index)
	}
	return rep, os.WriteFile(outPath, []byte("%PDF-1.7"), 0o644)
}

type fakePublisher struct {
	err   error
	paths []string
}

func (p *fakePublisher) Publish(ctx context.Context, runID, path string) (string, error) {
	p.paths = append(p.paths, path)
	if p.err != nil {
		return "", p.err
	}
	return "gs://decks/" + runID + "/" + filepath.Base(path), nil
}

type memLedger struct {
	mu   sync.Mutex
	runs []*model.Result
}

func (l *memLedger) Save(ctx context.Context, res *model.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, res)
	return nil
}

type fixture struct {
	files    *fakeProvider
	research *fakeProvider
	builder  *fakeBuilder
	renderer *fakeRenderer
	exporter *fakeExporter
	ledger   *memLedger
	events   []Event
	dir      string
	orch     *Orchestrator
}

func newFixture(t *testing.T, mutate func(*fixture, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		files:    &fakeProvider{origin: provider.OriginFiles},
		research: &fakeProvider{origin: provider.OriginResearch},
		builder:  &fakeBuilder{},
		renderer: &fakeRenderer{fail: map[int]bool{}},
		exporter: &fakeExporter{},
		ledger:   &memLedger{},
		dir:      filepath.Join(t.TempDir(), "slides"),
	}
	deps := Deps{
		Files:    f.files,
		Research: f.research,
		Builder:  f.builder,
		Renderer: f.renderer,
		Exporter: f.exporter,
		Ledger:   f.ledger,
		Observer: func(ev Event) { f.events = append(f.events, ev) },
	}
	if mutate != nil {
		mutate(f, &deps)
	}
	orch, err := New(context.Background(), deps, Options{SlidesDir: f.dir})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestRunRoutesByFiles(t *testing.T) {
	f := newFixture(t, nil)
	res, err := f.orch.Run(context.Background(), model.Request{Task: "Solar power", SlideCount: 6})
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, res.Status)
	assert.Equal(t, 1, f.research.calls)
	assert.Equal(t, 0, f.files.calls)

	f = newFixture(t, nil)
	res, err = f.orch.Run(context.Background(), model.Request{Task: "Summarise", SlideCount: 6, Files: []string{"a.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, res.Status)
	assert.Equal(t, 1, f.files.calls)
	assert.Equal(t, 0, f.research.calls)
}

func TestRunCompleteProducesArtifact(t *testing.T) {
	pub := &fakePublisher{}
	f := newFixture(t, func(f *fixture, d *Deps) { d.Publisher = pub })

	res, err := f.orch.Run(context.Background(), model.Request{Task: "Tides", SlideCount: 8})
	require.NoError(t, err)

	assert.Equal(t, model.StatusComplete, res.Status)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, res.SlideIndices())
	assert.Empty(t, res.Skipped)
	assert.Equal(t, filepath.Join(f.dir, "presentation.pdf"), res.ArtifactPath)
	assert.FileExists(t, res.ArtifactPath)
	assert.Equal(t, 8, f.builder.intent)

	require.Equal(t, []string{res.ArtifactPath}, pub.paths)
	assert.Equal(t, "gs://decks/"+res.RunID+"/presentation.pdf", res.PublishedURL)

	require.Len(t, f.ledger.runs, 1)
	assert.Equal(t, res, f.ledger.runs[0])
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestRunProviderFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.research.err = errors.New("search quota exhausted")

	res, err := f.orch.Run(context.Background(), model.Request{Task: "Volcanoes", SlideCount: 6})
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageProvide, se.Stage)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, string(StageProvide), res.FatalStage)
	assert.Contains(t, res.Error, "search quota exhausted")
	assert.Equal(t, 0, f.builder.calls)
	assert.Equal(t, 0, f.exporter.calls)
	assert.Empty(t, res.ArtifactPath)
	require.Len(t, f.ledger.runs, 1)
}

func TestRunOutlineFailureIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.builder.err = errors.New("model returned prose")

	res, err := f.orch.Run(context.Background(), model.Request{Task: "Volcanoes", SlideCount: 6})
	require.Error(t, err)
	assert.Equal(t, string(StageOutline), res.FatalStage)
	assert.Empty(t, f.renderer.calls)
}

func TestRunSkipsFailedSlide(t *testing.T) {
	f := newFixture(t, nil)
	f.renderer.fail[5] = true

	res, err := f.orch.Run(context.Background(), model.Request{Task: "Coral reefs", SlideCount: 8})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPartial, res.Status)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8}, res.SlideIndices())
	assert.Equal(t, []int{5}, res.Skipped)
	assert.NotEmpty(t, res.ArtifactPath)
	assert.Empty(t, res.ExportError)

	require.Len(t, f.exporter.got, 7)
	var exported []int
	for _, s := range f.exporter.got {
		exported = append(exported, s.Index)
		assert.NotEmpty(t, s.HTML)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8}, exported)
	assert.NoFileExists(t, filepath.Join(f.dir, "5.html"))

	var skipped []int
	for _, ev := range f.events {
		if ev.Kind == EventSlideSkipped {
			skipped = append(skipped, ev.Slide)
			assert.Error(t, ev.Err)
		}
	}
	assert.Equal(t, []int{5}, skipped)
}

func TestRunNoRenderedSlidesIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.renderer.fail[-1] = true

	res, err := f.orch.Run(context.Background(), model.Request{Task: "Deserts", SlideCount: 5})
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, string(StageRender), res.FatalStage)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, res.Skipped)
	assert.Equal(t, 0, f.exporter.calls)
}

func TestRunExportFailureDegrades(t *testing.T) {
	pub := &fakePublisher{}
	f := newFixture(t, func(f *fixture, d *Deps) { d.Publisher = pub })
	f.exporter.err = errors.New("browser not found")

	res, err := f.orch.Run(context.Background(), model.Request{Task: "Glaciers", SlideCount: 6})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPartial, res.Status)
	assert.Contains(t, res.ExportError, "browser not found")
	assert.Empty(t, res.ArtifactPath)
	assert.Empty(t, res.FatalStage)
	assert.Len(t, res.Slides, 6)
	assert.Empty(t, pub.paths)
}

func TestRunPublishFailureKeepsArtifact(t *testing.T) {
	pub := &fakePublisher{err: errors.New("bucket missing")}
	f := newFixture(t, func(f *fixture, d *Deps) { d.Publisher = pub })

	res, err := f.orch.Run(context.Background(), model.Request{Task: "Rivers", SlideCount: 4})
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, res.Status)
	assert.NotEmpty(t, res.ArtifactPath)
	assert.Empty(t, res.PublishedURL)
}

func TestRunResetsStore(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, os.MkdirAll(f.dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "9.html"), []byte("<p>stale</p>"), 0o644))

	_, err := f.orch.Run(context.Background(), model.Request{Task: "Moons", SlideCount: 4})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(f.dir, "9.html"))
	require.Len(t, f.exporter.got, 4)
	assert.Equal(t, 4, f.exporter.got[3].Index)
}

func TestRunRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, nil)
	for _, req := range []model.Request{
		{SlideCount: 6},
		{Task: "Bees"},
		{Task: "Bees", SlideCount: -1},
	} {
		res, err := f.orch.Run(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.Equal(t, model.StatusFailed, res.Status)
	}
	assert.Equal(t, 0, f.files.calls+f.research.calls)
	assert.Empty(t, f.ledger.runs)
}

func TestRunEmitsEvents(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.Run(context.Background(), model.Request{Task: "Owls", SlideCount: 4})
	require.NoError(t, err)

	var started []Stage
	rendered := 0
	for _, ev := range f.events {
		switch ev.Kind {
		case EventStageStarted:
			started = append(started, ev.Stage)
		case EventSlideRendered:
			rendered++
			assert.Equal(t, 4, ev.Total)
		}
	}
	assert.Equal(t, []Stage{StageProvide, StageOutline, StageRender, StageExport}, started)
	assert.Equal(t, 4, rendered)
}

func TestRunIsolatedDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slides")
	exp := &fakeExporter{}
	orch, err := New(context.Background(), Deps{
		Files:    &fakeProvider{origin: provider.OriginFiles},
		Research: &fakeProvider{origin: provider.OriginResearch},
		Builder:  &fakeBuilder{},
		Renderer: &fakeRenderer{},
		Exporter: exp,
	}, Options{SlidesDir: dir, IsolateRuns: true})
	require.NoError(t, err)

	a, err := orch.Run(context.Background(), model.Request{Task: "A", SlideCount: 4})
	require.NoError(t, err)
	b, err := orch.Run(context.Background(), model.Request{Task: "B", SlideCount: 4})
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, filepath.Join(dir, a.RunID, "presentation.pdf"), a.ArtifactPath)
	assert.FileExists(t, a.ArtifactPath)
	assert.FileExists(t, b.ArtifactPath)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), Deps{}, Options{})
	assert.Error(t, err)
}
