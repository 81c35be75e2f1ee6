// Package export turns the stored slide documents into a single PDF of
// fixed-size raster pages.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	dmodel "deckflow/internal/model"
)

// ErrNoSlides is returned when there is nothing to export.
var ErrNoSlides = errors.New("no slides to export")

// State is a step of the export state machine.
type State string

const (
	StateInit        State = "INIT"
	StateAssetRepair State = "ASSET_REPAIR"
	StateCapture     State = "CAPTURE"
	StateAssemble    State = "ASSEMBLE"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Report describes a finished (or failed) export.
type Report struct {
	State        State    `json:"state"`
	FailedIn     State    `json:"failed_in,omitempty"`
	Path         string   `json:"path,omitempty"`
	Pages        []int    `json:"pages"` // slide index per page, in page order
	Gaps         []int    `json:"gaps,omitempty"`
	Placeholders int      `json:"placeholders"`
	Resampled    []int    `json:"resampled,omitempty"`
	Broken       []string `json:"broken,omitempty"`
}

// Options configures an Exporter.
type Options struct {
	Width  int
	Height int
	Scale  int
}

// ExportOption configures a single Export call.
type ExportOption func(*exportCall)

type exportCall struct {
	onPage func(index, done, total int)
}

// OnPage registers a callback run after each page is captured.
func OnPage(fn func(index, done, total int)) ExportOption {
	return func(c *exportCall) { c.onPage = fn }
}

// Exporter runs INIT -> ASSET_REPAIR -> CAPTURE -> ASSEMBLE -> DONE.
type Exporter struct {
	repairer *Repairer
	capturer Capturer
	opts     Options
	log      *logrus.Entry
}

func NewExporter(repairer *Repairer, capturer Capturer, opts Options) *Exporter {
	if opts.Width <= 0 {
		opts.Width = dmodel.CanvasWidth
	}
	if opts.Height <= 0 {
		opts.Height = dmodel.CanvasHeight
	}
	if opts.Scale <= 0 {
		opts.Scale = 3
	}
	return &Exporter{
		repairer: repairer,
		capturer: capturer,
		opts:     opts,
		log:      logrus.WithField("stage", "export"),
	}
}

// PageSize is the pixel size of every captured page.
func (e *Exporter) PageSize() (int, int) {
	return e.opts.Width * e.opts.Scale, e.opts.Height * e.opts.Scale
}

type run struct {
	report *Report
	log    *logrus.Entry
}

func (r *run) enter(s State) {
	r.log.WithField("from", r.report.State).Debugf("export state %s", s)
	r.report.State = s
}

func (r *run) fail(err error) (*Report, error) {
	r.report.FailedIn = r.report.State
	r.report.State = StateFailed
	r.report.Path = ""
	r.log.WithField("failed_in", r.report.FailedIn).WithError(err).Error("export failed")
	return r.report, fmt.Errorf("export %s: %w", r.report.FailedIn, err)
}

// Export captures slides in increasing index order, whatever order they are
// passed in, and writes the PDF to outPath. Index gaps are logged and
// preserved. Intermediate files are removed on every path.
func (e *Exporter) Export(ctx context.Context, slides []dmodel.RenderedSlide, outPath string, opts ...ExportOption) (*Report, error) {
	var call exportCall
	for _, opt := range opts {
		opt(&call)
	}
	r := &run{report: &Report{State: StateInit}, log: e.log}

	// INIT
	if len(slides) == 0 {
		return r.fail(ErrNoSlides)
	}
	ordered := make([]dmodel.RenderedSlide, len(slides))
	copy(ordered, slides)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for i, s := range ordered {
		if s.Index < 1 {
			return r.fail(fmt.Errorf("invalid slide index %d", s.Index))
		}
		if i > 0 && ordered[i-1].Index == s.Index {
			return r.fail(fmt.Errorf("duplicate slide index %d", s.Index))
		}
	}
	r.report.Gaps = gaps(ordered)
	if len(r.report.Gaps) > 0 {
		r.log.WithField("missing", r.report.Gaps).Warn("slide indices have gaps, exporting present slides only")
	}

	work, err := os.MkdirTemp("", "deckflow-export-*")
	if err != nil {
		return r.fail(fmt.Errorf("create work dir: %w", err))
	}
	defer os.RemoveAll(work)

	// ASSET_REPAIR
	r.enter(StateAssetRepair)
	if err := ctx.Err(); err != nil {
		return r.fail(err)
	}
	repaired, rep, err := e.repairer.Repair(ctx, ordered)
	if err != nil {
		return r.fail(err)
	}
	r.report.Placeholders = rep.Placeholders()
	for _, urls := range rep.Replaced {
		r.report.Broken = append(r.report.Broken, urls...)
	}
	sort.Strings(r.report.Broken)

	// CAPTURE
	r.enter(StateCapture)
	w, h := e.PageSize()
	pngs := make([]string, 0, len(repaired))
	for i, s := range repaired {
		if err := ctx.Err(); err != nil {
			return r.fail(err)
		}
		htmlPath := filepath.Join(work, fmt.Sprintf("slide-%03d.html", s.Index))
		if err := os.WriteFile(htmlPath, []byte(s.HTML), 0o644); err != nil {
			return r.fail(fmt.Errorf("stage slide %d: %w", s.Index, err))
		}
		data, err := e.capturer.Capture(ctx, htmlPath)
		if err != nil {
			return r.fail(fmt.Errorf("capture slide %d: %w", s.Index, err))
		}
		img, resampled, err := normalize(data, w, h)
		if err != nil {
			return r.fail(fmt.Errorf("slide %d: %w", s.Index, err))
		}
		if resampled {
			r.log.WithField("slide", s.Index).Warn("capture size mismatch, resampled to page size")
			r.report.Resampled = append(r.report.Resampled, s.Index)
		}
		pngPath := filepath.Join(work, fmt.Sprintf("page-%03d.png", s.Index))
		if err := writePNG(pngPath, img); err != nil {
			return r.fail(fmt.Errorf("write page %d: %w", s.Index, err))
		}
		pngs = append(pngs, pngPath)
		r.report.Pages = append(r.report.Pages, s.Index)
		if call.onPage != nil {
			call.onPage(s.Index, i+1, len(repaired))
		}
	}

	// ASSEMBLE
	r.enter(StateAssemble)
	if err := assemble(pngs, outPath); err != nil {
		return r.fail(err)
	}

	r.enter(StateDone)
	r.report.Path = outPath
	r.log.WithFields(logrus.Fields{"pages": len(pngs), "path": outPath, "placeholders": r.report.Placeholders}).Info("export done")
	return r.report, nil
}

func gaps(ordered []dmodel.RenderedSlide) []int {
	var out []int
	next := 1
	for _, s := range ordered {
		for ; next < s.Index; next++ {
			out = append(out, next)
		}
		next = s.Index + 1
	}
	return out
}
