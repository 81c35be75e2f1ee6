package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"deckflow/internal/pipeline"
)

// runProgress shows slide rendering and page capture as one bar.
type runProgress struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newRunProgress(w io.Writer) *runProgress {
	return &runProgress{w: w}
}

func (p *runProgress) newBar(total int, description string) {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(p.w, "\n") }),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Observe is a pipeline.Observer.
func (p *runProgress) Observe(ev pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Kind {
	case pipeline.EventStageStarted:
		switch ev.Stage {
		case pipeline.StageProvide:
			fmt.Fprintln(p.w, "gathering source material...")
		case pipeline.StageOutline:
			fmt.Fprintln(p.w, "building outline...")
		case pipeline.StageRender:
			p.newBar(ev.Total, "slides ")
		}
	case pipeline.EventSlideRendered, pipeline.EventSlideSkipped:
		if p.bar != nil {
			_ = p.bar.Set(ev.Done)
		}
	case pipeline.EventPageCaptured:
		if p.bar == nil || ev.Done == 1 {
			p.newBar(ev.Total, "capture")
		}
		_ = p.bar.Set(ev.Done)
	}
}

func (p *runProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
