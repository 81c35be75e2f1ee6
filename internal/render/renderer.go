// Package render turns slide specs into self-contained HTML documents bound
// to a fixed canvas.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/sirupsen/logrus"

	dmodel "deckflow/internal/model"
)

// ErrUnrenderable is returned for specs with nothing to show or a bad index.
var ErrUnrenderable = errors.New("unrenderable slide spec")

// Canvas is the logical slide size in CSS pixels.
type Canvas struct {
	Width  int
	Height int
}

// DefaultCanvas is the 16:9 canvas every slide is laid out on.
var DefaultCanvas = Canvas{Width: dmodel.CanvasWidth, Height: dmodel.CanvasHeight}

// Renderer produces one HTML document per slide. It keeps no state between
// slides apart from its theme.
type Renderer struct {
	theme  Theme
	copy   *Copywriter
	log    *logrus.Entry
	layout *template.Template
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithCopywriter rewrites body slide text with a chat model before layout.
func WithCopywriter(c *Copywriter) Option {
	return func(r *Renderer) { r.copy = c }
}

func NewRenderer(themeName string, opts ...Option) *Renderer {
	r := &Renderer{
		theme:  LookupTheme(themeName),
		log:    logrus.WithField("component", "renderer"),
		layout: slideTemplates,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type slideView struct {
	Canvas  Canvas
	Theme   Theme
	Index   int
	Title   string
	Bullets []string
	Visual  string
	Layout  string
}

// Render lays out one slide. The visual, if any, is embedded by URL and not
// fetched.
func (r *Renderer) Render(ctx context.Context, spec dmodel.SlideSpec, canvas Canvas) (*dmodel.RenderedSlide, error) {
	if spec.Index < 1 {
		return nil, fmt.Errorf("%w: index %d", ErrUnrenderable, spec.Index)
	}
	if strings.TrimSpace(spec.Title) == "" && len(spec.Bullets) == 0 {
		return nil, fmt.Errorf("%w: slide %d has no title and no bullets", ErrUnrenderable, spec.Index)
	}
	if canvas.Width <= 0 || canvas.Height <= 0 {
		canvas = DefaultCanvas
	}

	if r.copy != nil && spec.Role == dmodel.RoleBody {
		rewritten, err := r.copy.Rewrite(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("copy for slide %d: %w", spec.Index, err)
		}
		spec = rewritten
	}

	view := slideView{
		Canvas:  canvas,
		Theme:   r.theme,
		Index:   spec.Index,
		Title:   spec.Title,
		Bullets: spec.Bullets,
		Visual:  spec.Visual,
		Layout:  layoutFor(spec),
	}

	var buf bytes.Buffer
	if err := r.layout.ExecuteTemplate(&buf, "slide", view); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrenderable, err)
	}
	r.log.WithFields(logrus.Fields{"slide": spec.Index, "layout": view.Layout}).Debug("slide rendered")
	return &dmodel.RenderedSlide{Index: spec.Index, HTML: buf.String()}, nil
}

func layoutFor(spec dmodel.SlideSpec) string {
	switch spec.Role {
	case dmodel.RoleCover:
		return "cover"
	case dmodel.RoleTOC:
		return "toc"
	}
	if spec.Visual != "" {
		return "split"
	}
	return "content"
}
