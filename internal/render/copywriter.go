package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"deckflow/internal/llm"
	dmodel "deckflow/internal/model"
)

const copyInstruction = `You write slide copy for one presentation slide.
Keep the meaning of the outline, tighten the wording and keep at most 5 points of at most 14 words each.
Reply with JSON only: {"title": "...", "points": ["...", "..."]}`

const copyUser = `Title: {{.title}}
{{range .bullets}}- {{.}}
{{end}}`

const maxPoints = 5

// Copywriter tightens body slide text with a chat model.
type Copywriter struct {
	completer *llm.Completer
}

type slideCopy struct {
	Title  string   `json:"title"`
	Points []string `json:"points"`
}

func NewCopywriter(ctx context.Context, chat model.BaseChatModel) (*Copywriter, error) {
	completer, err := llm.NewCompleter(ctx, chat, copyInstruction, copyUser)
	if err != nil {
		return nil, err
	}
	return &Copywriter{completer: completer}, nil
}

// Rewrite returns spec with model-written title and bullets. Empty fields in
// the reply keep the outline's text.
func (c *Copywriter) Rewrite(ctx context.Context, spec dmodel.SlideSpec) (dmodel.SlideSpec, error) {
	reply, err := c.completer.Complete(ctx, map[string]any{
		"title":   spec.Title,
		"bullets": spec.Bullets,
	})
	if err != nil {
		return spec, err
	}
	var out slideCopy
	if err := llm.DecodeJSON(reply, &out); err != nil {
		return spec, err
	}
	if t := strings.TrimSpace(out.Title); t != "" {
		spec.Title = t
	}
	var points []string
	for _, p := range out.Points {
		if p = strings.TrimSpace(p); p != "" {
			points = append(points, p)
		}
	}
	if len(points) > maxPoints {
		points = points[:maxPoints]
	}
	if len(points) > 0 {
		spec.Bullets = points
	}
	if spec.Title == "" && len(spec.Bullets) == 0 {
		return spec, fmt.Errorf("copy reply has no content")
	}
	return spec, nil
}
