// Package outline turns source material into a bounded, structurally valid
// slide outline.
package outline

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"deckflow/internal/llm"
	dmodel "deckflow/internal/model"
)

var (
	// ErrTooFewSlides is returned for intents below cover + toc + body + closing.
	ErrTooFewSlides = errors.New("slide count below minimum viable deck")
	// ErrFormat is returned when the generated outline has no slide markers.
	ErrFormat = errors.New("outline has no slide markers")
)

const outlineInstruction = `You write a presentation outline from research material.
Produce exactly the requested number of slides using this format for every slide:

Slide N: Title
- bullet point
- bullet point
Visual: https://... (optional, only URLs listed in the material)

Slide 1 is the cover with the presentation title. Slide 2 is the Table of Contents.
The last slide is a closing "Thank You" slide. Every other slide covers one topic with 3 to 5 bullets.`

const outlineUser = `Topic: {{.topic}}
Slides: {{.slides}}

Material:
{{.material}}`

// Builder generates outlines with a chat model and normalises the result.
type Builder struct {
	completer *llm.Completer
	maxSlides int
	attempts  int
	log       *logrus.Entry
}

func NewBuilder(ctx context.Context, chat model.BaseChatModel, maxSlides int) (*Builder, error) {
	completer, err := llm.NewCompleter(ctx, chat, outlineInstruction, outlineUser)
	if err != nil {
		return nil, err
	}
	if maxSlides <= 0 || maxSlides > dmodel.MaxSlides {
		maxSlides = dmodel.MaxSlides
	}
	return &Builder{
		completer: completer,
		maxSlides: maxSlides,
		attempts:  2,
		log:       logrus.WithField("component", "outline"),
	}, nil
}

// Build asks the model for an outline of roughly intent slides. Intents above
// the cap are clamped; intents below the minimum fail with ErrTooFewSlides.
func (b *Builder) Build(ctx context.Context, topic string, src *dmodel.SourceMaterial, intent int) (*dmodel.Outline, error) {
	if intent < dmodel.MinSlides {
		return nil, fmt.Errorf("%w: requested %d, need at least %d", ErrTooFewSlides, intent, dmodel.MinSlides)
	}
	target := intent
	if target > b.maxSlides {
		b.log.WithFields(logrus.Fields{"requested": intent, "cap": b.maxSlides}).Info("clamping slide count")
		target = b.maxSlides
	}
	material := ""
	var visuals []dmodel.Visual
	if src != nil {
		material = src.Digest
		visuals = src.Visuals
	}

	var lastErr error
	for attempt := 1; attempt <= b.attempts; attempt++ {
		text, err := b.completer.Complete(ctx, map[string]any{
			"topic":    topic,
			"slides":   target,
			"material": material,
		})
		if err != nil {
			return nil, fmt.Errorf("generate outline: %w", err)
		}
		sections, err := Parse(text)
		if err != nil {
			b.log.WithField("attempt", attempt).WithError(err).Warn("unparseable outline")
			lastErr = err
			continue
		}
		out := Normalize(topic, sections, target)
		AttachVisuals(out, visuals)
		if err := out.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return out, nil
	}
	return nil, lastErr
}
