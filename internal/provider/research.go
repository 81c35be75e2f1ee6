package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/sirupsen/logrus"

	"deckflow/internal/llm"
	dmodel "deckflow/internal/model"
	"deckflow/internal/search"
	"deckflow/internal/tools"
)

const researchInstruction = `You are a research assistant preparing material for a presentation.
Write a factual briefing on the topic using only the search results given.
Organise it as short paragraphs grouped by theme. Keep concrete numbers and dates.`

const researchUser = `Topic: {{.topic}}

Search results:
{{.results}}`

// ResearchProvider researches a topic with exactly two retrieval calls, one
// web search and one image search, then condenses the results into a digest.
type ResearchProvider struct {
	web       einotool.InvokableTool
	visual    einotool.InvokableTool
	synthesis *llm.Completer
	log       *logrus.Entry
}

func NewResearchProvider(ctx context.Context, chat model.BaseChatModel, web, visual einotool.InvokableTool) (*ResearchProvider, error) {
	synthesis, err := llm.NewCompleter(ctx, chat, researchInstruction, researchUser)
	if err != nil {
		return nil, err
	}
	return &ResearchProvider{
		web:       web,
		visual:    visual,
		synthesis: synthesis,
		log:       logrus.WithField("component", "research_provider"),
	}, nil
}

func (p *ResearchProvider) Provide(ctx context.Context, req dmodel.Request) (*dmodel.SourceMaterial, error) {
	topic := strings.TrimSpace(req.Task)
	if topic == "" {
		return nil, ErrNoInput
	}
	args, err := json.Marshal(map[string]string{"query": topic})
	if err != nil {
		return nil, err
	}

	webOut, err := p.web.InvokableRun(ctx, string(args))
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	var webResp tools.WebSearchResp
	if err := json.Unmarshal([]byte(webOut), &webResp); err != nil {
		return nil, fmt.Errorf("failed to parse web search output: %w", err)
	}

	// images are optional, a failed image search leaves the deck text-only
	var visuals []dmodel.Visual
	visOut, err := p.visual.InvokableRun(ctx, string(args))
	if err != nil {
		p.log.WithError(err).Warn("image search failed")
	} else {
		var visResp tools.VisualSearchResp
		if err := json.Unmarshal([]byte(visOut), &visResp); err != nil {
			p.log.WithError(err).Warn("failed to parse image search output")
		} else {
			visuals = visResp.Visuals
		}
	}

	if len(webResp.Results) == 0 {
		return nil, fmt.Errorf("web search returned no results for %q", topic)
	}

	briefing, err := p.synthesis.Complete(ctx, map[string]any{
		"topic":   topic,
		"results": formatResults(webResp.Results),
	})
	if err != nil {
		return nil, fmt.Errorf("synthesise research: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\n%s\n", topic, briefing)
	if len(visuals) > 0 {
		b.WriteString("\nVisuals:\n")
		for _, v := range visuals {
			fmt.Fprintf(&b, "- %s: %s\n", v.Caption, v.URL)
		}
	}
	return &dmodel.SourceMaterial{Digest: b.String(), Visuals: visuals, Origin: OriginResearch}, nil
}

func formatResults(results []search.Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.URL, r.Content)
	}
	return strings.TrimSpace(b.String())
}

var _ Provider = (*ResearchProvider)(nil)
