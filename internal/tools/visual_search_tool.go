package tools

import (
	"context"
	"encoding/json"
	"errors"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"deckflow/internal/model"
	"deckflow/internal/search"
)

// VisualSearchTool finds images for a topic and pairs each with a caption.
type VisualSearchTool struct {
	client     *search.Client
	MaxResults int
}

type VisualSearchArgs struct {
	Query string `json:"query"`
}

type VisualSearchResp struct {
	Visuals []model.Visual `json:"visuals"`
}

func NewVisualSearchTool(client *search.Client, maxResults int) *VisualSearchTool {
	return &VisualSearchTool{client: client, MaxResults: maxResults}
}

func (t *VisualSearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"query": {Type: schema.String, Required: true, Desc: "images to search for"},
	}
	return &schema.ToolInfo{
		Name:        "visual_search",
		Desc:        "Search the web for images related to a topic, with short captions",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *VisualSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args VisualSearchArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	if args.Query == "" {
		return "", errors.New("query required")
	}

	res, err := t.client.Search(ctx, search.Params{Query: args.Query, MaxResults: t.MaxResults, IncludeImages: true})
	if err != nil {
		return "", err
	}

	// captions prefer the image description, then the matching result title
	visuals := make([]model.Visual, 0, len(res.Images))
	for i, img := range res.Images {
		if img.URL == "" {
			continue
		}
		caption := img.Description
		if caption == "" && i < len(res.Results) {
			caption = res.Results[i].Title
		}
		if caption == "" {
			caption = args.Query
		}
		visuals = append(visuals, model.Visual{Caption: caption, URL: img.URL})
	}

	b, err := json.Marshal(VisualSearchResp{Visuals: visuals})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ einotool.InvokableTool = (*VisualSearchTool)(nil)
