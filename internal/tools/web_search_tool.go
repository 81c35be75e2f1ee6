package tools

import (
	"context"
	"encoding/json"
	"errors"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"deckflow/internal/search"
)

// WebSearchTool 实现eino框架的网页搜索工具
type WebSearchTool struct {
	client     *search.Client
	MaxResults int
}

// WebSearchArgs 网页搜索请求参数
type WebSearchArgs struct {
	Query string `json:"query"`
}

// WebSearchResp 网页搜索响应
type WebSearchResp struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

func NewWebSearchTool(client *search.Client, maxResults int) *WebSearchTool {
	return &WebSearchTool{client: client, MaxResults: maxResults}
}

func (t *WebSearchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	params := map[string]*schema.ParameterInfo{
		"query": {Type: schema.String, Required: true, Desc: "the query to research on the web"},
	}
	return &schema.ToolInfo{
		Name:        "web_search",
		Desc:        "Research a topic on the web and return the top results with their content",
		ParamsOneOf: schema.NewParamsOneOfByParams(params),
	}, nil
}

func (t *WebSearchTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args WebSearchArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	if args.Query == "" {
		return "", errors.New("query required")
	}

	res, err := t.client.Search(ctx, search.Params{Query: args.Query, MaxResults: t.MaxResults})
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(WebSearchResp{Query: args.Query, Results: res.Results})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ einotool.InvokableTool = (*WebSearchTool)(nil)
