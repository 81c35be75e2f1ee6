package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"deckflow/internal/config"
)

const defaultBase = "https://api.tavily.com"

// Result 一条网页搜索结果
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Image 一条图片搜索结果
type Image struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Response 搜索接口的归一化响应
type Response struct {
	Results []Result `json:"results"`
	Images  []Image  `json:"images"`
}

// Params 一次搜索请求参数
type Params struct {
	Query         string
	MaxResults    int
	IncludeImages bool
}

// Client talks to a Tavily-compatible search API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Retries    int
	Mock       bool
}

func NewClient(cfg config.SearchConfig) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBase
	}
	return &Client{
		BaseURL:    base,
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Retries:    cfg.Retries,
		Mock:       cfg.Provider == "mock",
	}
}

// Search runs one query. Transport errors and 5xx responses are retried.
func (c *Client) Search(ctx context.Context, p Params) (*Response, error) {
	if p.Query == "" {
		return nil, errors.New("query required")
	}
	if c.Mock {
		return mockResponse(p), nil
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 5
	}
	body := map[string]any{
		"query":       p.Query,
		"max_results": p.MaxResults,
	}
	if p.IncludeImages {
		body["include_images"] = true
		body["include_image_descriptions"] = true
	}

	var raw struct {
		Results []Result          `json:"results"`
		Images  []json.RawMessage `json:"images"`
	}
	op := func() error {
		return c.postJSON(ctx, "/search", body, &raw)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.Retries)), ctx)
	notify := func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{"query": p.Query, "wait": wait}).WithError(err).Warn("search failed, retrying")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}

	out := &Response{Results: raw.Results}
	for _, img := range raw.Images {
		out.Images = append(out.Images, decodeImage(img))
	}
	return out, nil
}

// images come back either as bare URLs or as {url, description} objects
func decodeImage(raw json.RawMessage) Image {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Image{URL: s}
	}
	var img Image
	_ = json.Unmarshal(raw, &img)
	return img
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 500 {
		return fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return backoff.Permanent(fmt.Errorf("http %d: %s", res.StatusCode, string(bodyBytes)))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode search response: %w", err))
	}
	return nil
}

func mockResponse(p Params) *Response {
	resp := &Response{}
	n := p.MaxResults
	if n <= 0 {
		n = 2
	}
	for i := 1; i <= n; i++ {
		resp.Results = append(resp.Results, Result{
			Title:   fmt.Sprintf("%s (source %d)", p.Query, i),
			URL:     fmt.Sprintf("https://example.com/%d", i),
			Content: fmt.Sprintf("Background material %d on %s.", i, p.Query),
		})
		if p.IncludeImages {
			resp.Images = append(resp.Images, Image{
				URL:         fmt.Sprintf("https://example.com/images/%d.png", i),
				Description: fmt.Sprintf("Illustration %d for %s", i, p.Query),
			})
		}
	}
	return resp
}
