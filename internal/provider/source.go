package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	dmodel "deckflow/internal/model"
)

const maxSourceChars = 8000

// WithSourceURL wraps a provider so that, when the request names a source
// URL, the page text is appended to the material. Fetch failures are logged
// and do not fail the provider.
func WithSourceURL(inner Provider, client *http.Client) Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &sourceProvider{inner: inner, client: client}
}

type sourceProvider struct {
	inner  Provider
	client *http.Client
}

func (p *sourceProvider) Provide(ctx context.Context, req dmodel.Request) (*dmodel.SourceMaterial, error) {
	mat, err := p.inner.Provide(ctx, req)
	if err != nil || req.SourceURL == "" {
		return mat, err
	}
	text, err := FetchPageText(ctx, p.client, req.SourceURL)
	if err != nil {
		logrus.WithField("url", req.SourceURL).WithError(err).Warn("source url fetch failed")
		return mat, nil
	}
	mat.Digest += "\n\nSource page (" + req.SourceURL + "):\n" + text
	return mat, nil
}

// FetchPageText downloads an HTML page and returns its visible text.
func FetchPageText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", url, err)
	}
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(parts, " ")
	if text == "" {
		return "", fmt.Errorf("fetch %s: no text content", url)
	}
	if r := []rune(text); len(r) > maxSourceChars {
		text = string(r[:maxSourceChars])
	}
	return text, nil
}
