package export

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	dmodel "deckflow/internal/model"
)

// PlaceholderClass marks a substituted image block.
const PlaceholderClass = "deckflow-image-unavailable"

const placeholderStyle = "display:flex;align-items:center;justify-content:center;" +
	"background:repeating-linear-gradient(135deg,#e3f2fd 0 10px,#bbdefb 10px 20px);" +
	"color:#1976d2;font-size:18px;font-family:sans-serif;border:2px dashed #1976d2;border-radius:8px;overflow:hidden;"

// Checker decides reachability for one URL.
type Checker interface {
	Reachable(ctx context.Context, url string) bool
}

// Repairer replaces unreachable remote images with a placeholder block that
// keeps the image's layout slot.
type Repairer struct {
	checker     Checker
	concurrency int
	log         *logrus.Entry
}

func NewRepairer(checker Checker, concurrency int) *Repairer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Repairer{checker: checker, concurrency: concurrency, log: logrus.WithField("stage", "asset_repair")}
}

// RepairReport lists the decisions taken for every remote image URL.
type RepairReport struct {
	Checked  []string
	Replaced map[int][]string // slide index -> replaced URLs
}

// Placeholders counts substituted images across all slides.
func (r RepairReport) Placeholders() int {
	n := 0
	for _, urls := range r.Replaced {
		n += len(urls)
	}
	return n
}

// Repair returns repaired copies of docs. The input slides are not modified.
// Slides without unreachable images keep their original markup byte for byte.
func (r *Repairer) Repair(ctx context.Context, docs []dmodel.RenderedSlide) ([]dmodel.RenderedSlide, RepairReport, error) {
	report := RepairReport{Replaced: make(map[int][]string)}

	trees := make([]*html.Node, len(docs))
	seen := make(map[string]bool)
	var urls []string
	for i, d := range docs {
		root, err := html.Parse(strings.NewReader(d.HTML))
		if err != nil {
			return nil, report, fmt.Errorf("parse slide %d: %w", d.Index, err)
		}
		trees[i] = root
		for _, img := range remoteImages(root) {
			u := attr(img, "src")
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
	}
	sort.Strings(urls)
	report.Checked = urls

	reachable := make([]bool, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			reachable[i] = r.checker.Reachable(gctx, u)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, report, err
	}

	broken := make(map[string]bool)
	for i, u := range urls {
		if !reachable[i] {
			broken[u] = true
		}
	}

	out := make([]dmodel.RenderedSlide, len(docs))
	for i, d := range docs {
		out[i] = d
		var replaced []string
		for _, img := range remoteImages(trees[i]) {
			u := attr(img, "src")
			if !broken[u] {
				continue
			}
			img.Parent.InsertBefore(placeholder(img), img)
			img.Parent.RemoveChild(img)
			replaced = append(replaced, u)
			r.log.WithFields(logrus.Fields{"slide": d.Index, "url": u}).Info("replaced broken image with placeholder")
		}
		if len(replaced) == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := html.Render(&buf, trees[i]); err != nil {
			return nil, report, fmt.Errorf("render slide %d: %w", d.Index, err)
		}
		out[i].HTML = buf.String()
		report.Replaced[d.Index] = replaced
	}
	return out, report, nil
}

func remoteImages(root *html.Node) []*html.Node {
	var imgs []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			src := strings.TrimSpace(attr(n, "src"))
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				imgs = append(imgs, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return imgs
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func cssSize(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if strings.Trim(v, "0123456789.") == "" {
		return v + "px"
	}
	return v
}

// placeholder builds the substitute block. It inherits the image's class,
// declared size and inline style so it lands in the same slot.
func placeholder(img *html.Node) *html.Node {
	style := placeholderStyle
	width, height := cssSize(attr(img, "width")), cssSize(attr(img, "height"))
	if width == "" {
		width = "100%"
	}
	if height == "" {
		height = "200px"
	}
	style += "width:" + width + ";height:" + height + ";"
	if s := attr(img, "style"); s != "" {
		style += s
	}
	class := PlaceholderClass
	if c := attr(img, "class"); c != "" {
		class = c + " " + class
	}

	div := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "class", Val: class},
			{Key: "style", Val: style},
			{Key: "role", Val: "img"},
			{Key: "aria-label", Val: "Image unavailable"},
		},
	}
	div.AppendChild(&html.Node{Type: html.TextNode, Data: "Image unavailable"})
	return div
}
