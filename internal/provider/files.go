package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gen2brain/go-fitz"
	"github.com/sirupsen/logrus"

	"deckflow/internal/llm"
	dmodel "deckflow/internal/model"
)

const pageSummaryInstruction = `You maintain a running summary of a document that is read one page at a time.
Merge the new page into the summary. Keep facts, figures and names. Reply with the updated summary only, at most 300 words.`

const pageSummaryUser = `Summary so far:
{{.summary}}

Page {{.page}}:
{{.text}}`

const imageDescribeInstruction = `Describe the image for someone preparing a presentation. Mention charts, numbers and any readable text. Reply in under 150 words.`

// FileError records why one uploaded file was left out of the digest.
type FileError struct {
	Path   string
	Reason string
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s", filepath.Base(e.Path), e.Reason)
}

// FileProvider digests uploaded documents. PDFs are summarised page by page,
// text files are read as is and images are described by the chat model.
type FileProvider struct {
	chat     model.BaseChatModel
	pages    *llm.Completer
	maxBytes int64
	log      *logrus.Entry
}

func NewFileProvider(ctx context.Context, chat model.BaseChatModel, maxBytes int64) (*FileProvider, error) {
	pages, err := llm.NewCompleter(ctx, chat, pageSummaryInstruction, pageSummaryUser)
	if err != nil {
		return nil, err
	}
	return &FileProvider{
		chat:     chat,
		pages:    pages,
		maxBytes: maxBytes,
		log:      logrus.WithField("component", "file_provider"),
	}, nil
}

// Provide digests every file in order. A file that fails is noted in the
// digest and skipped; only a total failure is an error.
func (p *FileProvider) Provide(ctx context.Context, req dmodel.Request) (*dmodel.SourceMaterial, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoInput
	}

	var sections []string
	var failed []FileError
	for _, path := range req.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := p.digestFile(ctx, path)
		if err != nil {
			fe := FileError{Path: path, Reason: err.Error()}
			p.log.WithField("file", path).WithError(err).Warn("skipping file")
			failed = append(failed, fe)
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s\n%s", filepath.Base(path), text))
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrAllFilesFailed, failed)
	}

	var b strings.Builder
	if req.Task != "" {
		fmt.Fprintf(&b, "Task: %s\n\n", req.Task)
	}
	b.WriteString(strings.Join(sections, "\n\n"))
	if len(failed) > 0 {
		b.WriteString("\n\nFiles not included:\n")
		for _, fe := range failed {
			fmt.Fprintf(&b, "- %s\n", fe.Error())
		}
	}
	return &dmodel.SourceMaterial{Digest: b.String(), Origin: OriginFiles}, nil
}

func (p *FileProvider) digestFile(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("unreadable: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("unreadable: is a directory")
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("empty file")
	}
	if p.maxBytes > 0 && info.Size() > p.maxBytes {
		return "", fmt.Errorf("oversized: %d bytes exceeds %d", info.Size(), p.maxBytes)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		return p.summarizePDF(ctx, path)
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("unreadable: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("empty file")
		}
		return text, nil
	case ".png", ".jpg", ".jpeg", ".webp":
		return p.describeImage(ctx, path, ext)
	default:
		return "", fmt.Errorf("unsupported file type %q", ext)
	}
}

func (p *FileProvider) summarizePDF(ctx context.Context, path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("unreadable: %w", err)
	}
	defer doc.Close()

	summary := ""
	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := doc.Text(n)
		if err != nil {
			p.log.WithFields(logrus.Fields{"file": path, "page": n + 1}).WithError(err).Warn("page text extraction failed")
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		next, err := p.pages.Complete(ctx, map[string]any{
			"summary": summary,
			"page":    n + 1,
			"text":    text,
		})
		if err != nil {
			return "", fmt.Errorf("summarise page %d: %w", n+1, err)
		}
		summary = next
	}
	if summary == "" {
		return "", fmt.Errorf("empty file")
	}
	return summary, nil
}

func (p *FileProvider) describeImage(ctx context.Context, path, ext string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("unreadable: %w", err)
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "image/" + strings.TrimPrefix(ext, ".")
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	msgs := []*schema.Message{
		schema.SystemMessage(imageDescribeInstruction),
		{
			Role:    schema.User,
			Content: "Image file: " + filepath.Base(path),
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: "Describe this image: " + filepath.Base(path)},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: dataURL, MIMEType: mimeType}},
			},
		},
	}
	return llm.Generate(ctx, p.chat, msgs)
}

var _ Provider = (*FileProvider)(nil)
