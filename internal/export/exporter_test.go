package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dmodel "deckflow/internal/model"
)

var slideFileRe = regexp.MustCompile(`slide-(\d+)\.html$`)

// fakeCapturer returns a solid PNG whose size varies with the slide, the way
// a real browser occasionally reports an off-by-some frame.
type fakeCapturer struct {
	mu      sync.Mutex
	order   []int
	docs    map[int]string
	paths   []string
	failOn  int
	sizeFor func(index int) (int, int)
}

func (f *fakeCapturer) Capture(ctx context.Context, htmlPath string) ([]byte, error) {
	m := slideFileRe.FindStringSubmatch(htmlPath)
	if m == nil {
		return nil, fmt.Errorf("unexpected path %s", htmlPath)
	}
	index, _ := strconv.Atoi(m[1])
	raw, err := os.ReadFile(htmlPath)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.order = append(f.order, index)
	f.paths = append(f.paths, htmlPath)
	if f.docs == nil {
		f.docs = make(map[int]string)
	}
	f.docs[index] = string(raw)
	f.mu.Unlock()

	if index == f.failOn {
		return nil, errors.New("renderer crashed")
	}
	w, h := 128, 72
	if f.sizeFor != nil {
		w, h = f.sizeFor(index)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: uint8(index * 20), G: 90, B: 160, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakeCapturer) Close() error { return nil }

func testExporter(capt Capturer, checker Checker) *Exporter {
	if checker == nil {
		checker = newStaticChecker(nil)
	}
	return NewExporter(NewRepairer(checker, 2), capt, Options{Width: 64, Height: 36, Scale: 2})
}

func plainSlides(indices ...int) []dmodel.RenderedSlide {
	out := make([]dmodel.RenderedSlide, 0, len(indices))
	for _, i := range indices {
		out = append(out, dmodel.RenderedSlide{Index: i, HTML: fmt.Sprintf("<html><body><div class=\"slide\">slide %d</div></body></html>", i)})
	}
	return out
}

func TestExportProducesUniformPages(t *testing.T) {
	capt := &fakeCapturer{sizeFor: func(i int) (int, int) {
		switch i {
		case 2:
			return 130, 73
		case 3:
			return 64, 36
		}
		return 128, 72
	}}
	exp := testExporter(capt, nil)
	w, h := exp.PageSize()
	assert.Equal(t, 128, w)
	assert.Equal(t, 72, h)

	out := filepath.Join(t.TempDir(), "out", "deck.pdf")
	rep, err := exp.Export(context.Background(), plainSlides(1, 2, 3, 4), out)
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, out, rep.Path)
	assert.Equal(t, []int{1, 2, 3, 4}, rep.Pages)
	assert.Equal(t, []int{2, 3}, rep.Resampled)

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	dims, err := api.PageDimsFile(out)
	require.NoError(t, err)
	require.Len(t, dims, 4)
	for _, d := range dims[1:] {
		assert.Equal(t, dims[0], d)
	}
}

func TestExportOrdersByIndex(t *testing.T) {
	capt := &fakeCapturer{}
	slides := plainSlides(3, 1, 4, 2)
	var seen []int
	out := filepath.Join(t.TempDir(), "deck.pdf")

	rep, err := testExporter(capt, nil).Export(context.Background(), slides, out, OnPage(func(index, done, total int) {
		seen = append(seen, index)
		assert.Equal(t, 4, total)
		assert.Equal(t, len(seen), done)
	}))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, capt.order)
	assert.Equal(t, []int{1, 2, 3, 4}, rep.Pages)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
	assert.Equal(t, 3, slides[0].Index, "caller slice must not be reordered")
}

func TestExportToleratesGaps(t *testing.T) {
	capt := &fakeCapturer{}
	out := filepath.Join(t.TempDir(), "deck.pdf")

	rep, err := testExporter(capt, nil).Export(context.Background(), plainSlides(1, 2, 3, 4, 6, 7, 8), out)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, rep.Gaps)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8}, rep.Pages)

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestExportRepairsBrokenImages(t *testing.T) {
	capt := &fakeCapturer{}
	checker := newStaticChecker(map[string]bool{"https://img/ok.png": true})
	slides := []dmodel.RenderedSlide{
		slideWithImage(1, "https://img/ok.png"),
		slideWithImage(2, "https://img/broken.png"),
		plainSlides(3)[0],
	}
	out := filepath.Join(t.TempDir(), "deck.pdf")

	rep, err := testExporter(capt, checker).Export(context.Background(), slides, out)
	require.NoError(t, err)
	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 1, rep.Placeholders)
	assert.Equal(t, []string{"https://img/broken.png"}, rep.Broken)

	assert.Equal(t, slides[0].HTML, capt.docs[1])
	assert.Contains(t, capt.docs[2], PlaceholderClass)
	assert.NotContains(t, capt.docs[2], "broken.png\"")
	assert.NotContains(t, slides[1].HTML, PlaceholderClass)

	n, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestExportCaptureFailure(t *testing.T) {
	capt := &fakeCapturer{failOn: 2}
	dir := t.TempDir()
	out := filepath.Join(dir, "deck.pdf")

	rep, err := testExporter(capt, nil).Export(context.Background(), plainSlides(1, 2, 3), out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer crashed")
	assert.Equal(t, StateFailed, rep.State)
	assert.Equal(t, StateCapture, rep.FailedIn)
	assert.Empty(t, rep.Path)
	assert.Equal(t, []int{1, 2}, capt.order)

	assert.NoFileExists(t, out)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	for _, p := range capt.paths {
		assert.NoFileExists(t, p, "work files must be removed")
	}
}

func TestExportRemovesWorkFiles(t *testing.T) {
	capt := &fakeCapturer{}
	out := filepath.Join(t.TempDir(), "deck.pdf")
	_, err := testExporter(capt, nil).Export(context.Background(), plainSlides(1, 2), out)
	require.NoError(t, err)
	require.Len(t, capt.paths, 2)
	assert.NoDirExists(t, filepath.Dir(capt.paths[0]))
}

func TestExportRejectsBadInput(t *testing.T) {
	exp := testExporter(&fakeCapturer{}, nil)
	out := filepath.Join(t.TempDir(), "deck.pdf")

	rep, err := exp.Export(context.Background(), nil, out)
	assert.ErrorIs(t, err, ErrNoSlides)
	assert.Equal(t, StateInit, rep.FailedIn)

	_, err = exp.Export(context.Background(), plainSlides(1, 2, 2), out)
	assert.ErrorContains(t, err, "duplicate slide index 2")

	_, err = exp.Export(context.Background(), plainSlides(0, 1), out)
	assert.ErrorContains(t, err, "invalid slide index 0")
	assert.NoFileExists(t, out)
}

func TestExportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "deck.pdf")

	rep, err := testExporter(&fakeCapturer{}, nil).Export(ctx, plainSlides(1), out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateAssetRepair, rep.FailedIn)
	assert.NoFileExists(t, out)
}

func TestNormalize(t *testing.T) {
	encode := func(w, h int) []byte {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
		return buf.Bytes()
	}

	img, resampled, err := normalize(encode(300, 200), 120, 90)
	require.NoError(t, err)
	assert.True(t, resampled)
	assert.Equal(t, image.Rect(0, 0, 120, 90), img.Bounds())

	img, resampled, err = normalize(encode(120, 90), 120, 90)
	require.NoError(t, err)
	assert.False(t, resampled)
	assert.Equal(t, image.Rect(0, 0, 120, 90), img.Bounds())

	_, _, err = normalize([]byte("not an image"), 10, 10)
	assert.Error(t, err)
}
