package export

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要本地 Chromium，默认跳过
func TestRodCapturerFixedFrame(t *testing.T) {
	if os.Getenv("DECKFLOW_BROWSER_TESTS") != "1" {
		t.Skip("set DECKFLOW_BROWSER_TESTS=1 to run browser capture tests")
	}
	path := filepath.Join(t.TempDir(), "slide.html")
	// content deliberately larger than the canvas
	doc := `<html><body style="width:3000px;height:2000px"><div class="slide" style="width:2000px">wide</div></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c := NewRodCapturer(CaptureOptions{Width: 1280, Height: 720, Scale: 3, NoSandbox: true})
	defer c.Close()

	data, err := c.Capture(context.Background(), path)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 3840, img.Bounds().Dx())
	assert.Equal(t, 2160, img.Bounds().Dy())
}

func TestStrictCSSPinsCanvas(t *testing.T) {
	css := strictCSS(1280, 720)
	assert.Contains(t, css, "width:1280px !important")
	assert.Contains(t, css, "height:720px !important")
	assert.Contains(t, css, "overflow:hidden !important")
}
