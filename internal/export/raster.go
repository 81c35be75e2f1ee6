package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"
)

// normalize decodes a capture and returns it at exactly w x h pixels.
// Captures already at that size are passed through untouched.
func normalize(data []byte, w, h int) (image.Image, bool, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("decode capture: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h && b.Min == (image.Point{}) {
		return src, false, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst, true, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
