package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

func init() {
	// 不在用户目录下生成 pdfcpu 配置
	api.DisableConfigDir()
}

// assemble writes one page per image, in the given order, to outPath. The
// PDF is built next to outPath and renamed into place only once it holds
// every page.
func assemble(images []string, outPath string) error {
	if len(images) == 0 {
		return ErrNoSlides
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".deck-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp pdf: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// ImportImagesFile appends to an existing file, so start from nothing
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	conf := model.NewDefaultConfiguration()
	if err := api.ImportImagesFile(images, tmpPath, imp, conf); err != nil {
		return fmt.Errorf("import images: %w", err)
	}
	n, err := api.PageCountFile(tmpPath)
	if err != nil {
		return fmt.Errorf("verify pdf: %w", err)
	}
	if n != len(images) {
		return fmt.Errorf("pdf has %d pages, want %d", n, len(images))
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("move pdf into place: %w", err)
	}
	return nil
}
