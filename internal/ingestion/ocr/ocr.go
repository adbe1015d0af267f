// Package ocr recognises text in scanned PDF pages and images with
// Tesseract. PDF pages are rasterised with poppler's pdftoppm first.
package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements ingestion.PageOCR.
type Tesseract struct {
	TempDir   string
	Languages []string
}

func New(tempDir string, languages ...string) *Tesseract {
	return &Tesseract{TempDir: tempDir, Languages: languages}
}

// PDFPage rasterises one zero-based page and runs OCR on it.
func (t *Tesseract) PDFPage(ctx context.Context, path string, page int) (string, error) {
	dir, err := os.MkdirTemp(t.TempDir, "ocr-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	n := strconv.Itoa(page + 1)
	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm", "-f", n, "-l", n, "-r", "300", "-png", path, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm convert failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", err
	}
	var combined strings.Builder
	for _, m := range matches {
		text, err := t.run(m)
		if err != nil {
			return "", err
		}
		combined.WriteString(text)
		combined.WriteString("\n")
	}
	return strings.TrimSpace(combined.String()), nil
}

func (t *Tesseract) Image(_ context.Context, path string) (string, error) {
	return t.run(path)
}

func (t *Tesseract) run(imgPath string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if len(t.Languages) > 0 {
		if err := client.SetLanguage(t.Languages...); err != nil {
			return "", err
		}
	}
	if err := client.SetImage(imgPath); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
