package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
	"github.com/Divas-Gupta30/ragflow/internal/processing"
)

// PageOCR recognises text in scanned pages and images. page is zero-based.
type PageOCR interface {
	PDFPage(ctx context.Context, path string, page int) (string, error)
	Image(ctx context.Context, path string) (string, error)
}

// Loader turns a local file into pages of text.
type Loader struct {
	OCR PageOCR
}

// Load detects the file type and returns its pages. PDF pages with no text
// layer are sent to OCR when one is configured.
func (l *Loader) Load(ctx context.Context, path string) ([]processing.Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []processing.Page{{Number: 0, Text: string(b)}}, nil
	case ".pdf":
		pages, err := ExtractPDFPages(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("read pdf: %w", err)
		}
		if l.OCR == nil {
			return pages, nil
		}
		for i := range pages {
			if pages[i].Text != "" {
				continue
			}
			text, err := l.OCR.PDFPage(ctx, path, pages[i].Number)
			if err != nil {
				return nil, fmt.Errorf("ocr page %d: %w", pages[i].Number, err)
			}
			pages[i].Text = text
		}
		return pages, nil
	case ".png", ".jpg", ".jpeg":
		if l.OCR == nil {
			return nil, fmt.Errorf("%w: image %s needs OCR, which is disabled", apperr.ErrInvalidInput, filepath.Base(path))
		}
		text, err := l.OCR.Image(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("ocr image: %w", err)
		}
		return []processing.Page{{Number: 0, Text: text}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", apperr.ErrInvalidInput, ext)
	}
}
