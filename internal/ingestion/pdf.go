package ingestion

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/Divas-Gupta30/ragflow/internal/processing"
)

// ExtractPDFPages returns one entry per page. Pages without a text layer
// come back with empty Text so the caller can OCR them.
func ExtractPDFPages(ctx context.Context, path string) ([]processing.Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		// ledongthuc/pdf rejects some valid files; pdftotext copes with most.
		if pages, perr := pdftotextPages(ctx, path); perr == nil {
			return pages, nil
		}
		return nil, err
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]processing.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := processing.Page{Number: i - 1}
		p := r.Page(i)
		if !p.V.IsNull() {
			text, err := p.GetPlainText(nil)
			if err == nil {
				page.Text = strings.TrimSpace(text)
			}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// pdftotextPages shells out to poppler's pdftotext, which separates pages
// with form feeds.
func pdftotextPages(ctx context.Context, path string) ([]processing.Page, error) {
	out, err := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-").Output()
	if err != nil {
		return nil, err
	}
	raw := bytes.Split(bytes.TrimRight(out, "\f"), []byte("\f"))
	pages := make([]processing.Page, len(raw))
	for i, p := range raw {
		pages[i] = processing.Page{Number: i, Text: strings.TrimSpace(string(p))}
	}
	return pages, nil
}
