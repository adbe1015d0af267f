package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
)

type stubOCR struct{ text string }

func (s stubOCR) PDFPage(context.Context, string, int) (string, error) { return s.text, nil }
func (s stubOCR) Image(context.Context, string) (string, error)        { return s.text, nil }

func TestLoaderTextAndImages(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(txt, []byte("# Refunds\n\n14 days"), 0o644))
	img := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(img, []byte("not really a png"), 0o644))

	ctx := context.Background()

	pages, err := (&Loader{}).Load(ctx, txt)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 0, pages[0].Number)
	assert.Contains(t, pages[0].Text, "14 days")

	_, err = (&Loader{}).Load(ctx, img)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	pages, err = (&Loader{OCR: stubOCR{text: "scanned refund form"}}).Load(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, "scanned refund form", pages[0].Text)

	_, err = (&Loader{}).Load(ctx, filepath.Join(dir, "archive.zip"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
