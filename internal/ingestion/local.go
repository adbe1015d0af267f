package ingestion

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Divas-Gupta30/ragflow/internal/apperr"
)

var allowedExt = []string{".pdf", ".txt", ".md", ".png", ".jpg", ".jpeg"}

// LoadLocalFiles walks root and returns every file with a supported extension.
func LoadLocalFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if Supported(path) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// Supported reports whether the loader understands the file's extension.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowedExt {
		if ext == a {
			return true
		}
	}
	return false
}

// Fetcher copies a document source into a scoped temp file. http(s) URLs are
// downloaded; file:// URLs and bare paths are copied from disk.
type Fetcher struct {
	client  *http.Client
	tempDir string
}

func NewFetcher(tempDir string, timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}, tempDir: tempDir}
}

// Fetch returns the temp file path and a cleanup func that removes it. The
// cleanup func is always non-nil and safe to call on error.
func (f *Fetcher) Fetch(ctx context.Context, source, name string) (string, func(), error) {
	noop := func() {}
	if f.tempDir != "" {
		if err := os.MkdirAll(f.tempDir, 0o755); err != nil {
			return "", noop, fmt.Errorf("temp dir: %w", err)
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(sourcePath(source)))
	}
	tmp, err := os.CreateTemp(f.tempDir, "ingest-*"+ext)
	if err != nil {
		return "", noop, fmt.Errorf("temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	err = f.copyTo(ctx, tmp, source)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", noop, err
	}
	return tmp.Name(), cleanup, nil
}

func (f *Fetcher) copyTo(ctx context.Context, dst io.Writer, source string) error {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrDownload, err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrDownload, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: %s returned %d", apperr.ErrDownload, source, resp.StatusCode)
		}
		if _, err := io.Copy(dst, resp.Body); err != nil {
			return fmt.Errorf("%w: reading body: %v", apperr.ErrDownload, err)
		}
		return nil
	}

	src, err := os.Open(sourcePath(source))
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrDownload, err)
	}
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrDownload, err)
	}
	return nil
}

func sourcePath(source string) string {
	if strings.HasPrefix(source, "file://") {
		if u, err := url.Parse(source); err == nil {
			return u.Path
		}
		return strings.TrimPrefix(source, "file://")
	}
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return u.Path
	}
	return source
}
