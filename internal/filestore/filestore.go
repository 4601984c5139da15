package filestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Store resolves and deletes stored file objects. Uploads happen directly
// from clients and are outside this interface.
type Store interface {
	// SignedURL resolves a storage key to a time-limited fetchable URL.
	SignedURL(ctx context.Context, key string) (string, error)
	// Delete removes the object by storage key.
	Delete(ctx context.Context, key string) error
}

const defaultDownloadTimeout = 60 * time.Second

// Downloader fetches bytes from a resolved URL into a local file.
type Downloader struct {
	client *http.Client
}

func NewDownloader() *Downloader {
	return &Downloader{client: &http.Client{Timeout: defaultDownloadTimeout}}
}

// Download streams the URL body into dst.
func (d *Downloader) Download(ctx context.Context, url string, dst *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: unexpected status %d", resp.StatusCode)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
