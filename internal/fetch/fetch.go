// Package fetch downloads player source images over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const requestTimeout = 30 * time.Second

// Client downloads source images onto the given filesystem.
type Client struct {
	httpClient *http.Client
	fs         afero.Fs
}

// NewClient returns a Client writing through fs.
func NewClient(fs afero.Fs) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		fs:         fs,
	}
}

// Download fetches url into <dir>/<playerID>_source.png and returns the
// local path. Any HTTP or filesystem error fails the download; a partial
// file left behind is overwritten by the next attempt.
func (c *Client) Download(ctx context.Context, url, dir string, playerID int64) (string, error) {
	if url == "" {
		return "", errors.New("empty image URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: non-2xx status: %d", url, resp.StatusCode)
	}

	savePath := filepath.Join(dir, fmt.Sprintf("%d_source.png", playerID))
	f, err := c.fs.Create(savePath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", savePath, err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", savePath, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", savePath, err)
	}
	return savePath, nil
}
