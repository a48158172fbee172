package gateways

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
)

// UserAgent is sent with every upstream request.
var UserAgent = "autospec/1.0"

// Downloader handles downloading source archives from URLs
type Downloader struct {
	httpClient *http.Client
	logger     interfaces.Logger
	parallel   int
}

// NewDownloader creates a new downloader
func NewDownloader(cfg entities.DownloadConfig, logger interfaces.Logger) *Downloader {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = 1
	}
	return &Downloader{
		httpClient: NewRetryableClient(cfg.Retries, timeout, logger),
		logger:     logger,
		parallel:   parallel,
	}
}

// Fetch downloads rawURL into dir, keeping the URL's file name.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	name, err := LocalFileName(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}
	dest := filepath.Join(dir, name)
	if err := d.downloadFile(ctx, rawURL, dest); err != nil {
		return "", fmt.Errorf("download of %s failed: %w", rawURL, err)
	}
	return dest, nil
}

// FetchAll downloads every archive of list into dir concurrently. Paths are
// returned in list order. Files whose names clash with an earlier entry are
// placed in numbered subdirectories so that their base names are preserved.
// Files left in dir by an earlier run are replaced.
func (d *Downloader) FetchAll(ctx context.Context, list entities.ArchiveList, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	dests, err := d.planDestinations(list, dir)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for i, entry := range list {
		g.Go(func() error {
			if err := os.MkdirAll(filepath.Dir(dests[i]), 0750); err != nil {
				return fmt.Errorf("failed to create download directory: %w", err)
			}
			if err := d.downloadFile(ctx, entry.URL, dests[i]); err != nil {
				return fmt.Errorf("download of %s failed: %w", entry.URL, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dests, nil
}

// planDestinations names the local file for every entry of list. Only names
// claimed earlier in the same list collide; files left in dir by a previous
// run are overwritten.
func (d *Downloader) planDestinations(list entities.ArchiveList, dir string) ([]string, error) {
	taken := make(map[string]bool)
	dests := make([]string, len(list))
	for i, entry := range list {
		name, err := LocalFileName(entry.URL)
		if err != nil {
			return nil, err
		}
		if !taken[name] {
			taken[name] = true
			dests[i] = filepath.Join(dir, name)
			continue
		}
		for n := 1; ; n++ {
			key := filepath.Join("dup-"+strconv.Itoa(n), name)
			if !taken[key] {
				taken[key] = true
				dests[i] = filepath.Join(dir, key)
				break
			}
		}
	}
	return dests, nil
}

// LocalFileName is the file name a URL is saved under.
func LocalFileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("URL %q does not name a file", rawURL)
	}
	return name, nil
}

// downloadFile downloads a file from URL to destination
func (d *Downloader) downloadFile(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	partial := dest + ".part"
	//nolint:gosec // G304: File path dest is function parameter for download destination
	out, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(partial, dest); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}

	d.logger.Info("Downloaded",
		interfaces.F("file", filepath.Base(dest)),
		interfaces.F("bytes", written),
		interfaces.F("duration", time.Since(start).Round(time.Millisecond)))
	return nil
}
