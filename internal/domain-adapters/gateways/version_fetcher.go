package gateways

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// maxListSize bounds a module proxy @v/list response.
const maxListSize = 4 << 20

// ModuleVersionFetcher reads Go module proxy version listings.
type ModuleVersionFetcher struct {
	httpClient *http.Client
}

// NewModuleVersionFetcher creates a version fetcher using client.
func NewModuleVersionFetcher(client *http.Client) *ModuleVersionFetcher {
	return &ModuleVersionFetcher{httpClient: client}
}

// ListVersions fetches listURL and returns its versions newest first.
func (f *ModuleVersionFetcher) ListVersions(ctx context.Context, listURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return ParseModuleVersionList(body), nil
}

// ReadVersions parses an already fetched listing.
func (f *ModuleVersionFetcher) ReadVersions(path string) ([]string, error) {
	//nolint:gosec // G304: path is the fetched listing
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read version list: %w", err)
	}
	return ParseModuleVersionList(body), nil
}

// ParseModuleVersionList returns the valid semantic versions of an @v/list
// body, without duplicates, newest first. Versions that compare equal keep
// their listed order.
func ParseModuleVersionList(body []byte) []string {
	seen := make(map[string]bool)
	var versions []string

	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		v := strings.TrimSpace(sc.Text())
		if v == "" || seen[v] || !semver.IsValid(v) {
			continue
		}
		seen[v] = true
		versions = append(versions, v)
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return semver.Compare(versions[i], versions[j]) > 0
	})
	return versions
}
