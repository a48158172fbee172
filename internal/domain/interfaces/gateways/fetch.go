// Package gateways defines interfaces for external I/O used by the domain.
package gateways

import (
	"context"

	"github.com/jurobystricky/autospec/internal/domain/entities"
)

// Fetcher retrieves upstream files into a local directory.
type Fetcher interface {
	// Fetch downloads url into dir and returns the local path.
	Fetch(ctx context.Context, url, dir string) (string, error)

	// FetchAll downloads every entry of list into dir. The returned paths are
	// in list order.
	FetchAll(ctx context.Context, list entities.ArchiveList, dir string) ([]string, error)
}

// ModuleVersionLister resolves the versions published in a module proxy listing.
type ModuleVersionLister interface {
	// ListVersions returns the tags of listURL newest first.
	ListVersions(ctx context.Context, listURL string) ([]string, error)

	// ReadVersions parses an already fetched listing.
	ReadVersions(path string) ([]string, error)
}
