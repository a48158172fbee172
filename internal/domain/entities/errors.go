package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptArchive is returned when an archive passes the structural probe
	// but its member list cannot be read.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrPathTraversal is returned when a member would land outside the build root.
	ErrPathTraversal = errors.New("archive member escapes build root")
)

// SourceError attaches the failing archive to an error.
type SourceError struct {
	Reference string
	Path      string
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s (%s): %v", e.Reference, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
