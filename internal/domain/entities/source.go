// Package entities defines core domain models and data structures.
package entities

import (
	"fmt"
	"path"
	"strings"
)

// ContainerType identifies how a fetched source file is laid out on disk.
type ContainerType int

const (
	// ContainerNone is an opaque single file, or a file that was never opened.
	ContainerNone ContainerType = iota
	// ContainerZip is a zip archive.
	ContainerZip
	// ContainerTar is a tar archive, optionally compressed.
	ContainerTar
	// ContainerModuleList is a Go module proxy version listing (@v/list).
	ContainerModuleList
)

func (c ContainerType) String() string {
	switch c {
	case ContainerZip:
		return "zip"
	case ContainerTar:
		return "tar"
	case ContainerModuleList:
		return "moduleList"
	default:
		return "none"
	}
}

// MarshalText renders the container type by name in manifests.
func (c ContainerType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Destination is the per-archive placement marker.
type Destination string

const (
	// SkipDestination marks a metadata-only file that is fetched but never extracted.
	SkipDestination Destination = ":"
	// ExtractDestination places the archive directly under the build root.
	ExtractDestination Destination = ""
)

// Skip reports whether the destination is the skip sentinel.
func (d Destination) Skip() bool {
	return d == SkipDestination
}

// SourceState tracks a descriptor through preparation.
type SourceState int

const (
	StateUnclassified SourceState = iota
	StateClassified
	StateSkipped
	StateExtracted
)

func (s SourceState) String() string {
	switch s {
	case StateClassified:
		return "classified"
	case StateSkipped:
		return "skipped"
	case StateExtracted:
		return "extracted"
	default:
		return "unclassified"
	}
}

// MarshalText renders the state by name in manifests.
func (s SourceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Descriptor is one source archive known to a preparation run.
//
// Prefix and Subdir are mutually exclusive: at most one is non-empty once the
// layout has been resolved. Neither is set for ContainerNone.
type Descriptor struct {
	Reference   string
	Destination Destination
	LocalPath   string
	Type        ContainerType
	Prefix      string
	Subdir      string
	State       SourceState

	layoutResolved bool
}

// NewDescriptor creates an unclassified descriptor.
func NewDescriptor(reference string, dest Destination, localPath string) *Descriptor {
	return &Descriptor{
		Reference:   reference,
		Destination: dest,
		LocalPath:   localPath,
	}
}

// Skip reports whether this descriptor is metadata only.
func (d *Descriptor) Skip() bool {
	return d.Destination.Skip()
}

// LayoutResolved reports whether prefix/subdir have been computed.
func (d *Descriptor) LayoutResolved() bool {
	return d.layoutResolved
}

// SetLayout records the resolved prefix or subdir. Calling it twice is an error.
func (d *Descriptor) SetLayout(prefix, subdir string) error {
	if d.layoutResolved {
		return fmt.Errorf("layout for %s already resolved", d.Reference)
	}
	if prefix != "" && subdir != "" {
		return fmt.Errorf("layout for %s has both prefix %q and subdir %q", d.Reference, prefix, subdir)
	}
	d.Prefix = prefix
	d.Subdir = subdir
	d.layoutResolved = true
	return nil
}

// Advance moves the descriptor forward through its lifecycle.
func (d *Descriptor) Advance(next SourceState) error {
	switch {
	case d.State == StateUnclassified && next == StateClassified:
	case d.State == StateClassified && (next == StateSkipped || next == StateExtracted):
	default:
		return fmt.Errorf("invalid transition for %s: %s -> %s", d.Reference, d.State, next)
	}
	d.State = next
	return nil
}

// Root returns the directory, relative to the build root, that the archive's
// tree occupies once extracted.
func (d *Descriptor) Root() string {
	top := d.Prefix
	if top == "" {
		top = d.Subdir
	}
	if d.Destination == ExtractDestination || d.Skip() {
		return top
	}
	return path.Join(strings.Trim(string(d.Destination), "/"), top)
}
