package gateways

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
	"github.com/jurobystricky/autospec/internal/domain/services"
)

// ArchiveMember is one entry of an archive's member list.
type ArchiveMember struct {
	Name  string
	IsDir bool
}

// ArchiveInspector classifies fetched source files and works out how their
// contents are rooted.
type ArchiveInspector struct {
	logger interfaces.Logger
}

// NewArchiveInspector creates a new archive inspector
func NewArchiveInspector(logger interfaces.Logger) *ArchiveInspector {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &ArchiveInspector{logger: logger}
}

// Inspect builds a classified descriptor with its layout resolved.
func (i *ArchiveInspector) Inspect(reference string, dest entities.Destination, localPath string) (*entities.Descriptor, error) {
	d := entities.NewDescriptor(reference, dest, localPath)
	if err := i.Classify(d); err != nil {
		return nil, err
	}
	if err := i.ResolveLayout(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Classify decides the container type of d. Skip descriptors are never opened.
// Order: skip sentinel, module proxy listing, zip, tar, opaque file.
func (i *ArchiveInspector) Classify(d *entities.Descriptor) error {
	switch {
	case d.Skip():
		d.Type = entities.ContainerNone
	case services.IsModuleProxyList(d.Reference):
		d.Type = entities.ContainerModuleList
	case probeZip(d.LocalPath):
		d.Type = entities.ContainerZip
	case probeTar(d.LocalPath):
		d.Type = entities.ContainerTar
	default:
		d.Type = entities.ContainerNone
	}

	i.logger.Debug("Classified source",
		interfaces.F("url", d.Reference),
		interfaces.F("type", d.Type))
	return d.Advance(entities.StateClassified)
}

// ResolveLayout computes prefix and subdir for a classified descriptor.
func (i *ArchiveInspector) ResolveLayout(d *entities.Descriptor) error {
	if d.LayoutResolved() {
		return nil
	}
	if d.State == entities.StateUnclassified {
		return fmt.Errorf("source %s has not been classified", d.Reference)
	}

	stem := entities.FileStem(d.LocalPath)
	switch d.Type {
	case entities.ContainerModuleList:
		return d.SetLayout("", stem)
	case entities.ContainerZip, entities.ContainerTar:
		members, err := i.Members(d)
		if err != nil {
			return err
		}
		prefix, subdir := ComputeLayout(members, stem)
		i.logger.Debug("Resolved source layout",
			interfaces.F("url", d.Reference),
			interfaces.F("prefix", prefix),
			interfaces.F("subdir", subdir),
			interfaces.F("members", len(members)))
		return d.SetLayout(prefix, subdir)
	default:
		return d.SetLayout("", "")
	}
}

// Members lists the entries of a zip or tar descriptor. A listing failure is
// reported as a corrupt archive.
func (i *ArchiveInspector) Members(d *entities.Descriptor) ([]ArchiveMember, error) {
	var (
		members []ArchiveMember
		err     error
	)
	switch d.Type {
	case entities.ContainerZip:
		members, err = listZip(d.LocalPath)
	case entities.ContainerTar:
		members, err = listTar(d.LocalPath)
	default:
		return nil, fmt.Errorf("source %s is not an archive (%s)", d.Reference, d.Type)
	}
	if err != nil {
		return nil, &entities.SourceError{
			Reference: d.Reference,
			Path:      d.LocalPath,
			Err:       fmt.Errorf("%w: %w", entities.ErrCorruptArchive, err),
		}
	}
	return members, nil
}

func listZip(path string) ([]ArchiveMember, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close on read-only archive
	defer zr.Close()

	members := make([]ArchiveMember, 0, len(zr.File))
	for _, f := range zr.File {
		members = append(members, ArchiveMember{
			Name:  f.Name,
			IsDir: strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir(),
		})
	}
	return members, nil
}

func listTar(path string) ([]ArchiveMember, error) {
	s, err := openTarStream(path)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close on read-only stream
	defer s.Close()

	var members []ArchiveMember
	for {
		hdr, err := s.next()
		if errors.Is(err, io.EOF) {
			return members, nil
		}
		if err != nil {
			return nil, err
		}
		members = append(members, ArchiveMember{
			Name:  hdr.Name,
			IsDir: hdr.Typeflag == tar.TypeDir || strings.HasSuffix(hdr.Name, "/"),
		})
	}
}

// ComputeLayout applies the single-common-prefix rule. When every member
// sits under the same top-level directory that directory is the prefix;
// otherwise the archive is wrapped in a directory named stem. An empty member
// list is wrapped too.
func ComputeLayout(members []ArchiveMember, stem string) (prefix, subdir string) {
	top := ""
	for _, m := range members {
		name := trimDotSlash(m.Name)
		if name == "" {
			continue
		}
		seg, _, nested := strings.Cut(name, "/")
		if (!nested && !m.IsDir) || seg == ".." {
			return "", stem
		}
		if top == "" {
			top = seg
		} else if seg != top {
			return "", stem
		}
	}
	if top == "" {
		return "", stem
	}
	return top, ""
}

// trimDotSlash removes leading "./" and "/" elements.
func trimDotSlash(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		case name == ".":
			return ""
		default:
			return name
		}
	}
}
