package gateways

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
)

// DefaultMaxFileSize bounds a single extracted file (decompression bomb guard).
const DefaultMaxFileSize int64 = 1 << 30

// ArchiveExtractor unpacks classified sources into a build root.
type ArchiveExtractor struct {
	logger      interfaces.Logger
	maxFileSize int64
}

// NewArchiveExtractor creates a new archive extractor
func NewArchiveExtractor(logger interfaces.Logger) *ArchiveExtractor {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &ArchiveExtractor{logger: logger, maxFileSize: DefaultMaxFileSize}
}

// WithMaxFileSize returns a copy of e using limit as the per-file size bound.
func (e *ArchiveExtractor) WithMaxFileSize(limit int64) *ArchiveExtractor {
	c := *e
	c.maxFileSize = limit
	return &c
}

// Extract places d under buildRoot so that its tree is rooted one level
// below it: archives with a common prefix keep that directory, others are
// wrapped in their subdir. Members escaping that directory abort extraction.
func (e *ArchiveExtractor) Extract(d *entities.Descriptor, buildRoot string) error {
	if d.Skip() {
		return fmt.Errorf("source %s is metadata only and cannot be extracted", d.Reference)
	}
	if !d.LayoutResolved() {
		return fmt.Errorf("source %s has no resolved layout", d.Reference)
	}

	root, err := filepath.Abs(buildRoot)
	if err != nil {
		return fmt.Errorf("failed to resolve build root: %w", err)
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return fmt.Errorf("failed to create build root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	x := &extraction{
		desc:    d,
		root:    root,
		target:  filepath.Join(root, filepath.FromSlash(d.Root())),
		limit:   e.maxFileSize,
		logger:  e.logger.With(interfaces.F("url", d.Reference)),
		started: time.Now(),
	}
	if err := x.checkWithin(x.root, x.target, d.Root()); err != nil {
		return err
	}

	switch d.Type {
	case entities.ContainerTar:
		err = x.tar()
	case entities.ContainerZip:
		err = x.zip()
	default:
		// Module listings and opaque files are copied as they are.
		err = x.copyInto(x.target)
	}
	if err != nil {
		return err
	}

	x.logger.Info("Extracted source",
		interfaces.F("type", d.Type),
		interfaces.F("root", d.Root()),
		interfaces.F("files", x.files),
		interfaces.F("duration", time.Since(x.started).Round(time.Millisecond)))
	return nil
}

// extraction holds the state of one Extract call.
type extraction struct {
	desc    *entities.Descriptor
	root    string
	target  string
	limit   int64
	logger  interfaces.Logger
	started time.Time

	files    int
	symlinks []pendingLink
	links    []pendingLink
	// linkPaths holds the on-disk paths of symlink members seen so far.
	linkPaths map[string]bool
}

type pendingLink struct {
	path   string
	target string
	member string
}

func (x *extraction) fail(member string, err error) error {
	return &entities.SourceError{
		Reference: x.desc.Reference,
		Path:      x.desc.LocalPath,
		Err:       fmt.Errorf("member %s: %w", member, err),
	}
}

func (x *extraction) checkWithin(base, path, member string) error {
	ok, err := TargetWithinRoot(base, path)
	if err != nil {
		return x.fail(member, err)
	}
	if !ok {
		return x.fail(member, entities.ErrPathTraversal)
	}
	return nil
}

// memberPath maps an archive member to its location on disk. It returns ""
// for the member that is the target directory itself.
func (x *extraction) memberPath(name string) (string, error) {
	rel := trimDotSlash(name)
	if strings.HasPrefix(name, "/") {
		return "", x.fail(name, entities.ErrPathTraversal)
	}
	if prefix := x.desc.Prefix; prefix != "" {
		if rel == prefix || rel == prefix+"/" {
			return "", nil
		}
		rel = strings.TrimPrefix(rel, prefix+"/")
	}
	if rel == "" {
		return "", nil
	}
	path := filepath.Join(x.target, filepath.FromSlash(rel))
	if err := x.checkWithin(x.target, path, name); err != nil {
		return "", err
	}
	if err := x.checkThroughLink(path, name); err != nil {
		return "", err
	}
	if err := x.checkParent(path, name); err != nil {
		return "", err
	}
	return path, nil
}

// checkThroughLink rejects a member placed below an earlier symlink member.
func (x *extraction) checkThroughLink(path, member string) error {
	for dir := filepath.Dir(path); len(dir) > len(x.target); dir = filepath.Dir(dir) {
		if x.linkPaths[dir] {
			rel, _ := filepath.Rel(x.target, dir)
			return x.fail(member, fmt.Errorf("%w: cannot extract through symlink %s",
				entities.ErrPathTraversal, filepath.ToSlash(rel)))
		}
	}
	return nil
}

func (x *extraction) addSymlink(path, target, member string) {
	if x.linkPaths == nil {
		x.linkPaths = make(map[string]bool)
	}
	x.linkPaths[path] = true
	x.symlinks = append(x.symlinks, pendingLink{path: path, target: target, member: member})
}

// checkParent rejects writes through an existing symlinked directory that
// resolves outside the build root.
func (x *extraction) checkParent(path, member string) error {
	resolved, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return nil
	}
	return x.checkWithin(x.root, resolved, member)
}

func (x *extraction) tar() error {
	s, err := openTarStream(x.desc.LocalPath)
	if err != nil {
		return x.fail("", err)
	}
	//nolint:errcheck // Defer close on read-only stream
	defer s.Close()

	if err := os.MkdirAll(x.target, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for {
		hdr, err := s.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return x.fail("", fmt.Errorf("%w: %w", entities.ErrCorruptArchive, err))
		}

		path, err := x.memberPath(hdr.Name)
		if err != nil {
			return err
		}
		if path == "" {
			continue
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := x.writeFile(path, hdr.Name, s, fs.FileMode(hdr.Mode), hdr.ModTime); err != nil {
				return err
			}
		case tar.TypeSymlink:
			x.addSymlink(path, hdr.Linkname, hdr.Name)
		case tar.TypeLink:
			x.links = append(x.links, pendingLink{path: path, target: hdr.Linkname, member: hdr.Name})
		default:
			x.logger.Warn("Ignoring unsupported member type",
				interfaces.F("member", hdr.Name),
				interfaces.F("type", string(hdr.Typeflag)))
		}
	}
	return x.finishLinks()
}

func (x *extraction) zip() error {
	zr, err := zip.OpenReader(x.desc.LocalPath)
	if err != nil {
		return x.fail("", fmt.Errorf("%w: %w", entities.ErrCorruptArchive, err))
	}
	//nolint:errcheck // Defer close on read-only archive
	defer zr.Close()

	if err := os.MkdirAll(x.target, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for _, f := range zr.File {
		path, err := x.memberPath(f.Name)
		if err != nil {
			return err
		}
		if path == "" {
			continue
		}

		mode := f.Mode()
		switch {
		case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
			if err := os.MkdirAll(path, 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case mode&fs.ModeSymlink != 0:
			target, err := readZipLink(f)
			if err != nil {
				return x.fail(f.Name, err)
			}
			x.addSymlink(path, target, f.Name)
		default:
			rc, err := f.Open()
			if err != nil {
				return x.fail(f.Name, fmt.Errorf("%w: %w", entities.ErrCorruptArchive, err))
			}
			err = x.writeFile(path, f.Name, rc, mode, f.Modified)
			_ = rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return x.finishLinks()
}

func readZipLink(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	//nolint:errcheck // Defer close on read-only member
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (x *extraction) writeFile(path, member string, r io.Reader, mode fs.FileMode, modTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	perm := fs.FileMode(0644)
	if mode&0111 != 0 {
		perm = 0755
	}
	//nolint:gosec // G304: path validated by memberPath
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := copyWithLimit(out, r, x.limit); err != nil {
		_ = out.Close()
		return x.fail(member, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if !modTime.IsZero() {
		_ = os.Chtimes(path, modTime, modTime)
	}
	x.files++
	return nil
}

// finishLinks creates hard links and symlinks once every regular file exists.
func (x *extraction) finishLinks() error {
	for _, l := range x.links {
		src, err := x.memberPath(l.target)
		if err != nil {
			return err
		}
		if src == "" {
			return x.fail(l.member, fmt.Errorf("hard link to directory %s", l.target))
		}
		if err := os.MkdirAll(filepath.Dir(l.path), 0750); err != nil {
			return fmt.Errorf("failed to create directory for link: %w", err)
		}
		if err := os.Link(src, l.path); err != nil {
			return x.fail(l.member, fmt.Errorf("failed to create hard link: %w", err))
		}
	}

	for _, l := range x.symlinks {
		parent := filepath.Dir(l.path)
		if err := os.MkdirAll(parent, 0750); err != nil {
			return fmt.Errorf("failed to create directory for symlink: %w", err)
		}
		// Targets resolve from where the link really lands on disk.
		realParent, err := filepath.EvalSymlinks(parent)
		if err != nil {
			return x.fail(l.member, fmt.Errorf("failed to resolve symlink parent: %w", err))
		}
		if err := x.checkWithin(x.target, realParent, l.member); err != nil {
			return err
		}
		resolved := l.target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(realParent, resolved)
		}
		if err := x.checkWithin(x.root, resolved, l.member); err != nil {
			return err
		}
		if err := os.Symlink(l.target, l.path); err != nil {
			x.logger.Warn("Failed to create symlink",
				interfaces.F("member", l.member),
				interfaces.F("target", l.target),
				interfaces.F("error", err))
		}
	}
	return nil
}

// copyInto copies the fetched file unchanged into dir.
func (x *extraction) copyInto(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	//nolint:gosec // G304: LocalPath is the fetched source file
	in, err := os.Open(x.desc.LocalPath)
	if err != nil {
		return x.fail(filepath.Base(x.desc.LocalPath), err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	return x.writeFile(filepath.Join(dir, filepath.Base(x.desc.LocalPath)),
		filepath.Base(x.desc.LocalPath), in, info.Mode(), info.ModTime())
}

// TargetWithinRoot reports whether target lies inside root once both are cleaned.
func TargetWithinRoot(root, target string) (bool, error) {
	if len(target) == 0 || len(root) == 0 {
		return false, nil
	}

	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false, fmt.Errorf("couldn't find relative path: %w", err)
	}

	for _, component := range strings.Split(filepath.Clean(rel), string(os.PathSeparator)) {
		if component == ".." {
			return false, nil
		}
	}
	return true, nil
}

// copyWithLimit copies src to dst, failing once more than limit bytes arrive.
func copyWithLimit(dst io.Writer, src io.Reader, limit int64) error {
	n, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if n > limit {
		return fmt.Errorf("file exceeds size limit of %d bytes", limit)
	}
	return nil
}
