package entities

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// ArchiveEntry is one ordered (URL, destination) pair of the archive list.
type ArchiveEntry struct {
	URL         string      `yaml:"url"`
	Destination Destination `yaml:"destination"`
}

// ArchiveList is the ordered list of auxiliary archives for a run.
type ArchiveList []ArchiveEntry

// Concat returns a new list holding l followed by others. l is not modified.
func (l ArchiveList) Concat(others ...ArchiveList) ArchiveList {
	n := len(l)
	for _, o := range others {
		n += len(o)
	}
	out := make(ArchiveList, 0, n)
	out = append(out, l...)
	for _, o := range others {
		out = append(out, o...)
	}
	return out
}

// URLs returns the URLs of the list in order.
func (l ArchiveList) URLs() []string {
	urls := make([]string, len(l))
	for i, e := range l {
		urls[i] = e.URL
	}
	return urls
}

// Extractable counts entries whose destination is not the skip sentinel.
func (l ArchiveList) Extractable() int {
	n := 0
	for _, e := range l {
		if !e.Destination.Skip() {
			n++
		}
	}
	return n
}

// VersionPin is one operator-pinned version with its archive URL.
type VersionPin struct {
	Version string `yaml:"version"`
	URL     string `yaml:"url"`
}

// VersionPins is an ordered version -> URL mapping.
type VersionPins []VersionPin

// Lookup returns the URL pinned for version.
func (p VersionPins) Lookup(version string) (string, bool) {
	for _, pin := range p {
		if pin.Version == version {
			return pin.URL, true
		}
	}
	return "", false
}

var archiveExts = []string{
	".tar.gz", ".tar.xz", ".tar.bz2", ".tar.zst", ".tar.lz",
	".tgz", ".txz", ".tbz2", ".tbz", ".tzst", ".tar", ".zip", ".gem",
}

var plainExt = regexp.MustCompile(`^\.[A-Za-z][A-Za-z0-9]*$`)

// TrimArchiveExt removes a known archive extension from name.
func TrimArchiveExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// FileStem returns the base name of p without its archive extension, or
// without a single alphabetic extension when p is not a known archive.
// Version-like suffixes such as "foo-1.2" are left intact.
func FileStem(p string) string {
	base := path.Base(filepath.ToSlash(p))
	if stem := TrimArchiveExt(base); stem != base {
		return stem
	}
	ext := path.Ext(base)
	if ext != "" && ext != base && plainExt.MatchString(ext) {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
