// Package conffile reads operator override directives: a directory holding
// one small file per directive, one fact per line.
package conffile

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
	"github.com/jurobystricky/autospec/internal/domain/services"
)

// Toggle directives: present with any non-comment line means on.
var toggles = []string{
	"keepstatic",
	"asneeded",
	"optimize_size",
	"funroll-loops",
	"insecure_build",
	"broken_parallel_build",
}

// defaults are created by EnsureDefaults with their description as a comment.
var defaults = []struct {
	name        string
	description string
}{
	{"buildreq_ban", "This file contains build requirements that get picked up but are undesirable. One entry per line, no whitespace."},
	{"pkgconfig_ban", "This file contains pkgconfig build requirements that get picked up but are undesirable. One entry per line, no whitespace."},
	{"buildreq_add", "This file contains additional build requirements that did not get picked up automatically. One name per line, no whitespace."},
	{"pkgconfig_add", "This file contains additional pkgconfig build requirements that did not get picked up automatically. One name per line, no whitespace."},
	{"excludes", "This file contains the output files that need %exclude. Full path names, one per line."},
}

// Loader implements repositories.OverrideRepository over a directive directory.
type Loader struct {
	dir    string
	bump   bool
	logger interfaces.Logger
}

// NewLoader creates a loader for dir. With bump the release number read from
// the release directive is incremented.
func NewLoader(dir string, bump bool, logger interfaces.Logger) *Loader {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Loader{dir: dir, bump: bump, logger: logger}
}

// Load merges every directive found into cfg. Missing files are not errors.
// The primary detection names the license file and derives the URL of a
// version pin that names none.
func (l *Loader) Load(cfg *entities.BuildConfig, primary *entities.Detection) error {
	if l.dir == "" {
		return nil
	}
	var name, primaryURL, version string
	if primary != nil {
		name, primaryURL, version = primary.Name, primary.URL, primary.URLVersion()
	}

	if lines, err := l.read(cfg, "release"); err != nil {
		return err
	} else if len(lines) > 0 {
		r, err := strconv.Atoi(lines[0])
		if err != nil {
			return fmt.Errorf("invalid release %q: %w", lines[0], err)
		}
		if l.bump {
			r++
		}
		cfg.Release = r
		l.logger.Info("Release", interfaces.F("release", r))
	}

	// Build requirements are sets; pkgconfig names are wrapped on the way in.
	reqs := []struct {
		name   string
		target *[]string
		format string
	}{
		{"buildreq_ban", &cfg.BuildReqBan, "%s"},
		{"pkgconfig_ban", &cfg.BuildReqBan, "pkgconfig(%s)"},
		{"buildreq_add", &cfg.BuildReqAdd, "%s"},
		{"pkgconfig_add", &cfg.BuildReqAdd, "pkgconfig(%s)"},
	}
	for _, r := range reqs {
		lines, err := l.read(cfg, r.name)
		if err != nil {
			return err
		}
		for _, line := range lines {
			*r.target = appendUnique(*r.target, fmt.Sprintf(r.format, line))
		}
	}

	lists := []struct {
		name   string
		target *[]string
	}{
		{"excludes", &cfg.Excludes},
		{"extras", &cfg.Extras},
		{"setuid", &cfg.Setuid},
		{"configure", &cfg.ConfigureArgs},
		{"make_install_append", &cfg.MakeInstallAppend},
	}
	for _, list := range lists {
		lines, err := l.read(cfg, list.name)
		if err != nil {
			return err
		}
		*list.target = append(*list.target, lines...)
	}

	if err := l.loadAttrs(cfg); err != nil {
		return err
	}
	if err := l.loadSeries(cfg); err != nil {
		return err
	}

	args := []struct {
		name   string
		target *[]string
	}{
		{"make_args", &cfg.MakeArgs},
		{"make_install_args", &cfg.MakeInstallArgs},
		{"cmake_args", &cfg.CMakeArgs},
	}
	for _, a := range args {
		first, err := l.first(cfg, a.name)
		if err != nil {
			return err
		}
		if first != "" {
			*a.target = strings.Fields(first)
		}
	}

	for _, t := range toggles {
		lines, err := l.read(cfg, t)
		if err != nil {
			return err
		}
		if len(lines) > 0 && !cfg.HasToggle(t) {
			cfg.Toggles = append(cfg.Toggles, t)
		}
	}

	if err := l.loadSingles(cfg); err != nil {
		return err
	}
	if err := l.loadLicenses(cfg, name); err != nil {
		return err
	}

	pins, err := l.loadVersions(cfg, primaryURL, version)
	if err != nil {
		return err
	}
	cfg.PinnedVersions = append(cfg.PinnedVersions, pins...)

	extra, err := l.loadArchives(cfg)
	if err != nil {
		return err
	}
	cfg.ExtraArchives = append(cfg.ExtraArchives, extra...)
	return nil
}

func (l *Loader) loadSingles(cfg *entities.BuildConfig) error {
	subdir, err := l.first(cfg, "subdir")
	if err != nil {
		return err
	}
	if subdir != "" {
		cfg.Subdir = subdir
	}

	pattern, err := l.first(cfg, "build_pattern")
	if err != nil {
		return err
	}
	if pattern != "" {
		cfg.SetBuildPattern(entities.BuildPattern(pattern), entities.StrengthOverride)
		// A chosen pattern drives its own configure step.
		cfg.Autoreconf = false
		l.logger.Info("Build pattern override", interfaces.F("pattern", pattern))
	}

	macro, err := l.first(cfg, "install_macro")
	if err != nil {
		return err
	}
	if macro != "" {
		cfg.InstallMacro = macro
	}

	flags := []struct {
		name   string
		target *bool
	}{
		{"skip_test_suite", &cfg.SkipTests},
		{"unit_tests_must_pass", &cfg.UnitTestsMustPass},
		{"allow_test_failures", &cfg.AllowTestFailures},
	}
	for _, f := range flags {
		lines, err := l.read(cfg, f.name)
		if err != nil {
			return err
		}
		if len(lines) > 0 {
			*f.target = true
		}
	}

	check, err := l.first(cfg, "make_check_command")
	if err != nil {
		return err
	}
	if check != "" {
		cfg.MakeCheckCommand = check
	}
	return nil
}

// loadAttrs parses "name(a,b,c) path" lines into per-file attributes.
func (l *Loader) loadAttrs(cfg *entities.BuildConfig) error {
	lines, err := l.read(cfg, "attrs")
	if err != nil {
		return err
	}
	for _, line := range lines {
		parts := strings.FieldsFunc(line, func(r rune) bool {
			return r == '(' || r == ')' || r == ','
		})
		var tokens []string
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				tokens = append(tokens, p)
			}
		}
		if len(tokens) < 2 {
			return fmt.Errorf("attrs: malformed line %q", line)
		}
		path := tokens[len(tokens)-1]
		cfg.SetAttr(path, tokens[:len(tokens)-1])
		l.logger.Debug("File attributes", interfaces.F("path", path))
	}
	return nil
}

// autoreconfTrigger matches a patch header touching an autotools input.
var autoreconfTrigger = regexp.MustCompile(`(\+\+\+|---).*(Makefile\.(am|in)|configure\.(ac|in))`)

// loadSeries reads the patch list. A patch touching Makefile.am/.in or
// configure.ac/.in requests autoreconf.
func (l *Loader) loadSeries(cfg *entities.BuildConfig) error {
	lines, err := l.read(cfg, "series")
	if err != nil {
		return err
	}
	for _, line := range lines {
		cfg.Patches = append(cfg.Patches, line)
		patch := strings.Fields(line)[0]
		touches, err := touchesAutotools(filepath.Join(l.dir, patch))
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Patch listed in series not found", interfaces.F("patch", patch))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to scan patch %s: %w", patch, err)
		}
		if touches {
			cfg.Autoreconf = true
		}
	}
	return nil
}

func touchesAutotools(path string) (bool, error) {
	//nolint:gosec // G304: patch names come from the operator's series file
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if autoreconfTrigger.MatchString(sc.Text()) {
			return true, nil
		}
	}
	return false, sc.Err()
}

// loadLicenses reads "<name>.license". Words holding a ':' are URLs or
// notes, not license identifiers.
func (l *Loader) loadLicenses(cfg *entities.BuildConfig, name string) error {
	if name == "" {
		return nil
	}
	first, err := l.first(cfg, filepath.Base(name)+".license")
	if err != nil {
		return err
	}
	for _, word := range strings.Fields(first) {
		if !strings.Contains(word, ":") {
			cfg.Licenses = appendUnique(cfg.Licenses, word)
		}
	}
	return nil
}

// loadVersions parses "<version> [url]" lines. Without a URL the primary URL
// is reused with the primary version replaced; version must be spelled as in
// the primary URL.
func (l *Loader) loadVersions(cfg *entities.BuildConfig, primaryURL, version string) (entities.VersionPins, error) {
	lines, err := l.read(cfg, "versions")
	if err != nil {
		return nil, err
	}

	var pins entities.VersionPins
	for _, line := range lines {
		fields := strings.Fields(line)
		pin := entities.VersionPin{Version: fields[0]}
		switch {
		case len(fields) > 1:
			pin.URL = fields[1]
		case services.SameVersion(pin.Version, version):
			pin.URL = primaryURL
		case version != "" && strings.Contains(primaryURL, version):
			pin.URL = strings.ReplaceAll(primaryURL, version, pin.Version)
		default:
			return nil, fmt.Errorf("cannot derive URL for pinned version %s from %s", pin.Version, primaryURL)
		}
		if _, dup := pins.Lookup(pin.Version); dup {
			l.logger.Warn("Duplicate pinned version ignored", interfaces.F("version", pin.Version))
			continue
		}
		pins = append(pins, pin)
	}
	return pins, nil
}

// loadArchives parses "<url> [destination]" lines.
func (l *Loader) loadArchives(cfg *entities.BuildConfig) (entities.ArchiveList, error) {
	lines, err := l.read(cfg, "archives")
	if err != nil {
		return nil, err
	}

	var list entities.ArchiveList
	for _, line := range lines {
		fields := strings.Fields(line)
		entry := entities.ArchiveEntry{URL: fields[0]}
		if len(fields) > 1 {
			entry.Destination = entities.Destination(fields[1])
		}
		if len(fields) > 2 {
			return nil, fmt.Errorf("archives: too many fields in %q", line)
		}
		list = append(list, entry)
	}
	return list, nil
}

func (l *Loader) first(cfg *entities.BuildConfig, name string) (string, error) {
	lines, err := l.read(cfg, name)
	if err != nil || len(lines) == 0 {
		return "", err
	}
	return lines[0], nil
}

// read returns the non-blank, non-comment lines of a directive file and
// records the file as consulted.
func (l *Loader) read(cfg *entities.BuildConfig, name string) ([]string, error) {
	//nolint:gosec // G304: directive names are fixed
	f, err := os.Open(filepath.Join(l.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	cfg.ConfigFiles = appendUnique(cfg.ConfigFiles, name)
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return lines, nil
}

// EnsureDefaults creates the commented list files an operator usually edits.
// Existing files are left alone.
func (l *Loader) EnsureDefaults() error {
	if err := os.MkdirAll(l.dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	for _, d := range defaults {
		path := filepath.Join(l.dir, d.name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(commentWrap(d.description, 70)), 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", d.name, err)
		}
	}
	return nil
}

// commentWrap fills text into "# " prefixed lines of at most width columns.
func commentWrap(text string, width int) string {
	var b strings.Builder
	line := "#"
	for _, word := range strings.Fields(text) {
		if len(line)+1+len(word) > width && line != "#" {
			b.WriteString(line + "\n")
			line = "#"
		}
		line += " " + word
	}
	b.WriteString(line + "\n")
	return b.String()
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
