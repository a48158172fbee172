package services

import (
	"regexp"
	"strings"
)

// versionToken matches a dotted or dashed numeric version, optionally
// v-prefixed, with an optional pre/post-release qualifier.
var versionToken = regexp.MustCompile(
	`^[vV]?[0-9]+(?:[._-][0-9]+)*(?:[-._+~]?(?:alpha|beta|rc|pre|dev|post|final|a|b|p)\.?[0-9]*)?$`)

var stemNoise = []string{"-src", "-source", "-sources", ".orig", "-dist", "-release"}

// SplitNameVersion splits an archive stem into name and version. The version
// is the longest trailing run of separator-joined segments that forms a
// version token; the name is what precedes it and is never empty. When no
// version is found the whole stem is returned as the name.
func SplitNameVersion(stem string) (name, version string) {
	name, raw := splitStem(stem)
	return name, trimVPrefix(raw)
}

// splitStem is SplitNameVersion keeping the version token as written.
func splitStem(stem string) (name, raw string) {
	stem = trimNoise(stem)
	for i := 1; i < len(stem)-1; i++ {
		if stem[i] != '-' && stem[i] != '_' {
			continue
		}
		if candidate := stem[i+1:]; versionToken.MatchString(candidate) {
			return stem[:i], candidate
		}
	}
	return stem, ""
}

func trimNoise(stem string) string {
	lower := strings.ToLower(stem)
	for _, n := range stemNoise {
		if strings.HasSuffix(lower, n) && len(stem) > len(n) {
			return stem[:len(stem)-len(n)]
		}
	}
	return stem
}

func trimVPrefix(v string) string {
	if len(v) > 1 && (v[0] == 'v' || v[0] == 'V') && v[1] >= '0' && v[1] <= '9' {
		return v[1:]
	}
	return v
}

// IsVersion reports whether s is a bare version token.
func IsVersion(s string) bool {
	return versionToken.MatchString(s)
}

// SameVersion reports whether a and b name one version, ignoring a leading v
// and the choice of '.', '-' or '_' as separator (CRAN writes 3.0-12 for 3.0.12).
func SameVersion(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return normalizeSeparators(trimVPrefix(a)) == normalizeSeparators(trimVPrefix(b))
}

func normalizeSeparators(v string) string {
	return strings.NewReplacer("-", ".", "_", ".").Replace(v)
}

// cleanTag turns a git tag into a version, dropping a refs/tags/ prefix, the
// repository name and a leading v.
func cleanTag(tag, repo string) string {
	version, _ := tagVersion(tag, repo)
	return version
}

// tagVersion returns the version a tag names together with the token as it
// is spelled in the tag.
func tagVersion(tag, repo string) (version, raw string) {
	tag = strings.TrimPrefix(tag, "refs/tags/")
	lowerTag, lowerRepo := strings.ToLower(tag), strings.ToLower(repo)
	for _, sep := range []string{"-", "_", "."} {
		if strings.HasPrefix(lowerTag, lowerRepo+sep) {
			tag = tag[len(repo)+1:]
			break
		}
	}
	if !IsVersion(tag) {
		if _, r := splitStem(tag); r != "" {
			tag = r
		}
	}
	return trimVPrefix(tag), tag
}
