// Package services holds the pure domain logic of source preparation.
package services

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/package-url/packageurl-go"
	"golang.org/x/mod/module"

	"github.com/jurobystricky/autospec/internal/domain/entities"
)

// Rule is one entry of the ecosystem grammar. The first rule whose pattern
// matches a URL decides the detection.
type Rule struct {
	Name      string
	Ecosystem entities.Ecosystem
	Pattern   entities.BuildPattern
	Strength  entities.Strength

	re      *regexp.Regexp
	extract func(m []string, d *entities.Detection)
}

// Match applies the rule to a URL with its query and fragment removed.
func (r Rule) Match(target string) (*entities.Detection, bool) {
	m := r.re.FindStringSubmatch(target)
	if m == nil {
		return nil, false
	}
	d := &entities.Detection{
		URL:       target,
		Ecosystem: r.Ecosystem,
		Pattern:   r.Pattern,
		Strength:  r.Strength,
	}
	r.extract(m, d)
	return d, true
}

// Grammar is an ordered rule table.
type Grammar struct {
	rules []Rule
}

// NewGrammar creates a grammar evaluating rules in the given order.
func NewGrammar(rules ...Rule) *Grammar {
	return &Grammar{rules: rules}
}

// DefaultGrammar returns the table of upstream ecosystems autospec knows.
func DefaultGrammar() *Grammar {
	return NewGrammar(
		GoProxyRule(),
		CRANRule(),
		CPANRule(),
		PECLRule(),
		PyPIRule(),
		RubyGemsRule(),
		GitHubRule(),
	)
}

// Rules returns the table in evaluation order.
func (g *Grammar) Rules() []Rule {
	out := make([]Rule, len(g.rules))
	copy(out, g.rules)
	return out
}

// Detect classifies rawURL. A URL no rule matches still yields a detection:
// the ecosystem is unset, the pattern is the generic fallback at zero strength
// and name/version come from the file name when it has the usual shape.
func (g *Grammar) Detect(rawURL string) *entities.Detection {
	target := stripQuery(rawURL)
	for _, r := range g.rules {
		if d, ok := r.Match(target); ok {
			d.URL = rawURL
			return d
		}
	}

	d := &entities.Detection{
		URL:      rawURL,
		Pattern:  entities.DefaultPattern,
		Strength: entities.StrengthNone,
	}
	if u, err := url.Parse(target); err == nil && u.Path != "" && !strings.HasSuffix(u.Path, "/") {
		var raw string
		d.Name, raw = splitStem(entities.FileStem(u.Path))
		d.Version, d.RawVersion = trimVPrefix(raw), raw
		d.PURL = purl(packageurl.TypeGeneric, "", d.Name, d.Version)
	}
	return d
}

func stripQuery(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func purl(typ, namespace, name, version string) string {
	if name == "" {
		return ""
	}
	return packageurl.NewPackageURL(typ, namespace, name, version, nil, "").ToString()
}

var goMajorSuffix = regexp.MustCompile(`^v[0-9]+$`)

// GoProxyRule matches module proxy listings (@v/list) and versioned module
// files (@v/<version>.info|.mod|.zip) on any proxy host.
func GoProxyRule() Rule {
	return Rule{
		Name:      "goproxy",
		Ecosystem: entities.EcosystemGoProxy,
		Pattern:   entities.PatternGoDep,
		Strength:  entities.StrengthURL,
		re:        regexp.MustCompile(`^https?://[^/]+/(.+)/@v/(list|[^/]+\.(?:info|mod|zip))$`),
		extract: func(m []string, d *entities.Detection) {
			modPath, err := module.UnescapePath(m[1])
			if err != nil {
				modPath = m[1]
			}
			d.ModulePath = modPath
			d.Name = goModuleName(modPath)
			if m[2] != "list" {
				d.Version = strings.TrimSuffix(m[2], path.Ext(m[2]))
				d.RawVersion = d.Version
			}
			ns, name := path.Split(modPath)
			d.PURL = purl(packageurl.TypeGolang, strings.TrimSuffix(ns, "/"), name, d.Version)
		},
	}
}

// goModuleName is the last element of a module path, skipping a /vN major
// version suffix.
func goModuleName(modPath string) string {
	elems := strings.Split(modPath, "/")
	name := elems[len(elems)-1]
	if goMajorSuffix.MatchString(name) && len(elems) > 1 {
		name = elems[len(elems)-2]
	}
	return name
}

var moduleListURL = regexp.MustCompile(`^https?://[^/]+/.+/@v/list$`)

// IsModuleProxyList reports whether rawURL is a module proxy version listing.
func IsModuleProxyList(rawURL string) bool {
	return moduleListURL.MatchString(stripQuery(rawURL))
}

// CRANRule matches R packages. The package is named R-<pkg> and dashes in
// the version become dots.
func CRANRule() Rule {
	return Rule{
		Name:      "cran",
		Ecosystem: entities.EcosystemCRAN,
		Pattern:   entities.PatternR,
		Strength:  entities.StrengthURL,
		re: regexp.MustCompile(
			`^https?://(?:cran\.r-project\.org|cloud\.r-project\.org|cran\.[^/]+)/src/contrib/(?:Archive/[^/]+/)?([A-Za-z][A-Za-z0-9.]*)_([0-9][0-9.-]*)\.tar\.gz$`),
		extract: func(m []string, d *entities.Detection) {
			d.Name = "R-" + m[1]
			d.Version = strings.ReplaceAll(m[2], "-", ".")
			d.RawVersion = m[2]
			d.PURL = purl("cran", "", m[1], m[2])
		},
	}
}

// CPANRule matches Perl distributions under an authors/id/ tree.
func CPANRule() Rule {
	return Rule{
		Name:      "cpan",
		Ecosystem: entities.EcosystemCPAN,
		Pattern:   entities.PatternCPAN,
		Strength:  entities.StrengthURL,
		re:        regexp.MustCompile(`^https?://(?:[^/]+\.)?(?:cpan\.org|metacpan\.org)/(?:.*/)?authors/id/(?:[^/]+/)+([^/]+)$`),
		extract: func(m []string, d *entities.Detection) {
			name, raw := splitStem(entities.FileStem(m[1]))
			version := trimVPrefix(raw)
			d.Name = "perl-" + name
			d.Version, d.RawVersion = version, raw
			d.PURL = purl("cpan", "", name, version)
		},
	}
}

// PECLRule matches PHP extensions from pecl.php.net.
func PECLRule() Rule {
	return Rule{
		Name:      "pecl",
		Ecosystem: entities.EcosystemPECL,
		Pattern:   entities.PatternPhpize,
		Strength:  entities.StrengthURL,
		re:        regexp.MustCompile(`^https?://pecl\.php\.net/+get/([^/]+\.(?:tgz|tar\.gz))$`),
		extract: func(m []string, d *entities.Detection) {
			name, raw := splitStem(entities.FileStem(m[1]))
			version := trimVPrefix(raw)
			d.Name = "php-" + name
			d.Version, d.RawVersion = version, raw
			d.PURL = purl(packageurl.TypeGeneric, "pecl", name, version)
		},
	}
}

// PyPIRule matches Python sdists on the package index and its mirrors.
func PyPIRule() Rule {
	return Rule{
		Name:      "pypi",
		Ecosystem: entities.EcosystemPyPI,
		Pattern:   entities.PatternDistutils3,
		Strength:  entities.StrengthURL,
		re: regexp.MustCompile(
			`^https?://(?:pypi\.(?:python\.org|debian\.net|io|org)|files\.pythonhosted\.org)/(?:.+/)?([^/]+)$`),
		extract: func(m []string, d *entities.Detection) {
			var raw string
			d.Name, raw = splitStem(entities.FileStem(m[1]))
			d.Version, d.RawVersion = trimVPrefix(raw), raw
			d.PURL = purl(packageurl.TypePyPi, "", strings.ToLower(d.Name), d.Version)
		},
	}
}

// RubyGemsRule matches gems from rubygems.org.
func RubyGemsRule() Rule {
	return Rule{
		Name:      "rubygems",
		Ecosystem: entities.EcosystemRubyGems,
		Pattern:   entities.PatternRuby,
		Strength:  entities.StrengthURL,
		re:        regexp.MustCompile(`^https?://rubygems\.org/(?:downloads|gems)/([^/]+\.gem)$`),
		extract: func(m []string, d *entities.Detection) {
			name, raw := splitStem(entities.FileStem(m[1]))
			version := trimVPrefix(raw)
			d.Name = "rubygem-" + name
			d.Version, d.RawVersion = version, raw
			d.PURL = purl(packageurl.TypeGem, "", name, version)
		},
	}
}

// GitHubRule matches tag archives and release assets hosted on GitHub. It
// names no build system of its own, so its pattern claim carries no weight.
func GitHubRule() Rule {
	return Rule{
		Name:      "github",
		Ecosystem: entities.EcosystemGitHub,
		Pattern:   entities.DefaultPattern,
		Strength:  entities.StrengthNone,
		re: regexp.MustCompile(
			`^https?://github\.com/([^/]+)/([^/]+)/(?:archive/(?:refs/tags/)?([^/]+)|releases/download/([^/]+)/([^/]+))$`),
		extract: func(m []string, d *entities.Detection) {
			owner, repo := m[1], strings.TrimSuffix(m[2], ".git")
			d.Name = repo
			d.Repo = owner + "/" + repo
			d.GitURL = GitCloneURL(owner, repo)
			if m[3] != "" {
				d.Version, d.RawVersion = tagVersion(entities.FileStem(m[3]), repo)
			} else {
				if _, raw := splitStem(entities.FileStem(m[5])); raw != "" {
					d.Version, d.RawVersion = trimVPrefix(raw), raw
				} else {
					d.Version, d.RawVersion = tagVersion(m[4], repo)
				}
			}
			d.PURL = purl(packageurl.TypeGithub, strings.ToLower(owner), strings.ToLower(repo), d.Version)
		},
	}
}

// GitCloneURL is the clone URL of a GitHub repository.
func GitCloneURL(owner, repo string) string {
	return "https://github.com/" + owner + "/" + repo + ".git"
}
