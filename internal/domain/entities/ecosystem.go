package entities

// Ecosystem tags the upstream distribution channel a URL belongs to.
type Ecosystem string

const (
	EcosystemUnknown  Ecosystem = ""
	EcosystemCRAN     Ecosystem = "cran"
	EcosystemPyPI     Ecosystem = "pypi"
	EcosystemCPAN     Ecosystem = "cpan"
	EcosystemGoProxy  Ecosystem = "goproxy"
	EcosystemPECL     Ecosystem = "pecl"
	EcosystemRubyGems Ecosystem = "rubygems"
	EcosystemGitHub   Ecosystem = "github"
)

// BuildPattern names the downstream build recipe.
type BuildPattern string

const (
	PatternR          BuildPattern = "R"
	PatternDistutils3 BuildPattern = "distutils3"
	PatternCPAN       BuildPattern = "cpan"
	PatternGoDep      BuildPattern = "godep"
	PatternPhpize     BuildPattern = "phpize"
	PatternRuby       BuildPattern = "ruby"
	PatternConfigure  BuildPattern = "configure"

	// Selected by later source scanning or by operator override.
	PatternConfigureAC BuildPattern = "configure_ac"
	PatternAutogen     BuildPattern = "autogen"
	PatternCMake       BuildPattern = "cmake"
	PatternMeson       BuildPattern = "meson"
	PatternMake        BuildPattern = "make"
	PatternSCons       BuildPattern = "scons"
)

var knownPatterns = map[BuildPattern]bool{
	PatternR: true, PatternDistutils3: true, PatternCPAN: true, PatternGoDep: true,
	PatternPhpize: true, PatternRuby: true, PatternConfigure: true, PatternConfigureAC: true,
	PatternAutogen: true, PatternCMake: true, PatternMeson: true, PatternMake: true, PatternSCons: true,
}

// Known reports whether p is a recipe the build stages implement.
func (p BuildPattern) Known() bool {
	return knownPatterns[p]
}

// DefaultPattern is used when nothing identifies the build system.
const DefaultPattern = PatternConfigure

// Strength ranks competing build-pattern claims. Higher wins.
type Strength int

const (
	StrengthNone     Strength = 0
	StrengthURL      Strength = 10
	StrengthOverride Strength = 20
)

// Detection is the outcome of matching a URL against the ecosystem grammar.
// Name and Version may be empty when the URL carries neither.
type Detection struct {
	URL        string       `yaml:"url"`
	Ecosystem  Ecosystem    `yaml:"ecosystem,omitempty"`
	Name       string       `yaml:"name,omitempty"`
	Version    string       `yaml:"version,omitempty"`
	// RawVersion is the version token as spelled in the URL.
	RawVersion string       `yaml:"raw_version,omitempty"`
	Pattern    BuildPattern `yaml:"pattern"`
	Strength   Strength     `yaml:"strength"`
	Repo       string       `yaml:"repo,omitempty"`
	GitURL     string       `yaml:"git_url,omitempty"`
	ModulePath string       `yaml:"module_path,omitempty"`
	PURL       string       `yaml:"purl,omitempty"`
}

// URLVersion is the version as it appears in the URL, or Version when the
// URL carries none.
func (d *Detection) URLVersion() string {
	if d.RawVersion != "" {
		return d.RawVersion
	}
	return d.Version
}

// Matched reports whether a grammar rule (rather than the fallback) produced d.
func (d *Detection) Matched() bool {
	return d.Ecosystem != EcosystemUnknown
}
