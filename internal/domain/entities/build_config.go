package entities

// BuildConfig is the per-run configuration shared by every component of a
// preparation. It is created once and passed by pointer.
type BuildConfig struct {
	Pattern         BuildPattern `yaml:"pattern"`
	PatternStrength Strength     `yaml:"pattern_strength"`

	PinnedVersions VersionPins `yaml:"versions,omitempty"`
	ExtraArchives  ArchiveList `yaml:"archives,omitempty"`

	// Knobs below are carried for the downstream build stages.
	Subdir            string   `yaml:"subdir,omitempty"`
	Release           int      `yaml:"release"`
	SkipTests         bool     `yaml:"skip_tests"`
	UnitTestsMustPass bool     `yaml:"unit_tests_must_pass"`
	AllowTestFailures bool     `yaml:"allow_test_failures"`
	MakeCheckCommand  string   `yaml:"make_check_command,omitempty"`
	ConfigureArgs     []string `yaml:"configure,omitempty"`
	MakeArgs          []string `yaml:"make_args,omitempty"`
	MakeInstallArgs   []string `yaml:"make_install_args,omitempty"`
	CMakeArgs         []string `yaml:"cmake_args,omitempty"`
	InstallMacro      string   `yaml:"install_macro,omitempty"`
	MakeInstallAppend []string `yaml:"make_install_append,omitempty"`
	// Build requirements; pkgconfig entries are stored as pkgconfig(<name>).
	BuildReqAdd []string `yaml:"buildreq_add,omitempty"`
	BuildReqBan []string `yaml:"buildreq_ban,omitempty"`

	// Packaging of installed files.
	Excludes []string   `yaml:"excludes,omitempty"`
	Extras   []string   `yaml:"extras,omitempty"`
	Setuid   []string   `yaml:"setuid,omitempty"`
	Attrs    []FileAttr `yaml:"attrs,omitempty"`

	Patches    []string `yaml:"patches,omitempty"`
	Autoreconf bool     `yaml:"autoreconf"`
	Licenses   []string `yaml:"licenses,omitempty"`

	Toggles     []string `yaml:"toggles,omitempty"`
	ConfigFiles []string `yaml:"config_files,omitempty"`
}

// FileAttr holds the attribute tokens an operator set for one installed file.
type FileAttr struct {
	Path  string   `yaml:"path"`
	Attrs []string `yaml:"attrs"`
}

// SetAttr records attrs for path, replacing an earlier entry for the same path.
func (c *BuildConfig) SetAttr(path string, attrs []string) {
	for i := range c.Attrs {
		if c.Attrs[i].Path == path {
			c.Attrs[i].Attrs = attrs
			return
		}
	}
	c.Attrs = append(c.Attrs, FileAttr{Path: path, Attrs: attrs})
}

// NewBuildConfig returns a configuration holding the default pattern at zero strength.
func NewBuildConfig() *BuildConfig {
	return &BuildConfig{
		Pattern:         DefaultPattern,
		PatternStrength: StrengthNone,
	}
}

// SetBuildPattern records pattern if strength beats the current claim.
// It reports whether the pattern was taken.
func (c *BuildConfig) SetBuildPattern(pattern BuildPattern, strength Strength) bool {
	if pattern == "" || strength <= c.PatternStrength {
		return false
	}
	c.Pattern = pattern
	c.PatternStrength = strength
	return true
}

// HasToggle reports whether the named on/off directive was set.
func (c *BuildConfig) HasToggle(name string) bool {
	for _, t := range c.Toggles {
		if t == name {
			return true
		}
	}
	return false
}
