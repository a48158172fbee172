package entities

import "strings"

// ToolConfig is the global, per-installation configuration.
type ToolConfig struct {
	// GitTemplate locates the packaging repository; {name} is replaced by the package name.
	GitTemplate  string
	LicenseFetch string
	LicenseShow  string
	Download     DownloadConfig
	GPG          GPGConfig
}

// DownloadConfig tunes the fetch layer.
type DownloadConfig struct {
	Retries        int
	TimeoutSeconds int
	Parallel       int
}

// GPGConfig lists where trusted signing keys come from.
type GPGConfig struct {
	KeyIDs  []string
	KeysURL string
	KeyFile string
}

// HasKeys reports whether any key source is configured.
func (g GPGConfig) HasKeys() bool {
	return len(g.KeyIDs) > 0 || g.KeysURL != "" || g.KeyFile != ""
}

// DefaultToolConfig returns the configuration used when no file is present.
func DefaultToolConfig() *ToolConfig {
	return &ToolConfig{
		Download: DownloadConfig{
			Retries:        4,
			TimeoutSeconds: 300,
			Parallel:       4,
		},
	}
}

// PackagingRepo expands GitTemplate for name.
func (c *ToolConfig) PackagingRepo(name string) string {
	if c.GitTemplate == "" || name == "" {
		return ""
	}
	return strings.ReplaceAll(c.GitTemplate, "{name}", name)
}
