package entities

import "time"

// Manifest records everything a preparation run produced for the downstream
// build stages.
type Manifest struct {
	Name          string           `yaml:"name"`
	Version       string           `yaml:"version"`
	Release       int              `yaml:"release"`
	Detection     Detection        `yaml:"detection"`
	Pattern       BuildPattern     `yaml:"pattern"`
	Strength      Strength         `yaml:"pattern_strength"`
	PackagingRepo string           `yaml:"packaging_repo,omitempty"`
	BuildRoot     string           `yaml:"build_root"`
	Archives      []FetchedArchive `yaml:"archives"`
	Config        *BuildConfig     `yaml:"config,omitempty"`
	PreparedAt    time.Time        `yaml:"prepared_at"`
}

// Primary returns the primary archive record, if any.
func (m *Manifest) Primary() *FetchedArchive {
	for i := range m.Archives {
		if m.Archives[i].Primary {
			return &m.Archives[i]
		}
	}
	return nil
}
