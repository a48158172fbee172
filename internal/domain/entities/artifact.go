package entities

// FetchedArchive is a source file retrieved from upstream, as recorded in the
// preparation manifest.
type FetchedArchive struct {
	URL         string        `yaml:"url"`
	Destination Destination   `yaml:"destination"`
	Path        string        `yaml:"path"`
	Type        ContainerType `yaml:"type"`
	Prefix      string        `yaml:"prefix,omitempty"`
	Subdir      string        `yaml:"subdir,omitempty"`
	State       SourceState   `yaml:"state"`
	SHA256      string        `yaml:"sha256,omitempty"`
	Primary     bool          `yaml:"primary,omitempty"`
}

// NewFetchedArchive snapshots a descriptor.
func NewFetchedArchive(d *Descriptor, primary bool) FetchedArchive {
	return FetchedArchive{
		URL:         d.Reference,
		Destination: d.Destination,
		Path:        d.LocalPath,
		Type:        d.Type,
		Prefix:      d.Prefix,
		Subdir:      d.Subdir,
		State:       d.State,
		Primary:     primary,
	}
}
