package gateways

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	integrity "github.com/jurobystricky/autospec/internal/domain/interfaces/gateways"
	"github.com/jurobystricky/autospec/internal/domain/services"
)

// ToolVersion is reported in generated documents.
var ToolVersion = "1.0.0"

// SBOMGenerator describes the upstream sources of a prepared build as a
// CycloneDX document.
type SBOMGenerator struct {
	grammar  *services.Grammar
	checksum integrity.ChecksumCalculator
	now      func() time.Time
}

// NewSBOMGenerator creates a generator that names auxiliary archives with grammar.
func NewSBOMGenerator(grammar *services.Grammar) *SBOMGenerator {
	if grammar == nil {
		grammar = services.DefaultGrammar()
	}
	return &SBOMGenerator{
		grammar:  grammar,
		checksum: NewChecksumVerifier(),
		now:      time.Now,
	}
}

// GenerateSourceBOM lists every fetched archive in archive-list order. The
// primary archive takes the detected name, version and package URL.
func (g *SBOMGenerator) GenerateSourceBOM(detection entities.Detection, archives []entities.FetchedArchive) (*entities.SBOM, error) {
	if len(archives) == 0 {
		return nil, fmt.Errorf("no archives to describe")
	}

	components := make([]entities.Component, 0, len(archives))
	var primary *entities.Component
	for _, a := range archives {
		c, err := g.component(detection, a)
		if err != nil {
			return nil, err
		}
		components = append(components, c)
		if a.Primary && primary == nil {
			p := c
			primary = &p
		}
	}

	return &entities.SBOM{
		BOMFormat:   "CycloneDX",
		SpecVersion: "1.4",
		Version:     1,
		Components:  components,
		Metadata: entities.Metadata{
			Timestamp: g.now().UTC(),
			Tools: []entities.Tool{
				{
					Name:    "autospec",
					Version: ToolVersion,
				},
			},
			Component: primary,
		},
	}, nil
}

func (g *SBOMGenerator) component(detection entities.Detection, a entities.FetchedArchive) (entities.Component, error) {
	sum := a.SHA256
	if sum == "" {
		var err error
		if sum, err = g.checksum.CalculateChecksum(a.Path); err != nil {
			return entities.Component{}, fmt.Errorf("failed to hash %s: %w", a.URL, err)
		}
	}

	c := entities.Component{
		Type:   "file",
		Hashes: []entities.Hash{{Algorithm: "SHA-256", Value: sum}},
		ExternalRefs: []entities.ExternalRef{
			{Type: "distribution", URL: a.URL},
		},
	}
	if a.Primary {
		c.Type = "library"
		c.Name = detection.Name
		c.Version = detection.Version
		c.PURL = detection.PURL
	} else {
		d := g.grammar.Detect(a.URL)
		c.Name, c.Version, c.PURL = d.Name, d.Version, d.PURL
	}
	if c.Name == "" {
		c.Name = entities.FileStem(a.URL)
	}
	return c, nil
}

// WriteSBOM writes the document as indented JSON.
func (g *SBOMGenerator) WriteSBOM(sbom *entities.SBOM, path string) error {
	data, err := json.MarshalIndent(sbom, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal SBOM: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create SBOM directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write SBOM: %w", err)
	}
	return nil
}
