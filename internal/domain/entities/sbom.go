package entities

import "time"

// SBOM is a CycloneDX-shaped bill of materials of the upstream sources a
// package is built from.
type SBOM struct {
	BOMFormat   string      `json:"bomFormat"`
	SpecVersion string      `json:"specVersion"`
	Version     int         `json:"version"`
	Metadata    Metadata    `json:"metadata"`
	Components  []Component `json:"components"`
}

// Component is one fetched source archive.
type Component struct {
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	Version      string        `json:"version,omitempty"`
	PURL         string        `json:"purl,omitempty"`
	Hashes       []Hash        `json:"hashes,omitempty"`
	ExternalRefs []ExternalRef `json:"externalReferences,omitempty"`
}

// Hash represents a cryptographic hash of a component
type Hash struct {
	Algorithm string `json:"alg"`
	Value     string `json:"content"`
}

// ExternalRef points at where a component came from.
type ExternalRef struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Metadata contains SBOM generation metadata
type Metadata struct {
	Timestamp time.Time  `json:"timestamp"`
	Tools     []Tool     `json:"tools"`
	Component *Component `json:"component,omitempty"`
}

// Tool represents a tool used to generate the SBOM
type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
