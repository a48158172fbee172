package yaml

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jurobystricky/autospec/internal/domain/entities"
)

// ManifestWriter stores preparation manifests as YAML documents.
type ManifestWriter struct{}

// NewManifestWriter creates a new manifest writer
func NewManifestWriter() *ManifestWriter {
	return &ManifestWriter{}
}

// Marshal renders m with two-space indentation.
func (w *ManifestWriter) Marshal(m *entities.Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteManifest writes m to path, replacing any previous manifest.
func (w *ManifestWriter) WriteManifest(m *entities.Manifest, path string) error {
	data, err := w.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
