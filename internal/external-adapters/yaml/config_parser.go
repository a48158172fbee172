// Package yaml reads the global autospec configuration and writes
// preparation manifests.
package yaml

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
)

// yamlToolConfig represents the raw YAML structure
type yamlToolConfig struct {
	Git          string       `yaml:"git"`
	LicenseFetch string       `yaml:"license_fetch"`
	LicenseShow  string       `yaml:"license_show"`
	Download     yamlDownload `yaml:"download"`
	GPG          yamlGPG      `yaml:"gpg"`
}

type yamlDownload struct {
	Retries        *int `yaml:"retries"`
	TimeoutSeconds *int `yaml:"timeout_seconds"`
	Parallel       *int `yaml:"parallel"`
}

type yamlGPG struct {
	KeyIDs  []string `yaml:"key_ids"`
	KeysURL string   `yaml:"keys_url"`
	KeyFile string   `yaml:"key_file"`
}

// ConfigParser implements repositories.ToolConfigRepository for autospec.yaml.
type ConfigParser struct {
	logger interfaces.Logger
}

// NewConfigParser creates a new YAML config parser
func NewConfigParser(logger interfaces.Logger) *ConfigParser {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &ConfigParser{logger: logger}
}

// LoadToolConfig reads path. A missing file yields the defaults; unset
// integration URLs are reported as warnings.
func (p *ConfigParser) LoadToolConfig(path string) (*entities.ToolConfig, error) {
	cfg := entities.DefaultToolConfig()
	if path != "" {
		//nolint:gosec // G304: path is the operator's config file
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			p.logger.Debug("No configuration file", interfaces.F("path", path))
		case err != nil:
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		default:
			if cfg, err = p.Parse(data); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	if cfg.GitTemplate == "" {
		p.logger.Warn("Set git upstream template for git support")
	}
	if cfg.LicenseFetch == "" {
		p.logger.Warn("Set license_fetch uri for license fetch support")
	}
	if cfg.LicenseShow == "" {
		p.logger.Warn("Set license_show uri for license link check support")
	}
	return cfg, nil
}

// Parse parses YAML bytes on top of the default configuration.
func (p *ConfigParser) Parse(data []byte) (*entities.ToolConfig, error) {
	var raw yamlToolConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := entities.DefaultToolConfig()
	cfg.GitTemplate = raw.Git
	cfg.LicenseFetch = raw.LicenseFetch
	cfg.LicenseShow = raw.LicenseShow
	cfg.GPG = entities.GPGConfig{
		KeyIDs:  raw.GPG.KeyIDs,
		KeysURL: raw.GPG.KeysURL,
		KeyFile: raw.GPG.KeyFile,
	}

	for _, v := range []struct {
		name   string
		value  *int
		target *int
		min    int
	}{
		{"download.retries", raw.Download.Retries, &cfg.Download.Retries, 0},
		{"download.timeout_seconds", raw.Download.TimeoutSeconds, &cfg.Download.TimeoutSeconds, 1},
		{"download.parallel", raw.Download.Parallel, &cfg.Download.Parallel, 1},
	} {
		if v.value == nil {
			continue
		}
		if *v.value < v.min {
			return nil, fmt.Errorf("%s must be at least %d, got %d", v.name, v.min, *v.value)
		}
		*v.target = *v.value
	}
	return cfg, nil
}
