// Package repositories defines interfaces for data access layers.
package repositories

import (
	"github.com/jurobystricky/autospec/internal/domain/entities"
)

// OverrideRepository reads operator override directives into a run's configuration.
type OverrideRepository interface {
	// Load merges the directives into cfg. The primary detection supplies the
	// package name and the URL and version used to derive URLs for version
	// pins that do not carry one.
	Load(cfg *entities.BuildConfig, primary *entities.Detection) error
}

// ToolConfigRepository loads the global tool configuration.
type ToolConfigRepository interface {
	LoadToolConfig(path string) (*entities.ToolConfig, error)
}
