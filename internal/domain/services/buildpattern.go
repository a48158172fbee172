package services

import (
	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
)

// ResolvePattern offers the URL-derived pattern claim to cfg and returns the
// pattern in force afterwards. An operator override (strength 20) is never
// displaced by detection (strength 10).
func ResolvePattern(cfg *entities.BuildConfig, d *entities.Detection, logger interfaces.Logger) (entities.BuildPattern, entities.Strength) {
	if cfg.SetBuildPattern(d.Pattern, d.Strength) {
		logger.Debug("Build pattern detected from URL",
			interfaces.F("pattern", d.Pattern),
			interfaces.F("ecosystem", d.Ecosystem))
	} else if d.Strength > entities.StrengthNone && d.Pattern != cfg.Pattern {
		logger.Info("Build pattern override kept",
			interfaces.F("override", cfg.Pattern),
			interfaces.F("detected", d.Pattern))
	}
	if !cfg.Pattern.Known() {
		logger.Warn("Unknown build pattern", interfaces.F("pattern", cfg.Pattern))
	}
	return cfg.Pattern, cfg.PatternStrength
}

// ApplyHints replaces detected name and version with caller-supplied values
// when given.
func ApplyHints(d *entities.Detection, name, version string) {
	if name != "" {
		d.Name = name
	}
	if version != "" {
		d.Version = version
	}
}
