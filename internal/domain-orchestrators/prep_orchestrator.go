// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
	"github.com/jurobystricky/autospec/internal/domain/interfaces/gateways"
	"github.com/jurobystricky/autospec/internal/domain/interfaces/repositories"
	"github.com/jurobystricky/autospec/internal/domain/services"
)

// SourceInspector classifies fetched files and resolves their layout.
type SourceInspector interface {
	Classify(d *entities.Descriptor) error
	ResolveLayout(d *entities.Descriptor) error
}

// SourceExtractor unpacks a classified descriptor under a build root.
type SourceExtractor interface {
	Extract(d *entities.Descriptor, buildRoot string) error
}

// ChecksumRecorder fills in the digest of every fetched archive.
type ChecksumRecorder interface {
	RecordChecksums(archives []entities.FetchedArchive) error
}

// ManifestWriter persists the preparation manifest.
type ManifestWriter interface {
	WriteManifest(m *entities.Manifest, path string) error
}

// BOMGenerator describes the fetched sources.
type BOMGenerator interface {
	GenerateSourceBOM(detection entities.Detection, archives []entities.FetchedArchive) (*entities.SBOM, error)
	WriteSBOM(sbom *entities.SBOM, path string) error
}

// PrepOrchestrator turns one upstream URL into a populated build root.
type PrepOrchestrator struct {
	grammar   *services.Grammar
	fetcher   gateways.Fetcher
	lister    gateways.ModuleVersionLister
	inspector SourceInspector
	extractor SourceExtractor
	overrides repositories.OverrideRepository

	verifier  gateways.SignatureVerifier
	checksums ChecksumRecorder
	manifests ManifestWriter
	bom       BOMGenerator

	tool   *entities.ToolConfig
	logger interfaces.Logger
	now    func() time.Time
}

// PrepOrchestratorConfig holds configuration for the orchestrator
type PrepOrchestratorConfig struct {
	Tool   *entities.ToolConfig
	Logger interfaces.Logger
}

// NewPrepOrchestrator creates a new preparation orchestrator. overrides may be
// nil when no directive directory is in use.
func NewPrepOrchestrator(
	grammar *services.Grammar,
	fetcher gateways.Fetcher,
	lister gateways.ModuleVersionLister,
	inspector SourceInspector,
	extractor SourceExtractor,
	overrides repositories.OverrideRepository,
	config PrepOrchestratorConfig,
) *PrepOrchestrator {
	if grammar == nil {
		grammar = services.DefaultGrammar()
	}
	logger := config.Logger
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	tool := config.Tool
	if tool == nil {
		tool = entities.DefaultToolConfig()
	}

	return &PrepOrchestrator{
		grammar:   grammar,
		fetcher:   fetcher,
		lister:    lister,
		inspector: inspector,
		extractor: extractor,
		overrides: overrides,
		tool:      tool,
		logger:    logger,
		now:       time.Now,
	}
}

// WithSignatureVerifier enables detached-signature checks of the primary archive.
func (o *PrepOrchestrator) WithSignatureVerifier(v gateways.SignatureVerifier) *PrepOrchestrator {
	o.verifier = v
	return o
}

// WithChecksums records a digest of every fetched archive in the manifest.
func (o *PrepOrchestrator) WithChecksums(c ChecksumRecorder) *PrepOrchestrator {
	o.checksums = c
	return o
}

// WithManifestWriter enables writing the manifest to PrepRequest.ManifestPath.
func (o *PrepOrchestrator) WithManifestWriter(w ManifestWriter) *PrepOrchestrator {
	o.manifests = w
	return o
}

// WithBOMGenerator enables the source bill of materials.
func (o *PrepOrchestrator) WithBOMGenerator(g BOMGenerator) *PrepOrchestrator {
	o.bom = g
	return o
}

// PrepRequest describes one preparation run.
type PrepRequest struct {
	URL         string
	BuildRoot   string
	DownloadDir string

	// Name and Version replace the detected values when set.
	Name    string
	Version string

	SignatureURL  string
	SignatureFile string

	ManifestPath string
	BOMPath      string

	// Config is the run configuration; a fresh one is created when nil.
	Config *entities.BuildConfig
}

// PrepResult contains the result of a preparation run
type PrepResult struct {
	Detection   *entities.Detection
	Config      *entities.BuildConfig
	Pattern     entities.BuildPattern
	Strength    entities.Strength
	Primary     *entities.Descriptor
	Archives    entities.ArchiveList
	Descriptors []*entities.Descriptor
	Extracted   int
	Manifest    *entities.Manifest
	SBOM        *entities.SBOM
	Duration    time.Duration
}

// Prepare fetches, classifies and extracts everything the build of req.URL needs.
// Any error aborts the run; the build root may then hold partial output.
func (o *PrepOrchestrator) Prepare(ctx context.Context, req PrepRequest) (*PrepResult, error) {
	start := o.now()
	if req.URL == "" {
		return nil, fmt.Errorf("no source URL given")
	}
	if req.BuildRoot == "" {
		return nil, fmt.Errorf("no build root given")
	}
	downloadDir := req.DownloadDir
	if downloadDir == "" {
		downloadDir = filepath.Join(req.BuildRoot, ".autospec", "sources")
	}
	cfg := req.Config
	if cfg == nil {
		cfg = entities.NewBuildConfig()
	}
	result := &PrepResult{Config: cfg}
	logger := o.logger.With(interfaces.F("url", req.URL))

	// Step 1: Detect ecosystem, name and version from the URL
	detection := o.grammar.Detect(req.URL)
	services.ApplyHints(detection, req.Name, req.Version)
	result.Detection = detection
	logger.Info("Detected source",
		interfaces.F("ecosystem", detection.Ecosystem),
		interfaces.F("name", detection.Name),
		interfaces.F("version", detection.Version))

	// Step 2: Fetch and classify the primary archive
	primaryPath, err := o.fetcher.Fetch(ctx, req.URL, downloadDir)
	if err != nil {
		return result, fmt.Errorf("failed to fetch primary archive: %w", err)
	}
	primary := entities.NewDescriptor(req.URL, entities.ExtractDestination, primaryPath)
	if err := o.inspector.Classify(primary); err != nil {
		return result, fmt.Errorf("failed to classify primary archive: %w", err)
	}
	result.Primary = primary

	// Step 3: Resolve module proxy versions; the newest becomes the version
	var versions []string
	if detection.Ecosystem == entities.EcosystemGoProxy {
		versions, err = o.moduleVersions(ctx, primary)
		if err != nil {
			return result, err
		}
		if detection.Version == "" && len(versions) > 0 {
			detection.Version = versions[0]
			detection.RawVersion = versions[0]
			if d := o.grammar.Detect(moduleFileURL(req.URL, detection.Version)); d.PURL != "" {
				detection.PURL = d.PURL
			}
		}
	}
	if detection.Name == "" || detection.Version == "" {
		logger.Warn("Name or version not detected; pass --name/--version",
			interfaces.F("name", detection.Name),
			interfaces.F("version", detection.Version))
	}

	// Step 4: Merge operator overrides and arbitrate the build pattern
	if o.overrides != nil {
		if err := o.overrides.Load(cfg, detection); err != nil {
			return result, fmt.Errorf("failed to load overrides: %w", err)
		}
	}
	result.Pattern, result.Strength = services.ResolvePattern(cfg, detection, logger)

	// Step 5: Expand the archive list
	var proxy entities.ArchiveList
	if detection.Ecosystem == entities.EcosystemGoProxy {
		if proxy, err = ExpandModuleProxy(req.URL, versions); err != nil {
			return result, err
		}
	}
	archives := proxy.Concat(
		ExpandPinnedVersions(detection.URLVersion(), cfg.PinnedVersions),
		ExpandExtraArchives(cfg),
	)
	result.Archives = archives
	logger.Info("Archive list expanded",
		interfaces.F("archives", len(archives)),
		interfaces.F("extractable", archives.Extractable()))

	// Step 6: Fetch and classify auxiliary archives
	var paths []string
	if len(archives) > 0 {
		if paths, err = o.fetcher.FetchAll(ctx, archives, filepath.Join(downloadDir, "aux")); err != nil {
			return result, fmt.Errorf("failed to fetch archives: %w", err)
		}
		if len(paths) != len(archives) {
			return result, fmt.Errorf("fetched %d of %d archives", len(paths), len(archives))
		}
	}
	descriptors := make([]*entities.Descriptor, len(archives))
	for i, entry := range archives {
		d := entities.NewDescriptor(entry.URL, entry.Destination, paths[i])
		if err := o.inspector.Classify(d); err != nil {
			return result, fmt.Errorf("failed to classify %s: %w", entry.URL, err)
		}
		descriptors[i] = d
	}
	result.Descriptors = descriptors

	// Step 7: Verify the primary archive signature
	if err := o.verifySignature(ctx, req, primaryPath); err != nil {
		return result, err
	}

	// Step 8: Extract in archive-list order
	extracted, err := o.ExtractSources(primary, descriptors, req.BuildRoot)
	result.Extracted = extracted
	if err != nil {
		return result, err
	}

	// Step 9: Record checksums, manifest and bill of materials
	fetched := make([]entities.FetchedArchive, 0, len(descriptors)+1)
	fetched = append(fetched, entities.NewFetchedArchive(primary, true))
	for _, d := range descriptors {
		fetched = append(fetched, entities.NewFetchedArchive(d, false))
	}
	if o.checksums != nil {
		if err := o.checksums.RecordChecksums(fetched); err != nil {
			return result, fmt.Errorf("failed to record checksums: %w", err)
		}
	}

	result.Manifest = &entities.Manifest{
		Name:          detection.Name,
		Version:       detection.Version,
		Release:       cfg.Release,
		Detection:     *detection,
		Pattern:       result.Pattern,
		Strength:      result.Strength,
		PackagingRepo: o.tool.PackagingRepo(detection.Name),
		BuildRoot:     req.BuildRoot,
		Archives:      fetched,
		Config:        cfg,
		PreparedAt:    o.now().UTC(),
	}
	if o.manifests != nil && req.ManifestPath != "" {
		if err := o.manifests.WriteManifest(result.Manifest, req.ManifestPath); err != nil {
			return result, fmt.Errorf("failed to write manifest: %w", err)
		}
	}
	if o.bom != nil {
		sbom, err := o.bom.GenerateSourceBOM(*detection, fetched)
		if err != nil {
			return result, fmt.Errorf("failed to generate SBOM: %w", err)
		}
		result.SBOM = sbom
		if req.BOMPath != "" {
			if err := o.bom.WriteSBOM(sbom, req.BOMPath); err != nil {
				return result, err
			}
		}
	}

	result.Duration = o.now().Sub(start)
	logger.Info("Sources prepared",
		interfaces.F("pattern", result.Pattern),
		interfaces.F("extracted", extracted),
		interfaces.F("duration", result.Duration.Round(time.Millisecond)))
	return result, nil
}

func (o *PrepOrchestrator) moduleVersions(ctx context.Context, primary *entities.Descriptor) ([]string, error) {
	if o.lister == nil {
		return nil, fmt.Errorf("module proxy source %s needs a version lister", primary.Reference)
	}
	var (
		versions []string
		err      error
	)
	if primary.Type == entities.ContainerModuleList {
		versions, err = o.lister.ReadVersions(primary.LocalPath)
	} else {
		versions, err = o.lister.ListVersions(ctx, moduleFileURL(primary.Reference, "list"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve module versions: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("module proxy listing %s has no versions", primary.Reference)
	}
	return versions, nil
}

func (o *PrepOrchestrator) verifySignature(ctx context.Context, req PrepRequest, path string) error {
	if req.SignatureURL == "" && req.SignatureFile == "" {
		return nil
	}
	if o.verifier == nil {
		return fmt.Errorf("signature check requested but no verifier is configured")
	}
	var err error
	if req.SignatureFile != "" {
		err = o.verifier.VerifyGPGSignatureFromFile(path, req.SignatureFile)
	} else {
		err = o.verifier.VerifyGPGSignature(ctx, path, req.SignatureURL)
	}
	if err != nil {
		return err
	}
	o.logger.Info("Signature verified", interfaces.F("url", req.URL))
	return nil
}

// ExtractSources extracts the primary and every non-skip auxiliary descriptor
// into buildRoot, in order. Layouts are resolved on first use and skip
// descriptors are only marked as skipped. It returns how many descriptors were
// extracted; the first failure stops the pass.
func (o *PrepOrchestrator) ExtractSources(primary *entities.Descriptor, archives []*entities.Descriptor, buildRoot string) (int, error) {
	all := make([]*entities.Descriptor, 0, len(archives)+1)
	if primary != nil {
		all = append(all, primary)
	}
	all = append(all, archives...)

	count := 0
	for _, d := range all {
		if d.State == entities.StateUnclassified {
			if err := o.inspector.Classify(d); err != nil {
				return count, fmt.Errorf("failed to classify %s: %w", d.Reference, err)
			}
		}
		if d.Skip() {
			if err := d.Advance(entities.StateSkipped); err != nil {
				return count, err
			}
			continue
		}
		if err := o.inspector.ResolveLayout(d); err != nil {
			return count, fmt.Errorf("failed to resolve layout of %s: %w", d.Reference, err)
		}
		if err := o.extractor.Extract(d, buildRoot); err != nil {
			return count, fmt.Errorf("failed to extract %s: %w", d.Reference, err)
		}
		if err := d.Advance(entities.StateExtracted); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

var moduleProxyURL = regexp.MustCompile(`^(https?://[^/]+/.+/@v/)(list|[^/]+\.(?:info|mod|zip))$`)

// moduleFileURL swaps the file part of a module proxy URL: name is either
// "list" or a version whose .zip is wanted.
func moduleFileURL(proxyURL, name string) string {
	m := moduleProxyURL.FindStringSubmatch(proxyURL)
	if m == nil {
		return proxyURL
	}
	if name == "list" {
		return m[1] + "list"
	}
	return m[1] + name + ".zip"
}

// ExpandModuleProxy lists the .info, .mod and .zip files of every version,
// newest first. The .info and .mod files are metadata only. A versioned
// primary URL excludes its own version; a listing URL represents none.
func ExpandModuleProxy(primaryURL string, versions []string) (entities.ArchiveList, error) {
	m := moduleProxyURL.FindStringSubmatch(primaryURL)
	if m == nil {
		return nil, fmt.Errorf("%s is not a module proxy URL", primaryURL)
	}
	base, file := m[1], m[2]
	own := ""
	if file != "list" {
		own = file[:len(file)-len(filepath.Ext(file))]
	}

	list := make(entities.ArchiveList, 0, 3*len(versions))
	for _, v := range versions {
		if v == own {
			continue
		}
		list = append(list,
			entities.ArchiveEntry{URL: base + v + ".info", Destination: entities.SkipDestination},
			entities.ArchiveEntry{URL: base + v + ".mod", Destination: entities.SkipDestination},
			entities.ArchiveEntry{URL: base + v + ".zip", Destination: entities.ExtractDestination},
		)
	}
	return list, nil
}

// ExpandPinnedVersions lists the archive of every pinned version other than
// primaryVersion, in pin order. Pins are matched against primaryVersion with
// services.SameVersion, so 3.0-12 and 3.0.12 name the same release.
func ExpandPinnedVersions(primaryVersion string, pins entities.VersionPins) entities.ArchiveList {
	var list entities.ArchiveList
	for _, pin := range pins {
		if services.SameVersion(pin.Version, primaryVersion) || pin.URL == "" {
			continue
		}
		list = append(list, entities.ArchiveEntry{URL: pin.URL, Destination: entities.ExtractDestination})
	}
	return list
}

// ExpandExtraArchives returns a copy of the operator's extra archives.
func ExpandExtraArchives(cfg *entities.BuildConfig) entities.ArchiveList {
	if cfg == nil || len(cfg.ExtraArchives) == 0 {
		return nil
	}
	return entities.ArchiveList(nil).Concat(cfg.ExtraArchives)
}
