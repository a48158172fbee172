package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jurobystricky/autospec/internal/domain-adapters/gateways"
	orchestrators "github.com/jurobystricky/autospec/internal/domain-orchestrators"
	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces/repositories"
	"github.com/jurobystricky/autospec/internal/domain/services"
	"github.com/jurobystricky/autospec/internal/external-adapters/conffile"
	"github.com/jurobystricky/autospec/internal/external-adapters/yaml"
)

type prepareOptions struct {
	target        string
	configDir     string
	downloadDir   string
	name          string
	version       string
	bump          bool
	signatureURL  string
	signatureFile string
	manifest      string
	sbom          string
}

func newPrepareCmd(a *app) *cobra.Command {
	opts := &prepareOptions{}
	cmd := &cobra.Command{
		Use:   "prepare <url>",
		Short: "Fetch, classify and extract the sources of a package",
		Long: `Fetch the primary archive at <url> and every auxiliary archive it implies
(module proxy versions, pinned versions, extra archives from the config
directory), then extract them into the build root given by --target.

A manifest describing the detected package and each archive is written to
--manifest, and a CycloneDX bill of materials to --sbom.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(cmd, a, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.target, "target", "t", "", "build root to extract into (required)")
	cmd.Flags().StringVarP(&opts.configDir, "config-dir", "c", "", "directory of override directives")
	cmd.Flags().StringVar(&opts.downloadDir, "download-dir", "", "where fetched archives are kept (default <target>/.autospec/sources)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "package name, overriding detection")
	cmd.Flags().StringVar(&opts.version, "version", "", "package version, overriding detection")
	cmd.Flags().BoolVar(&opts.bump, "bump", false, "increment the release number read from the config directory")
	cmd.Flags().StringVar(&opts.signatureURL, "signature-url", "", "detached OpenPGP signature of the primary archive")
	cmd.Flags().StringVar(&opts.signatureFile, "signature-file", "", "local detached OpenPGP signature of the primary archive")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "manifest output path (default <target>/.autospec/manifest.yaml)")
	cmd.Flags().StringVar(&opts.sbom, "sbom", "", "SBOM output path (default <target>/.autospec/sbom.json)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func runPrepare(cmd *cobra.Command, a *app, opts *prepareOptions, url string) error {
	tool, err := a.toolConfig()
	if err != nil {
		return err
	}

	meta := filepath.Join(opts.target, ".autospec")
	if opts.downloadDir == "" {
		opts.downloadDir = filepath.Join(meta, "sources")
	}
	if opts.manifest == "" {
		opts.manifest = filepath.Join(meta, "manifest.yaml")
	}
	if opts.sbom == "" {
		opts.sbom = filepath.Join(meta, "sbom.json")
	}

	client := a.httpClient(tool)
	grammar := services.DefaultGrammar()

	var overrides repositories.OverrideRepository
	if opts.configDir != "" {
		loader := conffile.NewLoader(opts.configDir, opts.bump, a.logger)
		if err := loader.EnsureDefaults(); err != nil {
			return err
		}
		overrides = loader
	}

	orch := orchestrators.NewPrepOrchestrator(
		grammar,
		gateways.NewDownloader(tool.Download, a.logger),
		gateways.NewModuleVersionFetcher(client),
		gateways.NewArchiveInspector(a.logger),
		gateways.NewArchiveExtractor(a.logger),
		overrides,
		orchestrators.PrepOrchestratorConfig{Tool: tool, Logger: a.logger},
	).WithChecksums(gateways.NewChecksumVerifier()).
		WithManifestWriter(yaml.NewManifestWriter()).
		WithBOMGenerator(gateways.NewSBOMGenerator(grammar))
	if tool.GPG.HasKeys() {
		orch.WithSignatureVerifier(gateways.NewGPGVerifier(tool.GPG, client))
	}

	result, err := orch.Prepare(cmd.Context(), orchestrators.PrepRequest{
		URL:           url,
		BuildRoot:     opts.target,
		DownloadDir:   opts.downloadDir,
		Name:          opts.name,
		Version:       opts.version,
		SignatureURL:  opts.signatureURL,
		SignatureFile: opts.signatureFile,
		ManifestPath:  opts.manifest,
		BOMPath:       opts.sbom,
		Config:        entities.NewBuildConfig(),
	})
	if err != nil {
		return err
	}

	printSummary(cmd, result, opts)
	return nil
}

func printSummary(cmd *cobra.Command, r *orchestrators.PrepResult, opts *prepareOptions) {
	out := cmd.OutOrStdout()
	d := r.Detection
	ecosystem := string(d.Ecosystem)
	if ecosystem == "" {
		ecosystem = "unknown"
	}
	fmt.Fprintf(out, "Name      : %s\n", d.Name)
	fmt.Fprintf(out, "Version   : %s\n", d.Version)
	fmt.Fprintf(out, "Release   : %d\n", r.Config.Release)
	fmt.Fprintf(out, "Ecosystem : %s\n", ecosystem)
	fmt.Fprintf(out, "Pattern   : %s (strength %d)\n", r.Pattern, r.Strength)
	if d.GitURL != "" {
		fmt.Fprintf(out, "Git       : %s\n", d.GitURL)
	}
	fmt.Fprintf(out, "Archives  : %d fetched, %d extracted\n", len(r.Archives)+1, r.Extracted)
	fmt.Fprintf(out, "Build root: %s\n", opts.target)
	fmt.Fprintf(out, "Manifest  : %s\n", opts.manifest)
	fmt.Fprintf(out, "SBOM      : %s\n", opts.sbom)
}
