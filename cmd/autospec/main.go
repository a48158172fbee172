// Package main provides the autospec CLI, which prepares upstream sources
// for a native package build.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jurobystricky/autospec/internal/domain-adapters/gateways"
	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/interfaces"
	"github.com/jurobystricky/autospec/internal/domain/interfaces/repositories"
	"github.com/jurobystricky/autospec/internal/external-adapters/charmlog"
	"github.com/jurobystricky/autospec/internal/external-adapters/yaml"
)

// Version is the release version (set via -ldflags).
var Version = "dev"

// app carries the global flags shared by every subcommand.
type app struct {
	verbose    bool
	configPath string
	logger     interfaces.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "autospec",
		Short: "Prepare upstream sources for a package build",
		Long: `autospec turns an upstream source URL into a populated build root.

It recognises the upstream ecosystem from the URL (CRAN, CPAN, PyPI, PECL,
RubyGems, GitHub, Go module proxy), selects a build pattern, fetches the
primary archive plus any auxiliary archives, and extracts them so that each
one is rooted exactly one directory below the build root.

Examples:
  autospec detect https://cran.r-project.org/src/contrib/raster_3.0-12.tar.gz
  autospec inspect ./foo-1.0.tar.gz
  autospec prepare https://proxy.golang.org/github.com/!burnt!sushi/toml/@v/list --target build`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			a.logger = charmlog.New(a.verbose)
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "autospec.yaml configuration file")

	root.AddCommand(newPrepareCmd(a))
	root.AddCommand(newDetectCmd(a))
	root.AddCommand(newInspectCmd(a))
	return root
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "autospec.yaml"
	}
	return filepath.Join(dir, "autospec", "autospec.yaml")
}

func (a *app) toolConfig() (*entities.ToolConfig, error) {
	var repo repositories.ToolConfigRepository = yaml.NewConfigParser(a.logger)
	return repo.LoadToolConfig(a.configPath)
}

func (a *app) httpClient(cfg *entities.ToolConfig) *http.Client {
	timeout := time.Duration(cfg.Download.TimeoutSeconds) * time.Second
	return gateways.NewRetryableClient(cfg.Download.Retries, timeout, a.logger)
}
