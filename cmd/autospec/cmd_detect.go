package main

import (
	"fmt"

	"github.com/spf13/cobra"
	goyaml "gopkg.in/yaml.v3"

	"github.com/jurobystricky/autospec/internal/domain-adapters/gateways"
	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/services"
)

func newDetectCmd(a *app) *cobra.Command {
	var resolve bool
	cmd := &cobra.Command{
		Use:   "detect <url>...",
		Short: "Show the ecosystem, name, version and build pattern of URLs",
		Long: `Match each URL against the ecosystem grammar and print the detection
as YAML. Nothing is downloaded unless --resolve is given, in which case the
newest version of a module proxy listing is looked up.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grammar := services.DefaultGrammar()
			var lister *gateways.ModuleVersionFetcher
			if resolve {
				tool, err := a.toolConfig()
				if err != nil {
					return err
				}
				lister = gateways.NewModuleVersionFetcher(a.httpClient(tool))
			}

			detections := make([]*entities.Detection, 0, len(args))
			for _, url := range args {
				d := grammar.Detect(url)
				if lister != nil && d.Ecosystem == entities.EcosystemGoProxy && d.Version == "" {
					versions, err := lister.ListVersions(cmd.Context(), url)
					if err != nil {
						return fmt.Errorf("failed to resolve %s: %w", url, err)
					}
					if len(versions) > 0 {
						d.Version = versions[0]
					}
				}
				detections = append(detections, d)
			}

			enc := goyaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(detections); err != nil {
				return fmt.Errorf("failed to encode detections: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "look up module proxy versions")
	return cmd
}
