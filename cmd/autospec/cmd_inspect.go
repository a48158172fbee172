package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	goyaml "gopkg.in/yaml.v3"

	"github.com/jurobystricky/autospec/internal/domain-adapters/gateways"
	"github.com/jurobystricky/autospec/internal/domain/entities"
)

type inspectReport struct {
	Reference string                 `yaml:"reference"`
	Path      string                 `yaml:"path"`
	Type      entities.ContainerType `yaml:"type"`
	Prefix    string                 `yaml:"prefix,omitempty"`
	Subdir    string                 `yaml:"subdir,omitempty"`
	Root      string                 `yaml:"root,omitempty"`
	Skipped   bool                   `yaml:"skipped,omitempty"`
	Members   []string               `yaml:"members,omitempty"`
}

func newInspectCmd(a *app) *cobra.Command {
	var (
		reference string
		skip      bool
		members   bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Classify a local archive and show how it would be extracted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if reference == "" {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				reference = "file://" + filepath.ToSlash(abs)
			}
			dest := entities.ExtractDestination
			if skip {
				dest = entities.SkipDestination
			}

			inspector := gateways.NewArchiveInspector(a.logger)
			d, err := inspector.Inspect(reference, dest, path)
			if err != nil {
				return err
			}

			report := inspectReport{
				Reference: d.Reference,
				Path:      d.LocalPath,
				Type:      d.Type,
				Prefix:    d.Prefix,
				Subdir:    d.Subdir,
				Root:      d.Root(),
				Skipped:   d.Skip(),
			}
			if members && (d.Type == entities.ContainerZip || d.Type == entities.ContainerTar) {
				list, err := inspector.Members(d)
				if err != nil {
					return err
				}
				for _, m := range list {
					report.Members = append(report.Members, m.Name)
				}
			}

			enc := goyaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("failed to encode report: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&reference, "url", "", "URL the file was fetched from (affects module proxy listings)")
	cmd.Flags().BoolVar(&skip, "skip", false, "treat the file as metadata only")
	cmd.Flags().BoolVar(&members, "members", false, "list archive members")
	return cmd
}
