package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/docker"
	"github.com/shinji-kodama/pdevtools/internal/report"
)

// newImagesCommand creates the "images" command.
func newImagesCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "images",
		Short: "List images built by pdevtools",
		Long: `List every local image labelled as built by pdevtools, newest first.

Examples:
  pdevtools images
  pdevtools images --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dc, err := docker.NewClient()
			if err != nil {
				return err
			}
			defer func() { _ = dc.Close() }()

			images, err := dc.ListManagedImages(cmd.Context())
			if err != nil {
				return err
			}

			if g.jsonOutput {
				return report.WriteImagesJSON(cmd.OutOrStdout(), images)
			}
			report.WriteImages(cmd.OutOrStdout(), images)
			return nil
		},
	}
}
