package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/config"
	"github.com/shinji-kodama/pdevtools/internal/project"
)

// newConfigCommand creates the "config" command group.
func newConfigCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the pdevtools configuration",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newConfigShowCommand(g))
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigShowCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration that fmt, lint, test and build would use in
the current directory, after pyproject.toml, the config file and PDEVTOOLS_*
environment variables have been applied. The files that contributed are
listed as comments.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.newSession(cmd, nil)
			if err != nil {
				return err
			}
			data, err := config.MarshalYAML(s.cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "# project root: %s\n", s.root)
			for _, src := range s.cfg.Sources {
				_, _ = fmt.Fprintf(out, "# source: %s\n", src)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default .pdevtools.yaml to the project root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			// The existing config is not loaded so a broken file can be
			// replaced with --force.
			root, err := project.NewResolver().Root(cwd)
			if err != nil {
				return err
			}

			path, err := config.WriteDefault(root, force)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
