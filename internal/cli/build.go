package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/pdevtools/internal/docker"
	"github.com/shinji-kodama/pdevtools/internal/manifest"
	"github.com/shinji-kodama/pdevtools/internal/model"
	"github.com/shinji-kodama/pdevtools/internal/report"
)

var buildFlagKeys = map[string]string{
	"tag":        "container.tag",
	"base-image": "container.base_image",
	"manifest":   "container.manifest",
}

// buildFlags holds the build flags that are not configuration keys.
type buildFlags struct {
	// print renders the Dockerfile to stdout without building.
	print bool

	noCache bool
	pull    bool
}

// newBuildCommand creates the "build" command.
func newBuildCommand(g *globalOptions) *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build [context]",
		Short: "Build the tool container image",
		Long: `Build a container image with the Python tools installed.

The Dockerfile is generated from the configuration: the base image, a
copy of the dependency manifest, the installation of its requirements and
the working directory. The manifest is validated before Docker is
contacted, so an unparsable entry fails fast.

The build context defaults to the project root and must contain the
manifest.

Examples:
  pdevtools build
  pdevtools build --tag myproject-tools:dev --no-cache
  pdevtools build --print > Dockerfile`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, g, flags, args)
		},
	}

	f := cmd.Flags()
	f.StringP("tag", "t", "", "Image tag (default: container.tag)")
	f.String("base-image", "", "Base interpreter image (default: container.base_image)")
	f.StringP("manifest", "f", "", "Dependency manifest, relative to the context (default: container.manifest)")
	f.BoolVar(&flags.print, "print", false, "Print the generated Dockerfile and exit")
	f.BoolVar(&flags.noCache, "no-cache", false, "Do not use the build cache")
	f.BoolVar(&flags.pull, "pull", false, "Always pull the base image")

	return cmd
}

func runBuild(cmd *cobra.Command, g *globalOptions, flags *buildFlags, args []string) error {
	ctx := cmd.Context()

	s, err := g.newSession(cmd, buildFlagKeys)
	if err != nil {
		return err
	}
	c := s.cfg.Container

	// Step 1: Resolve the build context and the manifest inside it.
	contextDir, err := s.target(args)
	if err != nil {
		return err
	}
	manifestPath := c.Manifest
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(contextDir, manifestPath)
	}
	rel, err := filepath.Rel(contextDir, manifestPath)
	if err != nil {
		return model.WrapCLIError(model.ExitInvalidInput, "manifest is not inside the build context", err)
	}

	// Step 2: Validate the manifest before anything touches Docker.
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	s.log.Debug().Str("manifest", manifestPath).Int("requirements", len(m.Requirements)).Msg("manifest validated")

	spec := docker.DockerfileSpec{
		BaseImage: c.BaseImage,
		Manifest:  filepath.ToSlash(rel),
		Workdir:   c.Workdir,
		PipArgs:   c.PipArgs,
	}

	// Step 3: --print only renders.
	if flags.print {
		dockerfile, err := docker.RenderDockerfile(spec)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(dockerfile)
		return err
	}

	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", manifestPath, err)
	}

	builder := &docker.Builder{
		Runner: s.runner,
		Log:    s.log,
		Stdout: s.stdout,
		Stderr: s.stderr,
	}

	// Step 4: Make sure the daemon is reachable. Dry runs never connect.
	if !g.dryRun {
		dc, err := docker.NewClient()
		if err != nil {
			return err
		}
		defer func() { _ = dc.Close() }()

		if err := dc.Ping(ctx); err != nil {
			return err
		}
		s.log.Debug().Str("host", dc.Host()).Msg("docker daemon reachable")
		builder.Client = dc
	}

	// Step 5: Build, label and inspect.
	res, err := builder.Build(ctx, docker.BuildOptions{
		ContextDir:   contextDir,
		ManifestPath: manifestPath,
		Tag:          c.Tag,
		Dockerfile:   spec,
		Labels: docker.BuildLabels(docker.ImageMeta{
			BaseImage:      c.BaseImage,
			ManifestDigest: docker.ManifestDigest(content),
			Project:        s.root,
			CreatedAt:      time.Now(),
		}),
		NoCache: flags.noCache,
		Pull:    flags.pull,
	})
	if err != nil {
		return err
	}
	if g.dryRun {
		return nil
	}

	if g.jsonOutput {
		return report.WriteBuildJSON(cmd.OutOrStdout(), res)
	}
	report.WriteBuild(cmd.ErrOrStderr(), res)
	return nil
}
