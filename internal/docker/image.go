package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/image"
	"github.com/rs/zerolog"

	"github.com/shinji-kodama/pdevtools/internal/model"
	"github.com/shinji-kodama/pdevtools/internal/runner"
)

// ImageInfo describes a managed image.
type ImageInfo struct {
	ID      string    `json:"id"`
	Tags    []string  `json:"tags"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
	Meta    ImageMeta `json:"meta"`
}

// ShortID returns the first 12 hex characters of the image ID.
func (i ImageInfo) ShortID() string {
	id := strings.TrimPrefix(i.ID, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// InspectImage returns metadata for ref. A missing image is reported as
// ExitGeneralError; daemon failures as ExitDockerNotRunning.
func (c *Client) InspectImage(ctx context.Context, ref string) (*ImageInfo, error) {
	resp, err := c.inner.ImageInspect(ctx, ref)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("image %q not found", ref), err)
		}
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, fmt.Sprintf("failed to inspect image %q", ref), err)
	}

	info := &ImageInfo{
		ID:   resp.ID,
		Tags: resp.RepoTags,
		Size: resp.Size,
	}
	if created, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
		info.Created = created
	}
	if resp.Config != nil {
		// Unmanaged images simply carry no metadata.
		info.Meta, _ = ParseLabels(resp.Config.Labels)
	}
	return info, nil
}

// ListManagedImages returns every image labelled as managed by pdevtools,
// newest first. Filtering happens in the daemon.
func (c *Client) ListManagedImages(ctx context.Context) ([]ImageInfo, error) {
	summaries, err := c.inner.ImageList(ctx, image.ListOptions{Filters: ManagedFilter()})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list Docker images", err)
	}

	images := make([]ImageInfo, 0, len(summaries))
	for _, s := range summaries {
		meta, err := ParseLabels(s.Labels)
		if err != nil {
			continue
		}
		images = append(images, ImageInfo{
			ID:      s.ID,
			Tags:    s.RepoTags,
			Size:    s.Size,
			Created: time.Unix(s.Created, 0).UTC(),
			Meta:    meta,
		})
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].Created.After(images[j].Created)
	})
	return images, nil
}

// BuildOptions describes one image build.
type BuildOptions struct {
	// ContextDir is the build context sent to the daemon.
	ContextDir string

	// ManifestPath is the dependency manifest. It must lie inside
	// ContextDir.
	ManifestPath string

	Tag        string
	Dockerfile DockerfileSpec
	Labels     map[string]string

	NoCache bool
	Pull    bool
}

// BuildResult reports a finished build.
type BuildResult struct {
	Tag        string     `json:"tag"`
	Dockerfile string     `json:"dockerfile"`
	Duration   string     `json:"duration"`
	Image      *ImageInfo `json:"image,omitempty"`
}

// Builder runs `docker build` with the rendered Dockerfile on stdin.
type Builder struct {
	// Client inspects the built image. Nil skips inspection (dry runs).
	Client *Client

	Runner runner.Runner
	Log    zerolog.Logger

	// Binary is the docker CLI. Empty means "docker".
	Binary string

	Stdout io.Writer
	Stderr io.Writer
}

// Build renders the Dockerfile and builds the image. A non-zero exit from
// docker, for example an unresolvable dependency, is returned as a
// CLIError carrying docker's exit code.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	rel, err := filepath.Rel(opts.ContextDir, opts.ManifestPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput, "manifest is not inside the build context", err)
	}
	spec := opts.Dockerfile
	spec.Manifest = filepath.ToSlash(rel)

	dockerfile, err := RenderDockerfile(spec)
	if err != nil {
		return nil, err
	}

	stage := model.Stage{Name: "docker build", Command: b.binary(), Args: b.buildArgs(opts)}
	b.Log.Debug().Str("tag", opts.Tag).Str("context", opts.ContextDir).Msg("building image")

	result, err := b.Runner.Run(ctx, runner.Invocation{
		Stage:  stage,
		Dir:    opts.ContextDir,
		Stdin:  bytes.NewReader(dockerfile),
		Stdout: b.Stdout,
		Stderr: b.Stderr,
	})
	if err != nil {
		return nil, err
	}
	if result.Failed() {
		msg := fmt.Sprintf("docker build failed with exit code %d", result.ExitCode)
		if tail := lastLines(result.Stderr, 5); tail != "" {
			msg += ":\n" + tail
		}
		return nil, model.NewCLIError(model.ExitCode(result.ExitCode), msg)
	}

	out := &BuildResult{
		Tag:        opts.Tag,
		Dockerfile: string(dockerfile),
		Duration:   result.Duration.Round(time.Millisecond).String(),
	}
	if b.Client != nil {
		info, err := b.Client.InspectImage(ctx, opts.Tag)
		if err != nil {
			return nil, err
		}
		out.Image = info
	}
	return out, nil
}

func (b *Builder) buildArgs(opts BuildOptions) []string {
	args := []string{"build", "--file", "-", "--tag", opts.Tag}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}
	if opts.Pull {
		args = append(args, "--pull")
	}
	args = append(args, LabelArgs(opts.Labels)...)
	return append(args, opts.ContextDir)
}

func (b *Builder) binary() string {
	if b.Binary != "" {
		return b.Binary
	}
	return "docker"
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
