package docker

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"text/template"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// manifestDest is where the manifest is copied inside the image, outside
// the working directory so a source mount does not shadow it.
const manifestDest = "/tmp/requirements.txt"

var dockerfileTmpl = template.Must(template.New("Dockerfile").Parse(`FROM {{ .BaseImage }}

ENV PIP_DISABLE_PIP_VERSION_CHECK=1 \
    PYTHONDONTWRITEBYTECODE=1 \
    PYTHONUNBUFFERED=1

COPY {{ .Manifest }} {{ .ManifestDest }}
RUN pip install --no-cache-dir{{ range .PipArgs }} {{ . }}{{ end }} -r {{ .ManifestDest }}

WORKDIR {{ .Workdir }}
`))

// DockerfileSpec holds the values rendered into the Dockerfile.
type DockerfileSpec struct {
	BaseImage string

	// Manifest is the manifest path relative to the build context, using
	// forward slashes.
	Manifest string

	Workdir string
	PipArgs []string
}

// Validate checks that s renders to a usable Dockerfile.
func (s DockerfileSpec) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return model.NewCLIError(model.ExitInvalidInput, fmt.Sprintf(format, args...))
	}
	switch {
	case strings.TrimSpace(s.BaseImage) == "" || strings.ContainsAny(s.BaseImage, " \t\n"):
		return invalid("invalid base image %q", s.BaseImage)
	case s.Manifest == "" || strings.ContainsAny(s.Manifest, "\n"):
		return invalid("invalid manifest path %q", s.Manifest)
	case path.IsAbs(s.Manifest) || s.Manifest == ".." || strings.HasPrefix(s.Manifest, "../"):
		return invalid("manifest %q must be inside the build context", s.Manifest)
	case !path.IsAbs(s.Workdir):
		return invalid("container workdir %q must be an absolute path", s.Workdir)
	}
	for _, a := range s.PipArgs {
		if strings.ContainsAny(a, "\n") {
			return invalid("invalid pip argument %q", a)
		}
	}
	return nil
}

// RenderDockerfile renders the container definition: base image, copy of
// the dependency manifest, dependency installation, working directory.
func RenderDockerfile(spec DockerfileSpec) ([]byte, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	data := struct {
		DockerfileSpec
		ManifestDest string
	}{spec, manifestDest}

	var buf bytes.Buffer
	if err := dockerfileTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render Dockerfile: %w", err)
	}
	return buf.Bytes(), nil
}
