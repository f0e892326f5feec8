package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// pingTimeout bounds the daemon check before a build. Docker Desktop can
// take a few seconds to answer after waking.
const pingTimeout = 5 * time.Second

// windowsPipe is the default Docker Engine named pipe.
const windowsPipe = `//./pipe/docker_engine`

// Client is the Docker Engine API client used for daemon checks, image
// inspection and listing. Builds go through the docker CLI instead.
type Client struct {
	inner client.APIClient
	host  string
}

// NewClient connects to DOCKER_HOST or, when unset, to the first local
// socket that exists (see socketCandidates). Nothing is sent to the
// daemon until Ping or another call is made.
func NewClient() (*Client, error) {
	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		var err error
		host, err = localHost()
		if err != nil {
			return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
		}
	}

	c, err := client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning,
			fmt.Sprintf("cannot create Docker client for %q", host), err)
	}
	return &Client{inner: c, host: host}, nil
}

// NewClientFromAPI wraps an existing API client, typically a test fake.
func NewClientFromAPI(api client.APIClient) *Client {
	return &Client{inner: api}
}

// Host is the daemon address the client talks to. It is empty for
// clients built with NewClientFromAPI.
func (c *Client) Host() string {
	return c.host
}

// socketCandidates lists the unix sockets probed on goos, most preferred
// first. Rootless and Desktop installs keep the socket under home.
func socketCandidates(goos, home string) []string {
	paths := []string{"/var/run/docker.sock"}
	if home == "" {
		return paths
	}
	switch goos {
	case "darwin":
		paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
	case "linux":
		paths = append(paths, filepath.Join(home, ".docker", "desktop", "docker.sock"))
	}
	return paths
}

func localHost() (string, error) {
	if runtime.GOOS == "windows" {
		// Named pipes cannot be stat'ed.
		conn, err := net.DialTimeout("pipe", windowsPipe, time.Second)
		if err != nil {
			return "", fmt.Errorf("no Docker named pipe at %s: %w", windowsPipe, err)
		}
		_ = conn.Close()
		return "npipe://" + windowsPipe, nil
	}

	home, _ := os.UserHomeDir()
	return firstSocket(socketCandidates(runtime.GOOS, home))
}

// firstSocket returns the unix:// URI of the first path that exists.
func firstSocket(paths []string) (string, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return "unix://" + p, nil
		}
	}
	return "", fmt.Errorf("no Docker socket at any of %v (is Docker running?)", paths)
}

// Ping checks that the daemon answers. Failures map to
// ExitDockerNotRunning.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(ctx); err != nil {
		return model.WrapCLIError(model.ExitDockerNotRunning,
			"Docker daemon is not responding (is Docker running?)", err)
	}
	return nil
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
