// Package docker builds and inspects the reproducible tool container for
// the pdevtools CLI.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Rendering the Dockerfile from the container configuration
//   - Image builds through the docker CLI, with the Dockerfile on stdin
//   - Image labels marking images as managed, and label-filtered listing
//
// Builds shell out so BuildKit, credential helpers and the user's docker
// context apply. Daemon checks, inspection and listing use
// github.com/docker/docker/client with API version negotiation.
package docker
