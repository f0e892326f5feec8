package docker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/docker/docker/api/types/filters"
)

// Label keys written on every image built by pdevtools. They are the only
// record of which images are managed; nothing is stored outside Docker.
const (
	// LabelPrefix namespaces all pdevtools labels.
	LabelPrefix = "pdevtools."

	// LabelManagedBy marks an image as built by pdevtools. Listing filters
	// on this label server-side.
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelBaseImage records the FROM image.
	LabelBaseImage = LabelPrefix + "base-image"

	// LabelManifestDigest is the sha256 of the dependency manifest the
	// image was built from, so a stale image can be spotted by comparing
	// it with the current file.
	LabelManifestDigest = LabelPrefix + "manifest-digest"

	// LabelProject records the project root the image was built for.
	LabelProject = LabelPrefix + "project"

	// LabelCreatedAt is the RFC3339 build time in UTC.
	LabelCreatedAt = LabelPrefix + "created-at"
)

// ManagedByValue is the value of LabelManagedBy.
const ManagedByValue = "pdevtools"

// ImageMeta is the metadata pdevtools stores as image labels.
type ImageMeta struct {
	BaseImage      string
	ManifestDigest string
	Project        string
	CreatedAt      time.Time
}

// BuildLabels encodes meta as a label map including the managed-by marker.
func BuildLabels(meta ImageMeta) map[string]string {
	labels := map[string]string{
		LabelManagedBy:      ManagedByValue,
		LabelBaseImage:      meta.BaseImage,
		LabelManifestDigest: meta.ManifestDigest,
		LabelProject:        meta.Project,
	}
	if !meta.CreatedAt.IsZero() {
		labels[LabelCreatedAt] = meta.CreatedAt.UTC().Format(time.RFC3339)
	}
	return labels
}

// ParseLabels is the inverse of BuildLabels. It fails when the image is
// not managed by pdevtools.
func ParseLabels(labels map[string]string) (ImageMeta, error) {
	if got := labels[LabelManagedBy]; got != ManagedByValue {
		return ImageMeta{}, fmt.Errorf("label %s has unexpected value %q (expected %q)", LabelManagedBy, got, ManagedByValue)
	}

	meta := ImageMeta{
		BaseImage:      labels[LabelBaseImage],
		ManifestDigest: labels[LabelManifestDigest],
		Project:        labels[LabelProject],
	}
	if raw, ok := labels[LabelCreatedAt]; ok {
		createdAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ImageMeta{}, fmt.Errorf("invalid label %s: %w", LabelCreatedAt, err)
		}
		meta.CreatedAt = createdAt
	}
	return meta, nil
}

// LabelArgs renders labels as sorted `--label k=v` docker CLI arguments.
func LabelArgs(labels map[string]string) []string {
	keys := slices.Sorted(maps.Keys(labels))
	args := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, "--label", k+"="+labels[k])
	}
	return args
}

// ManagedFilter selects images carrying the managed-by label.
func ManagedFilter() filters.Args {
	return filters.NewArgs(filters.Arg("label", LabelManagedBy+"="+ManagedByValue))
}

// ManifestDigest returns the hex sha256 of manifest content with line
// endings normalised.
func ManifestDigest(content []byte) string {
	normalised := strings.ReplaceAll(string(content), "\r\n", "\n")
	sum := sha256.Sum256([]byte(normalised))
	return hex.EncodeToString(sum[:])
}
