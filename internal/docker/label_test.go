package docker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildLabels verifies that BuildLabels always sets the managed-by
// marker alongside the image metadata.
func TestBuildLabels(t *testing.T) {
	meta := ImageMeta{
		BaseImage:      "python:3.12-slim",
		ManifestDigest: "abc123",
		Project:        "/home/user/demo",
		CreatedAt:      time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
	}

	labels := BuildLabels(meta)

	assert.Equal(t, ManagedByValue, labels[LabelManagedBy],
		"managed-by label should always be set to the constant value")
	assert.Equal(t, "python:3.12-slim", labels[LabelBaseImage])
	assert.Equal(t, "abc123", labels[LabelManifestDigest])
	assert.Equal(t, "/home/user/demo", labels[LabelProject])
	assert.Equal(t, "2026-02-28T10:00:00Z", labels[LabelCreatedAt])
	assert.Len(t, labels, 5)
}

func TestBuildLabels_ZeroTime(t *testing.T) {
	labels := BuildLabels(ImageMeta{BaseImage: "python:3.12"})
	_, ok := labels[LabelCreatedAt]
	assert.False(t, ok, "zero time is not recorded")
}

func TestParseLabels(t *testing.T) {
	tests := []struct {
		name    string
		labels  map[string]string
		wantErr string
	}{
		{
			name:    "not managed",
			labels:  map[string]string{"maintainer": "someone"},
			wantErr: "unexpected value",
		},
		{
			name:    "foreign managed-by",
			labels:  map[string]string{LabelManagedBy: "other-tool"},
			wantErr: `"other-tool"`,
		},
		{
			name:    "bad timestamp",
			labels:  map[string]string{LabelManagedBy: ManagedByValue, LabelCreatedAt: "yesterday"},
			wantErr: LabelCreatedAt,
		},
		{
			name:   "minimal",
			labels: map[string]string{LabelManagedBy: ManagedByValue},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLabels(tt.labels)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildAndParseLabelRoundTrip(t *testing.T) {
	original := ImageMeta{
		BaseImage:      "python:3.11",
		ManifestDigest: ManifestDigest([]byte("black==24.1.0\n")),
		Project:        "/srv/app",
		CreatedAt:      time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC),
	}

	parsed, err := ParseLabels(BuildLabels(original))
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestLabelArgs(t *testing.T) {
	args := LabelArgs(map[string]string{
		LabelProject:   "/srv/app",
		LabelManagedBy: ManagedByValue,
	})
	assert.Equal(t, []string{
		"--label", "pdevtools.managed-by=pdevtools",
		"--label", "pdevtools.project=/srv/app",
	}, args, "labels are emitted in key order")
}

func TestManagedFilter(t *testing.T) {
	f := ManagedFilter()
	assert.Equal(t, []string{LabelManagedBy + "=" + ManagedByValue}, f.Get("label"))
}

func TestManifestDigest(t *testing.T) {
	unix := ManifestDigest([]byte("black\nisort\n"))
	windows := ManifestDigest([]byte("black\r\nisort\r\n"))
	assert.Equal(t, unix, windows, "line endings do not change the digest")
	assert.Len(t, unix, 64)
	assert.NotEqual(t, unix, ManifestDigest([]byte("black\n")))
}
