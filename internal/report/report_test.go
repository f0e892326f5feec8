package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/pdevtools/internal/docker"
	"github.com/shinji-kodama/pdevtools/internal/model"
)

func abortedFormat() *model.Outcome {
	return &model.Outcome{
		Pipeline: model.PipelineFormat,
		Target:   "/src",
		Aborted:  true,
		Results: []model.StageResult{
			{Stage: model.Stage{Name: "autoflake", Command: "autoflake"}, Status: model.StageOK, Duration: 120 * time.Millisecond},
			{Stage: model.Stage{Name: "isort", Command: "isort", Args: []string{"/src"}}, Status: model.StageFailed, ExitCode: 1, Stderr: "boom\n"},
			{Stage: model.Stage{Name: "black", Command: "black"}, Status: model.StageSkipped},
		},
	}
}

func TestWriteOutcome(t *testing.T) {
	var buf bytes.Buffer
	WriteOutcome(&buf, abortedFormat())

	out := buf.String()
	assert.Contains(t, out, "STAGE")
	assert.Contains(t, out, "DURATION")
	assert.Contains(t, out, "autoflake")
	assert.Contains(t, out, "120ms")
	assert.Contains(t, out, "skipped")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "format: failed (isort), exit code 1; skipped black", lines[len(lines)-1])
}

func TestVerdict_Passed(t *testing.T) {
	o := &model.Outcome{Pipeline: model.PipelineLint, Results: []model.StageResult{
		{Stage: model.Stage{Name: "pydocstyle"}, Status: model.StageOK},
		{Stage: model.Stage{Name: "pylint"}, Status: model.StageOK},
	}}
	assert.Equal(t, "lint: passed", Verdict(o))
}

func TestWriteOutcomeJSON(t *testing.T) {
	var buf bytes.Buffer
	runErr := model.NewCLIError(1, "isort failed with exit code 1; skipped black")
	require.NoError(t, WriteOutcomeJSON(&buf, abortedFormat(), runErr))

	var doc struct {
		Pipeline string `json:"pipeline"`
		Passed   bool   `json:"passed"`
		ExitCode int    `json:"exitCode"`
		Aborted  bool   `json:"aborted"`
		Stages   []struct {
			Name     string   `json:"name"`
			Args     []string `json:"args"`
			Status   string   `json:"status"`
			ExitCode int      `json:"exitCode"`
			Stderr   string   `json:"stderr"`
		} `json:"stages"`
		Error *ErrorInfo `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "format", doc.Pipeline)
	assert.False(t, doc.Passed)
	assert.Equal(t, 1, doc.ExitCode)
	assert.True(t, doc.Aborted)
	require.Len(t, doc.Stages, 3)
	assert.Equal(t, "failed", doc.Stages[1].Status)
	assert.Equal(t, "boom\n", doc.Stages[1].Stderr)
	assert.NotNil(t, doc.Stages[0].Args, "args are [] rather than null")
	require.NotNil(t, doc.Error)
	assert.Equal(t, 1, doc.Error.Code)
}

func TestWriteOutcomeJSON_ErrorOverridesExitCode(t *testing.T) {
	o := &model.Outcome{Pipeline: model.PipelineTest}
	var buf bytes.Buffer
	require.NoError(t, WriteOutcomeJSON(&buf, o, model.NewCLIError(model.ExitInterrupted, "interrupted")))
	assert.Contains(t, buf.String(), `"exitCode": 130`)
	assert.Contains(t, buf.String(), `"passed": false`)
}

func TestNewErrorInfo(t *testing.T) {
	info := NewErrorInfo(model.NewCLIError(model.ExitToolNotFound, "black is not installed"))
	assert.Equal(t, 127, info.Code)
	assert.Equal(t, "black is not installed", info.Message)

	info = NewErrorInfo(errors.New("plain"))
	assert.Equal(t, 1, info.Code)
}

func TestWriteErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteErrorJSON(&buf, model.NewCLIError(model.ExitInvalidInput, "bad target")))
	assert.JSONEq(t, `{"error":{"code":2,"message":"bad target"}}`, buf.String())
}

func TestWriteImages(t *testing.T) {
	var buf bytes.Buffer
	WriteImages(&buf, nil)
	assert.Equal(t, "No managed images found.\n", buf.String())

	buf.Reset()
	WriteImages(&buf, []docker.ImageInfo{{
		ID:      "sha256:0123456789abcdef",
		Tags:    []string{"pdevtools:latest"},
		Size:    3 * 1024 * 1024,
		Created: time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC),
		Meta:    docker.ImageMeta{BaseImage: "python:3.12-slim"},
	}})
	out := buf.String()
	assert.Contains(t, out, "0123456789ab")
	assert.Contains(t, out, "pdevtools:latest")
	assert.Contains(t, out, "3.0 MiB")
	assert.Contains(t, out, "2026-02-28 10:00:00")
}

func TestWriteImagesJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteImagesJSON(&buf, nil))
	assert.JSONEq(t, `{"images":[]}`, buf.String())
}

func TestWriteBuild(t *testing.T) {
	var buf bytes.Buffer
	WriteBuild(&buf, &docker.BuildResult{
		Tag:      "demo:dev",
		Duration: "12.3s",
		Image:    &docker.ImageInfo{ID: "sha256:feedfacecafebeef", Size: 2048},
	})
	assert.Equal(t, "Built demo:dev (feedfacecafe, 2.0 KiB) in 12.3s\n", buf.String())
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "120ms", FormatDuration(120*time.Millisecond+300*time.Microsecond))
	assert.Equal(t, "1.23s", FormatDuration(1234*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(2*time.Minute+5*time.Second+400*time.Millisecond))
}
