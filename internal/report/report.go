// Package report renders pipeline outcomes and image listings for the
// terminal (go-pretty tables) and for machines (JSON).
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/shinji-kodama/pdevtools/internal/docker"
	"github.com/shinji-kodama/pdevtools/internal/model"
)

// WriteOutcome renders one row per stage followed by a verdict line.
//
//	STAGE  TOOL        STATUS   EXIT  DURATION
//	1      autoflake   ok       0     120ms
//	2      isort       failed   1     80ms
//	3      black       skipped  -     -
func WriteOutcome(w io.Writer, o *model.Outcome) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Stage", "Tool", "Status", "Exit", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	for i, r := range o.Results {
		exit, took := "-", "-"
		if r.Status != model.StageSkipped {
			exit = fmt.Sprint(r.ExitCode)
			took = FormatDuration(r.Duration)
		}
		t.AppendRow(table.Row{i + 1, r.Stage.Name, r.Status.String(), exit, took})
	}
	t.Render()

	_, _ = fmt.Fprintln(w, Verdict(o))
}

// Verdict summarises an outcome in one line.
func Verdict(o *model.Outcome) string {
	failures := o.Failures()
	if len(failures) == 0 {
		return fmt.Sprintf("%s: passed", o.Pipeline)
	}

	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Stage.Name)
	}
	msg := fmt.Sprintf("%s: failed (%s), exit code %d", o.Pipeline, strings.Join(names, ", "), o.ExitCode())
	if skipped := o.Skipped(); len(skipped) > 0 {
		msg += fmt.Sprintf("; skipped %s", strings.Join(skipped, ", "))
	}
	return msg
}

// stageJSON is the JSON form of a StageResult.
type stageJSON struct {
	Name       string   `json:"name"`
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	Status     string   `json:"status"`
	ExitCode   int      `json:"exitCode"`
	DurationMS int64    `json:"durationMs"`
	Stdout     string   `json:"stdout,omitempty"`
	Stderr     string   `json:"stderr,omitempty"`
}

// outcomeJSON is the JSON document printed by --json runs.
type outcomeJSON struct {
	Pipeline string      `json:"pipeline"`
	Target   string      `json:"target"`
	Passed   bool        `json:"passed"`
	ExitCode int         `json:"exitCode"`
	Aborted  bool        `json:"aborted"`
	Stages   []stageJSON `json:"stages"`
	Error    *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo is the JSON form of a command error.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteOutcomeJSON writes o as an indented JSON document. runErr, when
// set, is reported in the "error" member and determines exitCode.
func WriteOutcomeJSON(w io.Writer, o *model.Outcome, runErr error) error {
	doc := outcomeJSON{
		Pipeline: o.Pipeline.String(),
		Target:   o.Target,
		ExitCode: o.ExitCode(),
		Aborted:  o.Aborted,
		Stages:   make([]stageJSON, 0, len(o.Results)),
	}
	for _, r := range o.Results {
		args := r.Stage.Args
		if args == nil {
			args = []string{}
		}
		doc.Stages = append(doc.Stages, stageJSON{
			Name:       r.Stage.Name,
			Command:    r.Stage.Command,
			Args:       args,
			Status:     r.Status.String(),
			ExitCode:   r.ExitCode,
			DurationMS: r.Duration.Milliseconds(),
			Stdout:     r.Stdout,
			Stderr:     r.Stderr,
		})
	}
	if runErr != nil {
		doc.Error = NewErrorInfo(runErr)
		doc.ExitCode = doc.Error.Code
	}
	doc.Passed = doc.ExitCode == 0

	return writeJSON(w, doc)
}

// NewErrorInfo converts err into an ErrorInfo. CLIError codes are
// preserved; anything else is a general error.
func NewErrorInfo(err error) *ErrorInfo {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return &ErrorInfo{Code: int(cliErr.Code), Message: cliErr.Error()}
	}
	return &ErrorInfo{Code: int(model.ExitGeneralError), Message: err.Error()}
}

// WriteErrorJSON writes {"error": {...}} for failures that happen before
// any outcome exists.
func WriteErrorJSON(w io.Writer, err error) error {
	return writeJSON(w, struct {
		Error *ErrorInfo `json:"error"`
	}{NewErrorInfo(err)})
}

// WriteImages renders managed images as a table.
func WriteImages(w io.Writer, images []docker.ImageInfo) {
	if len(images) == 0 {
		_, _ = fmt.Fprintln(w, "No managed images found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Image ID", "Tags", "Base Image", "Size", "Created"})
	for _, img := range images {
		tags := "<none>"
		if len(img.Tags) > 0 {
			tags = strings.Join(img.Tags, ", ")
		}
		t.AppendRow(table.Row{
			img.ShortID(), tags, img.Meta.BaseImage, FormatBytes(img.Size), img.Created.Format(time.DateTime),
		})
	}
	t.Render()
}

// WriteImagesJSON writes {"images": [...]}; an empty listing is [] rather
// than null.
func WriteImagesJSON(w io.Writer, images []docker.ImageInfo) error {
	if images == nil {
		images = []docker.ImageInfo{}
	}
	return writeJSON(w, struct {
		Images []docker.ImageInfo `json:"images"`
	}{images})
}

// WriteBuild prints the result of an image build.
func WriteBuild(w io.Writer, res *docker.BuildResult) {
	if res.Image == nil {
		_, _ = fmt.Fprintf(w, "Built %s in %s\n", res.Tag, res.Duration)
		return
	}
	_, _ = fmt.Fprintf(w, "Built %s (%s, %s) in %s\n",
		res.Tag, res.Image.ShortID(), FormatBytes(res.Image.Size), res.Duration)
}

// WriteBuildJSON writes the build result as JSON.
func WriteBuildJSON(w io.Writer, res *docker.BuildResult) error {
	return writeJSON(w, res)
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
