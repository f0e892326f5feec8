// Package manifest parses the pip dependency manifest (requirements.txt)
// installed into the tool container.
//
// Parsing is deliberately stricter than "anything pip might accept": a
// line that is neither a requirement, a recognised pip option, a comment
// nor blank is reported with its line number so the container build can
// fail before Docker is contacted.
package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// Requirement is one package line of the manifest.
type Requirement struct {
	Name      string   `json:"name"`
	Extras    []string `json:"extras,omitempty"`
	Specifier string   `json:"specifier,omitempty"`
	URL       string   `json:"url,omitempty"`
	Marker    string   `json:"marker,omitempty"`
	Line      int      `json:"line"`
}

// String renders the requirement in pip syntax.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		b.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString(" @ " + r.URL)
	}
	b.WriteString(r.Specifier)
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

// Manifest is a parsed requirements file.
type Manifest struct {
	Path         string        `json:"path"`
	Requirements []Requirement `json:"requirements"`

	// Options holds pip option lines (e.g. "--index-url ...") verbatim.
	Options []string `json:"options,omitempty"`

	// Includes lists files referenced with -r / --requirement.
	Includes []string `json:"includes,omitempty"`
}

var (
	// name[extras] (@ url | specifiers) (; marker)
	requirementRe = regexp.MustCompile(
		`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)` +
			`\s*(?:\[\s*([A-Za-z0-9._-]+(?:\s*,\s*[A-Za-z0-9._-]+)*)?\s*\])?` +
			`\s*(?:@\s*(\S+)|((?:===|~=|==|!=|<=|>=|<|>)\s*[A-Za-z0-9.*+!_-]+(?:\s*,\s*(?:===|~=|==|!=|<=|>=|<|>)\s*[A-Za-z0-9.*+!_-]+)*))?` +
			`\s*(?:;\s*(.+))?$`)

	specSpaceRe = regexp.MustCompile(`\s+`)

	// per-requirement hash-checking options
	hashRe = regexp.MustCompile(`\s+--hash[=\s]\S+`)
)

// pipOptions are the option lines accepted in a requirements file. The
// value says whether the option takes an argument.
var pipOptions = map[string]bool{
	"-r":                true,
	"--requirement":     true,
	"-c":                true,
	"--constraint":      true,
	"-e":                true,
	"--editable":        true,
	"-i":                true,
	"--index-url":       true,
	"--extra-index-url": true,
	"-f":                true,
	"--find-links":      true,
	"--trusted-host":    true,
	"--only-binary":     true,
	"--no-binary":       true,
	"--no-index":        false,
	"--pre":             false,
	"--prefer-binary":   false,
	"--require-hashes":  false,
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.NewCLIError(model.ExitInvalidInput, fmt.Sprintf("dependency manifest not found: %s", path))
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Parse reads a manifest from r. name is used in error messages. Every
// invalid line is reported; the returned error is a *model.CLIError with
// ExitInvalidInput wrapping one error per line.
func Parse(r io.Reader, name string) (*Manifest, error) {
	m := &Manifest{Path: name}

	var errs error
	for entry := range logicalLines(r) {
		if entry.err != nil {
			return nil, fmt.Errorf("read %s: %w", name, entry.err)
		}
		text := stripComment(entry.text)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "-") {
			if err := m.addOption(text); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("line %d: %w", entry.line, err))
			}
			continue
		}

		req, err := parseRequirement(text)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", entry.line, err))
			continue
		}
		req.Line = entry.line
		m.Requirements = append(m.Requirements, req)
	}

	if errs != nil {
		n := len(multierr.Errors(errs))
		return nil, model.WrapCLIError(model.ExitInvalidInput,
			fmt.Sprintf("%s: %d invalid entr%s", name, n, plural(n, "y", "ies")), errs)
	}
	return m, nil
}

func (m *Manifest) addOption(text string) error {
	opt, value, _ := strings.Cut(text, " ")
	if k, v, ok := strings.Cut(opt, "="); ok && strings.HasPrefix(opt, "--") {
		opt, value = k, v
	}
	value = strings.TrimSpace(value)

	takesValue, known := pipOptions[opt]
	if !known {
		return fmt.Errorf("unsupported option %q", opt)
	}
	if takesValue && value == "" {
		return fmt.Errorf("option %s requires a value", opt)
	}
	if !takesValue && value != "" {
		return fmt.Errorf("option %s takes no value", opt)
	}

	if opt == "-r" || opt == "--requirement" {
		m.Includes = append(m.Includes, value)
		return nil
	}
	m.Options = append(m.Options, text)
	return nil
}

func parseRequirement(text string) (Requirement, error) {
	text = strings.TrimSpace(hashRe.ReplaceAllString(text, ""))
	match := requirementRe.FindStringSubmatch(text)
	if match == nil {
		return Requirement{}, fmt.Errorf("cannot parse requirement %q", text)
	}
	req := Requirement{
		Name:      match[1],
		URL:       match[3],
		Specifier: specSpaceRe.ReplaceAllString(match[4], ""),
		Marker:    strings.TrimSpace(match[5]),
	}
	if match[2] != "" {
		for _, e := range strings.Split(match[2], ",") {
			req.Extras = append(req.Extras, strings.TrimSpace(e))
		}
	}
	return req, nil
}

// stripComment removes a trailing comment. pip treats '#' as a comment
// only at line start or after whitespace.
func stripComment(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return ""
	}
	for i := 1; i < len(s); i++ {
		if s[i] == '#' && (s[i-1] == ' ' || s[i-1] == '\t') {
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}

type logicalLine struct {
	text string
	line int
	err  error
}

// logicalLines yields lines with backslash continuations joined. line is
// the number of the first physical line.
func logicalLines(r io.Reader) func(yield func(logicalLine) bool) {
	return func(yield func(logicalLine) bool) {
		sc := bufio.NewScanner(r)
		var (
			buf   strings.Builder
			start int
			n     int
		)
		for sc.Scan() {
			n++
			text := sc.Text()
			if buf.Len() == 0 {
				start = n
			}
			if strings.HasSuffix(text, `\`) {
				buf.WriteString(strings.TrimSuffix(text, `\`))
				continue
			}
			buf.WriteString(text)
			if !yield(logicalLine{text: buf.String(), line: start}) {
				return
			}
			buf.Reset()
		}
		if err := sc.Err(); err != nil {
			yield(logicalLine{err: err})
			return
		}
		if buf.Len() > 0 {
			yield(logicalLine{text: buf.String(), line: start})
		}
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
