package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// PyprojectFile is the standard Python project metadata file name.
const PyprojectFile = "pyproject.toml"

// pyproject mirrors the [tool.*] tables pdevtools reads. Every other table
// in the file is ignored.
type pyproject struct {
	Tool struct {
		Black struct {
			LineLength int `toml:"line-length"`
		} `toml:"black"`

		Isort struct {
			Profile    string `toml:"profile"`
			LineLength int    `toml:"line_length"`
		} `toml:"isort"`

		Pydocstyle struct {
			Convention string `toml:"convention"`
		} `toml:"pydocstyle"`

		Coverage struct {
			Run struct {
				Source []string `toml:"source"`
				Omit   []string `toml:"omit"`
			} `toml:"run"`
			Report struct {
				FailUnder float64 `toml:"fail_under"`
			} `toml:"report"`
		} `toml:"coverage"`

		Pdevtools map[string]interface{} `toml:"pdevtools"`
	} `toml:"tool"`
}

// loadPyproject reads pyproject.toml from dir and maps the settings the
// wrapped tools share with pdevtools onto koanf keys. A [tool.pdevtools]
// table is merged verbatim on top. found is false when the file does
// not exist.
func loadPyproject(dir string) (values map[string]interface{}, path string, found bool, err error) {
	path = filepath.Join(dir, PyprojectFile)

	var raw pyproject
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, path, false, nil
		}
		return nil, path, false, fmt.Errorf("parse %s: %w", path, err)
	}

	values = make(map[string]interface{})

	// One width drives every tool; black's line-length overrides isort's.
	if meta.IsDefined("tool", "isort", "line_length") {
		values["format.line_length"] = raw.Tool.Isort.LineLength
	}
	if meta.IsDefined("tool", "black", "line-length") {
		values["format.line_length"] = raw.Tool.Black.LineLength
	}
	if meta.IsDefined("tool", "isort", "profile") {
		values["format.import_profile"] = raw.Tool.Isort.Profile
	}
	if meta.IsDefined("tool", "pydocstyle", "convention") {
		values["lint.convention"] = raw.Tool.Pydocstyle.Convention
	}
	if meta.IsDefined("tool", "coverage", "run", "source") {
		values["test.coverage_source"] = raw.Tool.Coverage.Run.Source
	}
	if meta.IsDefined("tool", "coverage", "run", "omit") {
		values["test.omit"] = raw.Tool.Coverage.Run.Omit
	}
	if meta.IsDefined("tool", "coverage", "report", "fail_under") {
		values["test.fail_under"] = raw.Tool.Coverage.Report.FailUnder
	}

	for key, v := range flattenTable("", raw.Tool.Pdevtools) {
		values[key] = v
	}

	return values, path, true, nil
}

// flattenTable converts a nested TOML table into dotted keys.
func flattenTable(prefix string, table map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range table {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			for nk, nv := range flattenTable(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = v
	}
	return out
}
