package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// EnvPrefix is the prefix of configuration environment variables.
// Nested keys are separated by a double underscore:
//
//	PDEVTOOLS_FORMAT__LINE_LENGTH=100  →  format.line_length
const EnvPrefix = "PDEVTOOLS_"

// ConfigFileNames are searched in the project root, in order, when no
// explicit config file is given.
var ConfigFileNames = []string{
	".pdevtools.yaml",
	".pdevtools.yml",
	".pdevtools.jsonc",
	".pdevtools.json",
}

// LoadOptions controls a configuration load.
type LoadOptions struct {
	// ProjectRoot is searched for pyproject.toml and config files.
	ProjectRoot string

	// ConfigFile is an explicit config file path. When set it must exist.
	ConfigFile string

	// Flags are the parsed command flags. Only flags named in FlagKeys
	// and explicitly set by the user are applied.
	Flags *pflag.FlagSet

	// FlagKeys maps flag names to koanf keys (e.g., "line-length" →
	// "format.line_length").
	FlagKeys map[string]string
}

// Load builds the effective configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")
	var sources []string

	// 1. Preset defaults.
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Settings shared with the wrapped tools via pyproject.toml.
	if opts.ProjectRoot != "" {
		values, path, found, err := loadPyproject(opts.ProjectRoot)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidInput, "failed to read pyproject.toml", err)
		}
		if found {
			if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			sources = append(sources, path)
		}
	}

	// 3. pdevtools config file.
	cfgFile, err := findConfigFile(opts.ProjectRoot, opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		parser, err := parserFor(cfgFile)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(cfgFile), parser); err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidInput,
				fmt.Sprintf("error reading config file %s", cfgFile), err)
		}
		sources = append(sources, cfgFile)
	}

	// 4. Environment variables.
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 5. Flags explicitly set on the command line.
	if opts.Flags != nil && len(opts.FlagKeys) > 0 {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := opts.FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidInput, "unable to decode config", err)
	}
	cfg.ProjectRoot = opts.ProjectRoot
	cfg.Sources = sources

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey transforms PDEVTOOLS_FORMAT__LINE_LENGTH into format.line_length.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

// findConfigFile resolves the config file to load.
// Priority: explicit path > first ConfigFileNames match in root > none.
func findConfigFile(root, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", model.WrapCLIError(model.ExitInvalidInput,
				fmt.Sprintf("config file %s not readable", explicit), err)
		}
		return explicit, nil
	}
	if root == "" {
		return "", nil
	}
	for _, name := range ConfigFileNames {
		candidate := filepath.Join(root, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// parserFor selects the koanf parser by file extension.
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json", ".jsonc":
		return JSONC(), nil
	default:
		return nil, model.NewCLIError(model.ExitInvalidInput,
			fmt.Sprintf("unsupported config file format %q (use .yaml, .yml, .json or .jsonc)", filepath.Ext(path)))
	}
}
