package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/pdevtools/internal/model"
)

// MarshalYAML renders cfg as a YAML document with two-space indentation.
func MarshalYAML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// DefaultConfig returns the preset configuration without consulting any
// file, environment variable or flag.
func DefaultConfig() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode defaults: %w", err)
	}
	return &cfg, nil
}

// WriteDefault writes the preset configuration to dir/.pdevtools.yaml.
// An existing file is only replaced when force is true.
func WriteDefault(dir string, force bool) (string, error) {
	path := filepath.Join(dir, ConfigFileNames[0])
	if _, err := os.Stat(path); err == nil && !force {
		return "", model.NewCLIError(model.ExitInvalidInput,
			fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	data, err := MarshalYAML(cfg)
	if err != nil {
		return "", err
	}

	header := []byte("# pdevtools configuration. Values here override pyproject.toml;\n" +
		"# PDEVTOOLS_* environment variables and flags override this file.\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
