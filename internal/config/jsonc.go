package config

import (
	"encoding/json"
	"fmt"

	"github.com/knadh/koanf/v2"
	"github.com/tidwall/jsonc"
)

// jsoncParser is a koanf.Parser for JSON with comments and trailing
// commas. Comments are stripped with tidwall/jsonc before decoding.
type jsoncParser struct{}

// JSONC returns a koanf parser for .json and .jsonc config files.
func JSONC() koanf.Parser {
	return &jsoncParser{}
}

// Unmarshal parses JSONC bytes into a nested map.
func (p *jsoncParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(b), &out); err != nil {
		return nil, fmt.Errorf("parse jsonc: %w", err)
	}
	return out, nil
}

// Marshal renders the map as indented JSON. Comments are not preserved.
func (p *jsoncParser) Marshal(o map[string]interface{}) ([]byte, error) {
	return json.MarshalIndent(o, "", "  ")
}
